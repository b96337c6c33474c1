// Package catalog holds the static plan catalog. It is built once at startup
// and only read afterwards, so it needs no locking.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BatmanBruc/paygate-bot/types"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	plans map[string]types.Plan
	order []string
}

func DefaultPlans() []types.Plan {
	return []types.Plan{
		{ID: "1", Title: "20 minutes", PriceCents: 500, Currency: "usd", BenefitMinutes: 20},
		{ID: "2", Title: "1 hour", PriceCents: 1500, Currency: "usd", BenefitMinutes: 60},
		{ID: "3", Title: "2 hours", PriceCents: 3000, Currency: "usd", BenefitMinutes: 120},
		{ID: "4", Title: "6 hours", PriceCents: 5000, Currency: "usd", BenefitMinutes: 360},
		{ID: "5", Title: "1 day", PriceCents: 10000, Currency: "usd", BenefitMinutes: 1440},
		{ID: "6", Title: "Lifetime", PriceCents: 30000, Currency: "usd", Lifetime: true},
	}
}

func Default() *Catalog {
	c, err := New(DefaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

func New(plans []types.Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog: no plans")
	}
	c := &Catalog{plans: make(map[string]types.Plan, len(plans))}
	for _, p := range plans {
		p.ID = strings.TrimSpace(p.ID)
		p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate plan %q", p.ID)
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	sort.SliceStable(c.order, func(i, j int) bool {
		a, errA := strconv.Atoi(c.order[i])
		b, errB := strconv.Atoi(c.order[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return c.order[i] < c.order[j]
	})
	return c, nil
}

func validatePlan(p types.Plan) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("catalog: plan without id")
	case strings.HasPrefix(p.ID, "/"):
		return fmt.Errorf("catalog: plan %q collides with commands", p.ID)
	case p.PriceCents <= 0:
		return fmt.Errorf("catalog: plan %q has no price", p.ID)
	case p.Currency == "":
		return fmt.Errorf("catalog: plan %q has no currency", p.ID)
	case p.Lifetime && p.BenefitMinutes != 0:
		return fmt.Errorf("catalog: plan %q is both lifetime and timed", p.ID)
	case !p.Lifetime && p.BenefitMinutes <= 0:
		return fmt.Errorf("catalog: plan %q grants nothing", p.ID)
	}
	return nil
}

type catalogFile struct {
	Plans []types.Plan `yaml:"plans"`
}

// LoadFile reads a YAML catalog of the form
//
//	plans:
//	  - {id: "1", title: "20 minutes", price_cents: 500, currency: usd, minutes: 20}
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(f.Plans)
}

func (c *Catalog) Lookup(planID string) (types.Plan, error) {
	p, ok := c.plans[strings.TrimSpace(planID)]
	if !ok {
		return types.Plan{}, fmt.Errorf("%w: %q", types.ErrPlanNotFound, planID)
	}
	return p, nil
}

func (c *Catalog) Plans() []types.Plan {
	out := make([]types.Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
