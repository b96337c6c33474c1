package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/paygate-bot/types"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	p, err := c.Lookup("2")
	require.NoError(t, err)
	assert.Equal(t, 60, p.BenefitMinutes)
	assert.Equal(t, "15.00", p.Amount())
	assert.Equal(t, types.Benefit{Minutes: 60}, p.Benefit())

	life, err := c.Lookup("6")
	require.NoError(t, err)
	assert.True(t, life.Lifetime)
	assert.Equal(t, types.Benefit{Lifetime: true}, life.Benefit())

	ids := make([]string, 0)
	for _, p := range c.Plans() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids)
}

func TestLookupNotFound(t *testing.T) {
	_, err := Default().Lookup("9")
	assert.ErrorIs(t, err, types.ErrPlanNotFound)
}

func TestLookupTrimsInput(t *testing.T) {
	_, err := Default().Lookup(" 3 ")
	assert.NoError(t, err)
}

func TestNewRejectsBadPlans(t *testing.T) {
	tests := []struct {
		name  string
		plans []types.Plan
	}{
		{name: "empty", plans: nil},
		{name: "no price", plans: []types.Plan{{ID: "1", Currency: "usd", BenefitMinutes: 5}}},
		{name: "no benefit", plans: []types.Plan{{ID: "1", PriceCents: 100, Currency: "usd"}}},
		{name: "both", plans: []types.Plan{{ID: "1", PriceCents: 100, Currency: "usd", BenefitMinutes: 5, Lifetime: true}}},
		{name: "command id", plans: []types.Plan{{ID: "/start", PriceCents: 100, Currency: "usd", BenefitMinutes: 5}}},
		{name: "duplicate", plans: []types.Plan{
			{ID: "1", PriceCents: 100, Currency: "usd", BenefitMinutes: 5},
			{ID: "1", PriceCents: 200, Currency: "usd", BenefitMinutes: 10},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.plans)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := `plans:
  - id: "10"
    title: Quick
    price_cents: 250
    currency: EUR
    minutes: 10
  - id: "2"
    title: Forever
    price_cents: 9900
    currency: eur
    lifetime: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)

	plans := c.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, "2", plans[0].ID)
	assert.Equal(t, "10", plans[1].ID)
	assert.Equal(t, "eur", plans[1].Currency)
	assert.Equal(t, "2.50", plans[1].Amount())
}
