package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "paygate"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "paygate"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) CreateBinding(ctx context.Context, b types.InvoiceBinding) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO invoice_bindings (invoice_id, order_id, session_id, plan_id, payment_url, status, created_at)
VALUES ($1, $2, $3, $4, $5, 'pending', $6)
ON CONFLICT (invoice_id) DO NOTHING
`, strings.TrimSpace(b.InvoiceID), strings.TrimSpace(b.OrderID), b.SessionID, b.PlanID, b.PaymentURL, b.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("binding: invoice %s already bound", b.InvoiceID)
	}
	return nil
}

// ConfirmBinding relies on the conditional UPDATE for exactly-once semantics:
// of two concurrent confirmations only one sees a pending row.
func (s *PostgresStore) ConfirmBinding(ctx context.Context, invoiceID string, at time.Time) (types.InvoiceBinding, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := scanBinding(s.pool.QueryRow(ctx, `
UPDATE invoice_bindings
SET status = 'confirmed', confirmed_at = $2
WHERE invoice_id = $1 AND status = 'pending'
RETURNING invoice_id, order_id, session_id, plan_id, payment_url, status, created_at, confirmed_at
`, invoiceID, at))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.InvoiceBinding{}, err
	}

	b, err = scanBinding(s.pool.QueryRow(ctx, `
SELECT invoice_id, order_id, session_id, plan_id, payment_url, status, created_at, confirmed_at
FROM invoice_bindings
WHERE invoice_id = $1
`, invoiceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.InvoiceBinding{}, fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}
	if err != nil {
		return types.InvoiceBinding{}, err
	}
	return b, fmt.Errorf("%w: %s", types.ErrAlreadyConsumed, invoiceID)
}

func scanBinding(row pgx.Row) (types.InvoiceBinding, error) {
	var (
		b      types.InvoiceBinding
		status string
	)
	err := row.Scan(&b.InvoiceID, &b.OrderID, &b.SessionID, &b.PlanID, &b.PaymentURL, &status, &b.CreatedAt, &b.ConfirmedAt)
	if err != nil {
		return types.InvoiceBinding{}, err
	}
	b.Status = types.BindingStatus(status)
	return b, nil
}

func (s *PostgresStore) InvoiceForOrder(ctx context.Context, orderID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var invoiceID string
	err := s.pool.QueryRow(ctx, `
SELECT invoice_id FROM invoice_bindings WHERE order_id = $1
`, strings.TrimSpace(orderID)).Scan(&invoiceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: order %s", types.ErrBindingNotFound, orderID)
	}
	if err != nil {
		return "", err
	}
	return invoiceID, nil
}

func (s *PostgresStore) ReopenBinding(ctx context.Context, invoiceID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE invoice_bindings SET status = 'pending', confirmed_at = NULL
WHERE invoice_id = $1
`, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}
	return nil
}

func (s *PostgresStore) DeletePendingBinding(ctx context.Context, invoiceID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
DELETE FROM invoice_bindings WHERE invoice_id = $1 AND status = 'pending'
`, invoiceID)
	return err
}

func (s *PostgresStore) SweepBindings(ctx context.Context, createdBefore time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
DELETE FROM invoice_bindings WHERE status = 'pending' AND created_at < $1
`, createdBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordActivation(ctx context.Context, a types.Activation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO activations (session_id, target, benefit_minutes, lifetime, started_at, ends_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, a.SessionID, strings.TrimSpace(a.Target), a.Benefit.Minutes, a.Benefit.Lifetime, a.StartedAt, a.EndsAt)
	return err
}

func (s *PostgresStore) StopActivation(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE activations SET stopped_at = $2
WHERE session_id = $1 AND stopped_at IS NULL
`, sessionID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
