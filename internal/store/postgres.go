// Package store is the PostgreSQL persistence layer for orders, customer
// profiles, the reward ledger, streaks, and amount advisories.
//
// It holds two connections: a permission-scoped one used for reads, and a
// privileged one used for writes and as the order-locator fallback when the
// scoped connection is denied or sees no rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps the database handles.
type Store struct {
	db     *sql.DB
	admin  *sql.DB
	logger *slog.Logger
}

// New creates a Store. admin may be nil, in which case the scoped handle is
// used for privileged access too (single-role deployments, tests).
func New(db, admin *sql.DB, logger *slog.Logger) *Store {
	if admin == nil {
		admin = db
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, admin: admin, logger: logger}
}

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// CreateTables bootstraps the schema. Safe to run on every start.
func (s *Store) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			order_number TEXT UNIQUE NOT NULL,
			customer_email TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			total_kobo BIGINT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			fulfillment_status TEXT NOT NULL DEFAULT 'pending',
			payment_reference TEXT,
			wallet_id TEXT,
			invoice_reference TEXT,
			promo_code TEXT,
			referred_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			paid_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS orders_payment_reference_idx ON orders (payment_reference)`,
		`CREATE INDEX IF NOT EXISTS orders_wallet_id_idx ON orders (wallet_id)`,
		`CREATE INDEX IF NOT EXISTS orders_invoice_reference_idx ON orders (invoice_reference)`,
		`CREATE TABLE IF NOT EXISTS customer_profiles (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT UNIQUE NOT NULL,
			points_balance BIGINT NOT NULL DEFAULT 0,
			tier TEXT NOT NULL DEFAULT 'bronze',
			crm_id TEXT,
			banking_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS reward_transactions (
			id BIGSERIAL PRIMARY KEY,
			profile_id UUID NOT NULL,
			order_id UUID NOT NULL,
			reason TEXT NOT NULL,
			points BIGINT NOT NULL,
			referred_profile_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (order_id, reason)
		)`,
		// One first-order bonus per profile and one referral bonus per
		// referred customer, enforced at the index level so concurrent
		// first orders cannot race their way to a double award.
		`CREATE UNIQUE INDEX IF NOT EXISTS reward_first_order_once
			ON reward_transactions (profile_id) WHERE reason = 'first_order_bonus'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS reward_referral_once
			ON reward_transactions (referred_profile_id) WHERE reason = 'referral_bonus'`,
		`CREATE TABLE IF NOT EXISTS streaks (
			profile_id UUID PRIMARY KEY,
			run INT NOT NULL DEFAULT 0,
			last_order_date DATE,
			completed BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS amount_advisories (
			order_id UUID PRIMARY KEY,
			provider TEXT NOT NULL,
			expected_kobo BIGINT NOT NULL,
			reported_kobo BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, q := range queries {
		if _, err := s.admin.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func isPermissionDenied(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
