package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amalafoods/payhook/internal/models"
)

// GetOrCreateProfile resolves the profile for an email, creating it when the
// email has never been seen. The unique constraint on email makes concurrent
// creation collapse to one row.
func (s *Store) GetOrCreateProfile(ctx context.Context, email string) (models.Profile, error) {
	const insert = `INSERT INTO customer_profiles (email) VALUES ($1)
		ON CONFLICT (email) DO NOTHING`
	if _, err := s.admin.ExecContext(ctx, insert, email); err != nil {
		return models.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	const query = `SELECT id, email, points_balance, tier,
		COALESCE(crm_id, ''), COALESCE(banking_id, ''), created_at
		FROM customer_profiles WHERE email = $1`

	var p models.Profile
	err := s.admin.QueryRowContext(ctx, query, email).Scan(
		&p.ID, &p.Email, &p.PointsBalance, &p.Tier, &p.CRMID, &p.BankingID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, models.ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SetProfileCRMID records the external CRM identifier after a successful sync.
func (s *Store) SetProfileCRMID(ctx context.Context, profileID, crmID string) error {
	const query = `UPDATE customer_profiles
		SET crm_id = $2, updated_at = now() WHERE id = $1`
	if _, err := s.admin.ExecContext(ctx, query, profileID, crmID); err != nil {
		return fmt.Errorf("set profile crm id: %w", err)
	}
	return nil
}
