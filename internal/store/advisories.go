package store

import (
	"context"
	"fmt"

	"github.com/amalafoods/payhook/internal/models"
)

// RecordAmountAdvisory stores one advisory per order; replayed deliveries of
// the same mismatched event conflict on the primary key and record nothing
// new. Returns true when the advisory was newly recorded.
func (s *Store) RecordAmountAdvisory(ctx context.Context, adv models.AmountAdvisory) (bool, error) {
	const query = `INSERT INTO amount_advisories (order_id, provider, expected_kobo, reported_kobo)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`

	res, err := s.admin.ExecContext(ctx, query,
		adv.OrderID, adv.Provider, adv.ExpectedKobo, adv.ReportedKobo)
	if err != nil {
		return false, fmt.Errorf("record amount advisory: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record amount advisory: %w", err)
	}
	return rows == 1, nil
}

// ListAdvisories returns all recorded advisories, newest first, for the
// admin review surface.
func (s *Store) ListAdvisories(ctx context.Context) ([]models.AmountAdvisory, error) {
	const query = `SELECT order_id, provider, expected_kobo, reported_kobo, created_at
		FROM amount_advisories ORDER BY created_at DESC`

	rows, err := s.admin.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list advisories: %w", err)
	}
	defer rows.Close()

	var out []models.AmountAdvisory
	for rows.Next() {
		var a models.AmountAdvisory
		if err := rows.Scan(&a.OrderID, &a.Provider, &a.ExpectedKobo, &a.ReportedKobo, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan advisory: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
