package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amalafoods/payhook/internal/models"
)

const orderColumns = `id, order_number, customer_email, customer_name, customer_phone,
	total_kobo, payment_status, fulfillment_status,
	COALESCE(payment_reference, ''), COALESCE(wallet_id, ''), COALESCE(invoice_reference, ''),
	COALESCE(promo_code, ''), COALESCE(referred_by::text, ''), created_at, paid_at`

func scanOrder(row *sql.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID,
		&o.Number,
		&o.CustomerEmail,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.TotalKobo,
		&o.PaymentStatus,
		&o.FulfillmentStatus,
		&o.PaymentReference,
		&o.WalletID,
		&o.InvoiceReference,
		&o.PromoCode,
		&o.ReferredBy,
		&o.CreatedAt,
		&o.PaidAt,
	)
	return o, err
}

// FindOrderByCorrelation resolves a payment event to exactly one order by
// OR-matching the provider correlation keys. The scoped connection is tried
// first; zero rows or a permission error falls back to the privileged
// connection before concluding not-found. Read-only.
func (s *Store) FindOrderByCorrelation(ctx context.Context, keys models.CorrelationKeys) (models.Order, error) {
	if keys.Empty() {
		return models.Order{}, models.ErrOrderNotFound
	}

	order, err := s.findByCorrelation(ctx, s.db, keys)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, models.ErrOrderNotFound) && !isPermissionDenied(err) {
		return models.Order{}, err
	}
	if s.admin == s.db {
		// No privileged pool to fall back to. A denied read is a
		// configuration problem, not a missing order; surface it so the
		// delivery is retried instead of acknowledged as unmatched.
		if isPermissionDenied(err) {
			return models.Order{}, fmt.Errorf("order lookup: %w: %w", models.ErrPermissionDenied, err)
		}
		return models.Order{}, models.ErrOrderNotFound
	}

	s.logger.Warn("order lookup falling back to privileged connection",
		"payment_reference", keys.PaymentReference, "reason", err)
	order, err = s.findByCorrelation(ctx, s.admin, keys)
	if errors.Is(err, models.ErrOrderNotFound) || err == nil {
		return order, err
	}
	return models.Order{}, err
}

func (s *Store) findByCorrelation(ctx context.Context, db *sql.DB, keys models.CorrelationKeys) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE (payment_reference = $1 AND $1 <> '')
		   OR (wallet_id = $2 AND $2 <> '')
		   OR (invoice_reference = $3 AND $3 <> '')
		ORDER BY created_at DESC
		LIMIT 1`

	order, err := scanOrder(db.QueryRowContext(ctx, query,
		keys.PaymentReference, keys.WalletID, keys.InvoiceReference))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, models.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find order by correlation: %w", err)
	}
	return order, nil
}

// GetOrder fetches one order by ID on the privileged connection.
func (s *Store) GetOrder(ctx context.Context, id string) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(s.admin.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, models.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// MarkOrderPaid is the idempotency gate: a single conditional update that
// succeeds only while the order is still pending. It returns true only when
// this call performed the transition; concurrent deliveries race here and
// exactly one observes a changed row.
func (s *Store) MarkOrderPaid(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE orders
		SET payment_status = 'paid', paid_at = now(), updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`

	res, err := s.admin.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return rows == 1, nil
}

// MarkOrderFailed transitions pending → failed under the same conditional
// update discipline. A paid order is never overwritten.
func (s *Store) MarkOrderFailed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE orders
		SET payment_status = 'failed', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`

	res, err := s.admin.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}
	return rows == 1, nil
}

// ConfirmOrder moves the fulfillment status to confirmed for a freshly paid
// order.
func (s *Store) ConfirmOrder(ctx context.Context, id string) error {
	const query = `UPDATE orders
		SET fulfillment_status = 'confirmed', updated_at = now()
		WHERE id = $1 AND fulfillment_status = 'pending'`

	if _, err := s.admin.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}
	return nil
}

// CreateOrder inserts a new order (checkout path, also used by tests).
func (s *Store) CreateOrder(ctx context.Context, o models.Order) (string, error) {
	const query = `INSERT INTO orders
		(order_number, customer_email, customer_name, customer_phone, total_kobo,
		 payment_status, fulfillment_status, payment_reference, wallet_id,
		 invoice_reference, promo_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''),
			NULLIF($12, '')::uuid)
		RETURNING id`

	if o.PaymentStatus == "" {
		o.PaymentStatus = models.PaymentPending
	}
	if o.FulfillmentStatus == "" {
		o.FulfillmentStatus = models.FulfillmentPending
	}

	var id string
	err := s.admin.QueryRowContext(ctx, query,
		o.Number, o.CustomerEmail, o.CustomerName, o.CustomerPhone, o.TotalKobo,
		o.PaymentStatus, o.FulfillmentStatus, o.PaymentReference, o.WalletID,
		o.InvoiceReference, o.PromoCode, o.ReferredBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("create order %s: duplicate order number: %w", o.Number, err)
		}
		return "", fmt.Errorf("create order: %w", err)
	}
	return id, nil
}
