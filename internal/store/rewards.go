package store

import (
	"context"
	"fmt"

	"github.com/amalafoods/payhook/internal/models"
)

// AwardOrderRewards runs the atomic multi-award ledger operation: order
// points, first-order bonus, and referral bonus in one transaction, with the
// materialized balances updated alongside the ledger rows.
//
// Every insert relies on a unique constraint plus ON CONFLICT DO NOTHING, so
// re-entering this operation for the same order is a no-op, not an error:
// the conflict on (order_id, reason) is the double-crediting guard.
func (s *Store) AwardOrderRewards(ctx context.Context, p models.RewardAwardParams) (models.RewardAwardResult, error) {
	var result models.RewardAwardResult

	tx, err := s.admin.BeginTx(ctx, nil)
	if err != nil {
		return failedAward(fmt.Errorf("begin reward tx: %w", err))
	}
	defer tx.Rollback()

	points := p.TotalKobo / p.KoboPerPoint

	const insertReward = `INSERT INTO reward_transactions
		(profile_id, order_id, reason, points, referred_profile_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid)
		ON CONFLICT DO NOTHING`
	const creditBalance = `UPDATE customer_profiles
		SET points_balance = points_balance + $2, updated_at = now()
		WHERE id = $1`

	res, err := tx.ExecContext(ctx, insertReward,
		p.ProfileID, p.OrderID, models.ReasonOrderPoints, points, "")
	if err != nil {
		return failedAward(fmt.Errorf("insert order points: %w", err))
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// The order_points row already exists, meaning a prior run of this
		// operation committed. Nothing further to grant.
		result.Success = true
		result.AlreadyApplied = true
		return result, tx.Commit()
	}
	if points > 0 {
		if _, err := tx.ExecContext(ctx, creditBalance, p.ProfileID, points); err != nil {
			return failedAward(fmt.Errorf("credit order points: %w", err))
		}
	}
	result.PointsAwarded = points

	// First-order bonus: existence of a prior ledger row of this reason for
	// the profile decides eligibility, never an order count.
	if p.TotalKobo >= p.FirstOrderMinKobo && p.FirstOrderBonusPoints > 0 {
		res, err := tx.ExecContext(ctx, insertReward,
			p.ProfileID, p.OrderID, models.ReasonFirstOrderBonus, p.FirstOrderBonusPoints, "")
		if err != nil {
			return failedAward(fmt.Errorf("insert first-order bonus: %w", err))
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			if _, err := tx.ExecContext(ctx, creditBalance, p.ProfileID, p.FirstOrderBonusPoints); err != nil {
				return failedAward(fmt.Errorf("credit first-order bonus: %w", err))
			}
			result.FirstOrderBonus = true
		}
	}

	// Referral bonus goes to the referrer, once per referred customer.
	if p.ReferrerID != "" && p.ReferralBonusPoints > 0 {
		res, err := tx.ExecContext(ctx, insertReward,
			p.ReferrerID, p.OrderID, models.ReasonReferralBonus, p.ReferralBonusPoints, p.ProfileID)
		if err != nil {
			return failedAward(fmt.Errorf("insert referral bonus: %w", err))
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			if _, err := tx.ExecContext(ctx, creditBalance, p.ReferrerID, p.ReferralBonusPoints); err != nil {
				return failedAward(fmt.Errorf("credit referral bonus: %w", err))
			}
			result.ReferralProcessed = true
		}
	}

	if err := tx.Commit(); err != nil {
		return failedAward(fmt.Errorf("commit reward tx: %w", err))
	}
	result.Success = true
	return result, nil
}

// AwardStreakBonus grants the streak-completion bonus through the same
// ledger, under its own reason so it shares the once-per-order guarantee.
// Returns true when the bonus was newly granted.
func (s *Store) AwardStreakBonus(ctx context.Context, orderID, profileID string, points int64) (bool, error) {
	tx, err := s.admin.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin streak bonus tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO reward_transactions (profile_id, order_id, reason, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`
	res, err := tx.ExecContext(ctx, insert, profileID, orderID, models.ReasonStreakBonus, points)
	if err != nil {
		return false, fmt.Errorf("insert streak bonus: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return false, tx.Commit()
	}

	const credit = `UPDATE customer_profiles
		SET points_balance = points_balance + $2, updated_at = now()
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, credit, profileID, points); err != nil {
		return false, fmt.Errorf("credit streak bonus: %w", err)
	}
	return true, tx.Commit()
}

func failedAward(err error) (models.RewardAwardResult, error) {
	return models.RewardAwardResult{Success: false, ErrorMessage: err.Error()}, err
}
