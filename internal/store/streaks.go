package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amalafoods/payhook/internal/models"
)

// AdvanceStreak updates the consecutive-day counter for a profile that just
// completed a qualifying paid order on the given day (UTC date granularity):
// previous calendar day extends the run, the same day changes nothing,
// anything else resets to 1. Returns the streak and whether it reached the
// target on this call.
func (s *Store) AdvanceStreak(ctx context.Context, profileID string, day time.Time, target int) (models.Streak, bool, error) {
	day = day.UTC().Truncate(24 * time.Hour)

	tx, err := s.admin.BeginTx(ctx, nil)
	if err != nil {
		return models.Streak{}, false, fmt.Errorf("begin streak tx: %w", err)
	}
	defer tx.Rollback()

	var st models.Streak
	var lastDate sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT run, last_order_date, completed FROM streaks WHERE profile_id = $1 FOR UPDATE`,
		profileID).Scan(&st.Run, &lastDate, &st.Completed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		st = models.Streak{ProfileID: profileID}
	case err != nil:
		return models.Streak{}, false, fmt.Errorf("read streak: %w", err)
	default:
		st.ProfileID = profileID
		if lastDate.Valid {
			st.LastOrderDate = lastDate.Time.UTC().Truncate(24 * time.Hour)
		}
	}

	if !st.LastOrderDate.IsZero() && st.LastOrderDate.Equal(day) {
		// Second order on the same day: run unchanged.
		return st, false, tx.Commit()
	}

	if st.LastOrderDate.Equal(day.AddDate(0, 0, -1)) {
		st.Run++
	} else {
		st.Run = 1
		st.Completed = false
	}
	st.LastOrderDate = day

	completedNow := false
	if st.Run >= target && !st.Completed {
		st.Completed = true
		completedNow = true
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO streaks (profile_id, run, last_order_date, completed, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (profile_id) DO UPDATE
		 SET run = EXCLUDED.run, last_order_date = EXCLUDED.last_order_date,
		     completed = EXCLUDED.completed, updated_at = now()`,
		profileID, st.Run, st.LastOrderDate, st.Completed)
	if err != nil {
		return models.Streak{}, false, fmt.Errorf("write streak: %w", err)
	}

	return st, completedNow, tx.Commit()
}
