package pipeline

import (
	"github.com/amalafoods/payhook/internal/models"
	"github.com/amalafoods/payhook/internal/notify"
)

// StepResult records one fulfillment step's outcome.
type StepResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes one run of the fulfillment sequence. It is returned to
// the admin resend endpoint and logged after webhook-triggered runs.
type Report struct {
	OrderID         string                   `json:"order_id"`
	Steps           []StepResult             `json:"steps"`
	Rewards         models.RewardAwardResult `json:"rewards"`
	StreakRun       int                      `json:"streak_run"`
	StreakCompleted bool                     `json:"streak_completed"`
	StreakBonus     bool                     `json:"streak_bonus,omitempty"`
	Notifications   []notify.ChannelResult   `json:"notifications,omitempty"`
}

// Failed lists the names of steps that errored.
func (r *Report) Failed() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Error != "" {
			out = append(out, s.Name)
		}
	}
	return out
}
