// Package pipeline reconciles inbound payment events against orders and
// drives the fulfillment sequence. The idempotency gate, a single
// conditional status update in the store, is the only synchronization
// point: concurrent deliveries of the same logical payment race on it and
// exactly one proceeds to run fulfillment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amalafoods/payhook/internal/config"
	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/metrics"
	"github.com/amalafoods/payhook/internal/models"
	"github.com/amalafoods/payhook/internal/notify"
)

// Store is the persistence surface the pipeline needs. *store.Store
// satisfies it; tests use an in-memory fake.
type Store interface {
	FindOrderByCorrelation(ctx context.Context, keys models.CorrelationKeys) (models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	MarkOrderPaid(ctx context.Context, id string) (bool, error)
	MarkOrderFailed(ctx context.Context, id string) (bool, error)
	ConfirmOrder(ctx context.Context, id string) error
	GetOrCreateProfile(ctx context.Context, email string) (models.Profile, error)
	SetProfileCRMID(ctx context.Context, profileID, crmID string) error
	AwardOrderRewards(ctx context.Context, p models.RewardAwardParams) (models.RewardAwardResult, error)
	AwardStreakBonus(ctx context.Context, orderID, profileID string, points int64) (bool, error)
	AdvanceStreak(ctx context.Context, profileID string, day time.Time, target int) (models.Streak, bool, error)
	RecordAmountAdvisory(ctx context.Context, adv models.AmountAdvisory) (bool, error)
}

// Notifier abstracts the notification dispatcher.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order models.Order) []notify.ChannelResult
	AdminAlert(ctx context.Context, subject, html string)
}

// ExternalSyncer abstracts the CRM/event-stream sync.
type ExternalSyncer interface {
	SyncOrderPaid(ctx context.Context, order models.Order, profile models.Profile) (string, error)
}

// Replay is the optional duplicate fast path ahead of the database gate.
type Replay interface {
	Seen(ctx context.Context, provider, transactionID string) bool
	MarkSeen(ctx context.Context, provider, transactionID string)
}

// Code classifies the terminal outcome of processing one delivery.
type Code int

const (
	// CodeConfirmed means this delivery won the idempotency gate and ran
	// fulfillment.
	CodeConfirmed Code = iota
	// CodeAlreadyProcessed means the order was paid before this delivery;
	// acknowledged so the provider stops retrying.
	CodeAlreadyProcessed
	// CodeFailedRecorded means a failure event moved the order to failed.
	CodeFailedRecorded
	// CodeIgnored means the event carried no actionable transition
	// (e.g. a failure notice for an order that already paid).
	CodeIgnored
)

func (c Code) String() string {
	switch c {
	case CodeConfirmed:
		return "confirmed"
	case CodeAlreadyProcessed:
		return "already_processed"
	case CodeFailedRecorded:
		return "failed_recorded"
	default:
		return "ignored"
	}
}

// Result is the outcome of Process.
type Result struct {
	Code   Code
	Order  models.Order
	Report *Report
}

// ErrOrderNotPaid is returned by Resend for orders that never reached paid.
var ErrOrderNotPaid = errors.New("order is not paid")

// Pipeline wires the stores and collaborators together.
type Pipeline struct {
	store    Store
	replay   Replay
	notifier Notifier
	syncer   ExternalSyncer
	policy   config.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Pipeline. replay, notifier, and syncer may be nil.
func New(store Store, replay Replay, notifier Notifier, syncer ExternalSyncer, policy config.Policy, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		replay:   replay,
		notifier: notifier,
		syncer:   syncer,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Process handles one verified, parsed payment event. Errors it returns are
// transient (data store unreachable during the gate); the handler answers
// 5xx so the provider redelivers. Everything after the gate is non-fatal.
func (p *Pipeline) Process(ctx context.Context, ev gateway.Event) (Result, error) {
	log := p.logger.With("provider", ev.Provider, "transaction_id", ev.TransactionID)

	if p.replay != nil && p.replay.Seen(ctx, ev.Provider, ev.TransactionID) {
		metrics.DuplicateDeliveries.WithLabelValues(ev.Provider).Inc()
		log.Info("delivery short-circuited by replay cache")
		return Result{Code: CodeAlreadyProcessed}, nil
	}

	order, err := p.store.FindOrderByCorrelation(ctx, models.CorrelationKeys(ev.Keys))
	if err != nil {
		return Result{}, err
	}
	log = log.With("order_id", order.ID, "order_number", order.Number)

	if !ev.Succeeded {
		return p.recordFailure(ctx, log, ev, order)
	}

	// The idempotency gate. Only a delivery that actually flipped
	// pending → paid proceeds; everyone else observes the settled state.
	changed, err := p.store.MarkOrderPaid(ctx, order.ID)
	if err != nil {
		return Result{}, fmt.Errorf("idempotency gate: %w", err)
	}
	if !changed {
		return p.settleLoser(ctx, log, ev, order)
	}

	metrics.OrdersConfirmed.WithLabelValues(ev.Provider).Inc()
	paidAt := p.now().UTC()
	order.PaymentStatus = models.PaymentPaid
	order.PaidAt = &paidAt
	log.Info("order paid", "amount_kobo", ev.AmountKobo, "total_kobo", order.TotalKobo)

	p.reconcileAmount(ctx, ev, order)

	if err := p.store.ConfirmOrder(ctx, order.ID); err != nil {
		// Never unwind the payment over bookkeeping; fulfillment still runs.
		metrics.FulfillmentStepFailures.WithLabelValues("confirm_order").Inc()
		log.Error("confirm order failed", "error", err)
	} else {
		order.FulfillmentStatus = models.FulfillmentConfirmed
	}

	report := p.runFulfillment(ctx, order)

	if p.replay != nil {
		p.replay.MarkSeen(ctx, ev.Provider, ev.TransactionID)
	}
	return Result{Code: CodeConfirmed, Order: order, Report: report}, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, log *slog.Logger, ev gateway.Event, order models.Order) (Result, error) {
	changed, err := p.store.MarkOrderFailed(ctx, order.ID)
	if err != nil {
		return Result{}, fmt.Errorf("record payment failure: %w", err)
	}
	if p.replay != nil {
		p.replay.MarkSeen(ctx, ev.Provider, ev.TransactionID)
	}
	if !changed {
		// Paid (or already failed) orders are never demoted by a late
		// failure notice.
		log.Warn("failure event ignored, order not pending")
		return Result{Code: CodeIgnored, Order: order}, nil
	}
	log.Info("order marked failed")
	order.PaymentStatus = models.PaymentFailed
	return Result{Code: CodeFailedRecorded, Order: order}, nil
}

func (p *Pipeline) settleLoser(ctx context.Context, log *slog.Logger, ev gateway.Event, order models.Order) (Result, error) {
	current, err := p.store.GetOrder(ctx, order.ID)
	if err != nil {
		return Result{}, fmt.Errorf("re-read after gate: %w", err)
	}
	if current.PaymentStatus == models.PaymentPaid {
		metrics.DuplicateDeliveries.WithLabelValues(ev.Provider).Inc()
		if p.replay != nil {
			p.replay.MarkSeen(ctx, ev.Provider, ev.TransactionID)
		}
		log.Info("delivery already processed")
		return Result{Code: CodeAlreadyProcessed, Order: current}, nil
	}
	// A success notice for an order settled as failed/refunded needs a
	// human; acknowledge so the provider stops retrying.
	log.Warn("success event for non-pending, non-paid order",
		"payment_status", current.PaymentStatus)
	return Result{Code: CodeIgnored, Order: current}, nil
}

// Resend re-runs the fulfillment sequence for a paid order, e.g. from the
// admin resend endpoint. Ledger and streak writes are idempotent; already
// delivered notifications may be sent again, which is acceptable.
func (p *Pipeline) Resend(ctx context.Context, orderID string) (*Report, error) {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentPaid {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotPaid, order.Number, order.PaymentStatus)
	}
	return p.runFulfillment(ctx, order), nil
}

// runFulfillment executes the post-confirmation steps. Each step's failure
// is recorded and logged in isolation; no step can reverse the payment
// confirmation or stop its successors.
func (p *Pipeline) runFulfillment(ctx context.Context, order models.Order) *Report {
	report := &Report{OrderID: order.ID}
	log := p.logger.With("order_id", order.ID, "order_number", order.Number)

	var profile models.Profile
	p.step(report, log, "resolve_profile", func() error {
		var err error
		profile, err = p.store.GetOrCreateProfile(ctx, order.CustomerEmail)
		return err
	})
	haveProfile := profile.ID != ""

	p.step(report, log, "credit_rewards", func() error {
		if !haveProfile {
			return errSkipped
		}
		result, err := p.store.AwardOrderRewards(ctx, models.RewardAwardParams{
			OrderID:               order.ID,
			ProfileID:             profile.ID,
			TotalKobo:             order.TotalKobo,
			ReferrerID:            order.ReferredBy,
			KoboPerPoint:          p.policy.KoboPerPoint,
			FirstOrderMinKobo:     p.policy.FirstOrderMinKobo,
			FirstOrderBonusPoints: p.policy.FirstOrderBonusPoints,
			ReferralBonusPoints:   p.policy.ReferralBonusPoints,
		})
		report.Rewards = result
		if err != nil {
			return err
		}
		if !result.Success {
			return errors.New(result.ErrorMessage)
		}
		return nil
	})

	p.step(report, log, "update_streak", func() error {
		if !haveProfile {
			return errSkipped
		}
		streak, completedNow, err := p.store.AdvanceStreak(ctx, profile.ID, p.now(), p.policy.StreakTarget)
		if err != nil {
			return err
		}
		report.StreakRun = streak.Run
		report.StreakCompleted = streak.Completed
		if completedNow {
			granted, err := p.store.AwardStreakBonus(ctx, order.ID, profile.ID, p.policy.StreakBonusPoints)
			if err != nil {
				return err
			}
			report.StreakBonus = granted
		}
		return nil
	})

	p.step(report, log, "sync_external", func() error {
		if p.syncer == nil || !haveProfile {
			return errSkipped
		}
		crmID, err := p.syncer.SyncOrderPaid(ctx, order, profile)
		if crmID != "" && profile.CRMID == "" {
			if setErr := p.store.SetProfileCRMID(ctx, profile.ID, crmID); setErr != nil {
				log.Error("persist crm id failed", "error", setErr)
			}
		}
		return err
	})

	p.step(report, log, "notify", func() error {
		if p.notifier == nil {
			return errSkipped
		}
		report.Notifications = p.notifier.OrderConfirmed(ctx, order)
		return nil
	})

	return report
}

var errSkipped = errors.New("skipped")

func (p *Pipeline) step(report *Report, log *slog.Logger, name string, fn func() error) {
	err := fn()
	switch {
	case errors.Is(err, errSkipped):
		report.Steps = append(report.Steps, StepResult{Name: name, Skipped: true})
	case err != nil:
		metrics.FulfillmentStepFailures.WithLabelValues(name).Inc()
		log.Error("fulfillment step failed", "step", name, "error", err)
		report.Steps = append(report.Steps, StepResult{Name: name, Error: err.Error()})
	default:
		report.Steps = append(report.Steps, StepResult{Name: name, OK: true})
	}
}
