package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalafoods/payhook/internal/config"
	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/models"
	"github.com/amalafoods/payhook/internal/notify"
)

// fakeStore mirrors the real store's concurrency semantics with a mutex so
// the gate tests exercise genuine races.
type fakeStore struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	profiles   map[string]*models.Profile // keyed by email
	ledger     map[string]bool            // orderID|reason
	firstBonus map[string]bool            // profileID
	referral   map[string]bool            // referred profileID
	streaks    map[string]*models.Streak
	advisories map[string]models.AmountAdvisory

	rewardsErr error
	profileErr error
	markErr    error
	nextID     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     map[string]*models.Order{},
		profiles:   map[string]*models.Profile{},
		ledger:     map[string]bool{},
		firstBonus: map[string]bool{},
		referral:   map[string]bool{},
		streaks:    map[string]*models.Streak{},
		advisories: map[string]models.AmountAdvisory{},
	}
}

func (f *fakeStore) addOrder(o models.Order) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := o
	if cp.PaymentStatus == "" {
		cp.PaymentStatus = models.PaymentPending
	}
	if cp.FulfillmentStatus == "" {
		cp.FulfillmentStatus = models.FulfillmentPending
	}
	f.orders[cp.ID] = &cp
	return &cp
}

func (f *fakeStore) FindOrderByCorrelation(_ context.Context, keys models.CorrelationKeys) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if keys.Empty() {
		return models.Order{}, models.ErrOrderNotFound
	}
	for _, o := range f.orders {
		if (keys.PaymentReference != "" && o.PaymentReference == keys.PaymentReference) ||
			(keys.WalletID != "" && o.WalletID == keys.WalletID) ||
			(keys.InvoiceReference != "" && o.InvoiceReference == keys.InvoiceReference) {
			return *o, nil
		}
	}
	return models.Order{}, models.ErrOrderNotFound
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	return *o, nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	o, ok := f.orders[id]
	if !ok || o.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	now := time.Now().UTC()
	o.PaymentStatus = models.PaymentPaid
	o.PaidAt = &now
	return true, nil
}

func (f *fakeStore) MarkOrderFailed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	o.PaymentStatus = models.PaymentFailed
	return true, nil
}

func (f *fakeStore) ConfirmOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok && o.FulfillmentStatus == models.FulfillmentPending {
		o.FulfillmentStatus = models.FulfillmentConfirmed
	}
	return nil
}

func (f *fakeStore) GetOrCreateProfile(_ context.Context, email string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return models.Profile{}, f.profileErr
	}
	if p, ok := f.profiles[email]; ok {
		return *p, nil
	}
	f.nextID++
	p := &models.Profile{ID: fmt.Sprintf("prof-%d", f.nextID), Email: email}
	f.profiles[email] = p
	return *p, nil
}

func (f *fakeStore) SetProfileCRMID(_ context.Context, profileID, crmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == profileID {
			p.CRMID = crmID
			return nil
		}
	}
	return models.ErrProfileNotFound
}

func (f *fakeStore) AwardOrderRewards(_ context.Context, p models.RewardAwardParams) (models.RewardAwardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rewardsErr != nil {
		return models.RewardAwardResult{ErrorMessage: f.rewardsErr.Error()}, f.rewardsErr
	}
	key := p.OrderID + "|order_points"
	if f.ledger[key] {
		return models.RewardAwardResult{Success: true, AlreadyApplied: true}, nil
	}
	f.ledger[key] = true
	res := models.RewardAwardResult{Success: true, PointsAwarded: p.TotalKobo / p.KoboPerPoint}
	f.credit(p.ProfileID, res.PointsAwarded)
	if p.TotalKobo >= p.FirstOrderMinKobo && !f.firstBonus[p.ProfileID] {
		f.firstBonus[p.ProfileID] = true
		f.credit(p.ProfileID, p.FirstOrderBonusPoints)
		res.FirstOrderBonus = true
	}
	if p.ReferrerID != "" && !f.referral[p.ProfileID] {
		f.referral[p.ProfileID] = true
		f.credit(p.ReferrerID, p.ReferralBonusPoints)
		res.ReferralProcessed = true
	}
	return res, nil
}

func (f *fakeStore) credit(profileID string, points int64) {
	for _, p := range f.profiles {
		if p.ID == profileID {
			p.PointsBalance += points
		}
	}
}

func (f *fakeStore) AwardStreakBonus(_ context.Context, orderID, profileID string, points int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := orderID + "|streak_bonus"
	if f.ledger[key] {
		return false, nil
	}
	f.ledger[key] = true
	f.credit(profileID, points)
	return true, nil
}

func (f *fakeStore) AdvanceStreak(_ context.Context, profileID string, day time.Time, target int) (models.Streak, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	date := day.UTC().Truncate(24 * time.Hour)
	s, ok := f.streaks[profileID]
	if !ok {
		s = &models.Streak{ProfileID: profileID}
		f.streaks[profileID] = s
	}
	switch {
	case s.Run > 0 && date.Equal(s.LastOrderDate):
		// same day, unchanged
	case s.Run > 0 && date.Sub(s.LastOrderDate) == 24*time.Hour:
		s.Run++
	default:
		s.Run = 1
		s.Completed = false
	}
	s.LastOrderDate = date
	completedNow := false
	if s.Run >= target && !s.Completed {
		s.Completed = true
		completedNow = true
	}
	return *s, completedNow, nil
}

func (f *fakeStore) RecordAmountAdvisory(_ context.Context, adv models.AmountAdvisory) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.advisories[adv.OrderID]; ok {
		return false, nil
	}
	f.advisories[adv.OrderID] = adv
	return true, nil
}

func (f *fakeStore) balance(profileID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == profileID {
			return p.PointsBalance
		}
	}
	return 0
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []string
	alerts    []string
}

func (n *fakeNotifier) OrderConfirmed(_ context.Context, order models.Order) []notify.ChannelResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, order.ID)
	return []notify.ChannelResult{{Channel: "customer_email", Sent: true}}
}

func (n *fakeNotifier) AdminAlert(_ context.Context, subject, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, subject)
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	crmID string
	err   error
}

func (s *fakeSyncer) SyncOrderPaid(_ context.Context, _ models.Order, _ models.Profile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.crmID, s.err
}

type fakeReplay struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeReplay() *fakeReplay { return &fakeReplay{seen: map[string]bool{}} }

func (r *fakeReplay) Seen(_ context.Context, provider, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[provider+":"+id]
}

func (r *fakeReplay) MarkSeen(_ context.Context, provider, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[provider+":"+id] = true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paystackEvent(ref string, amountKobo int64) gateway.Event {
	return gateway.Event{
		Provider:       "paystack",
		Type:           "charge.success",
		TransactionID:  "tx-" + ref,
		Keys:           gateway.CorrelationKeys{PaymentReference: ref},
		AmountKobo:     amountKobo,
		AmountReported: true,
		Succeeded:      true,
	}
}

func TestProcessConfirmsPendingOrder(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		Number:           "AM-1001",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        1_750_000,
		PaymentReference: "ps-ref-1",
	})
	notifier := &fakeNotifier{}
	syncer := &fakeSyncer{crmID: "crm-77"}
	p := New(store, nil, notifier, syncer, config.DefaultPolicy(), testLogger())

	res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 1_750_000))
	require.NoError(t, err)
	assert.Equal(t, CodeConfirmed, res.Code)
	assert.Equal(t, models.PaymentPaid, res.Order.PaymentStatus)
	require.NotNil(t, res.Order.PaidAt)

	got, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.FulfillmentConfirmed, got.FulfillmentStatus)

	require.NotNil(t, res.Report)
	assert.Empty(t, res.Report.Failed())
	// 1,750,000 kobo at 10,000 kobo/point, plus the first-order bonus.
	assert.Equal(t, int64(175), res.Report.Rewards.PointsAwarded)
	assert.True(t, res.Report.Rewards.FirstOrderBonus)
	assert.Equal(t, []string{"ord-1"}, notifier.confirmed)
	assert.Equal(t, 1, syncer.calls)

	prof, err := store.GetOrCreateProfile(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "crm-77", prof.CRMID)
	assert.Empty(t, notifier.alerts, "exact amount must not raise an advisory")
}

func TestRepeatDeliveriesCreditOnce(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		Number:           "AM-1001",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	p := New(store, nil, &fakeNotifier{}, nil, config.DefaultPolicy(), testLogger())

	first, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	require.Equal(t, CodeConfirmed, first.Code)
	profileID := store.profiles["ada@example.com"].ID
	balanceAfterFirst := store.balance(profileID)

	for i := 0; i < 5; i++ {
		res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
		require.NoError(t, err)
		assert.Equal(t, CodeAlreadyProcessed, res.Code)
	}
	assert.Equal(t, balanceAfterFirst, store.balance(profileID))
}

func TestConcurrentDeliveriesSingleWinner(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		Number:           "AM-1001",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	p := New(store, nil, &fakeNotifier{}, nil, config.DefaultPolicy(), testLogger())

	const n = 8
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
			errs[i] = err
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	winners := 0
	for _, res := range results {
		if res.Code == CodeConfirmed {
			winners++
		} else {
			assert.Equal(t, CodeAlreadyProcessed, res.Code)
		}
	}
	assert.Equal(t, 1, winners)

	profileID := store.profiles["ada@example.com"].ID
	// 50 base points plus the 100-point first-order bonus, exactly once.
	assert.Equal(t, int64(150), store.balance(profileID))
}

func TestReplayCacheShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	replay := newFakeReplay()
	p := New(store, replay, &fakeNotifier{}, nil, config.DefaultPolicy(), testLogger())

	first, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	assert.Equal(t, CodeConfirmed, first.Code)

	second, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	assert.Equal(t, CodeAlreadyProcessed, second.Code)
	assert.Nil(t, second.Report)
}

func TestAmountReconciliation(t *testing.T) {
	tests := []struct {
		name         string
		totalKobo    int64
		reportedKobo int64
		reported     bool
		wantAdvisory bool
	}{
		{"exact match", 1_750_000, 1_750_000, true, false},
		{"within tolerance", 1_750_000, 1_750_100, true, false},
		{"beyond tolerance", 1_750_000, 2_500_000, true, true},
		{"under by more than tolerance", 1_750_000, 1_500_000, true, true},
		{"reported zero", 1_750_000, 0, true, true},
		{"amount not reported", 1_750_000, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.addOrder(models.Order{
				ID:               "ord-1",
				Number:           "AM-1001",
				CustomerEmail:    "ada@example.com",
				TotalKobo:        tt.totalKobo,
				PaymentReference: "ps-ref-1",
			})
			notifier := &fakeNotifier{}
			p := New(store, nil, notifier, nil, config.DefaultPolicy(), testLogger())

			ev := paystackEvent("ps-ref-1", tt.reportedKobo)
			ev.AmountReported = tt.reported
			res, err := p.Process(context.Background(), ev)
			require.NoError(t, err)
			// Advisory or not, the payment is always confirmed.
			assert.Equal(t, CodeConfirmed, res.Code)

			if tt.wantAdvisory {
				require.Contains(t, store.advisories, "ord-1")
				adv := store.advisories["ord-1"]
				assert.Equal(t, tt.totalKobo, adv.ExpectedKobo)
				assert.Equal(t, tt.reportedKobo, adv.ReportedKobo)
				assert.Len(t, notifier.alerts, 1)
			} else {
				assert.NotContains(t, store.advisories, "ord-1")
				assert.Empty(t, notifier.alerts)
			}
		})
	}
}

func TestFailureEventMarksOrderFailed(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	ev := paystackEvent("ps-ref-1", 500_000)
	ev.Type = "charge.failed"
	ev.Succeeded = false

	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, CodeFailedRecorded, res.Code)

	got, _ := store.GetOrder(context.Background(), "ord-1")
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
}

func TestLateFailureNeverDemotesPaidOrder(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	p := New(store, nil, &fakeNotifier{}, nil, config.DefaultPolicy(), testLogger())

	_, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)

	ev := paystackEvent("ps-ref-1", 500_000)
	ev.TransactionID = "tx-late-failure"
	ev.Succeeded = false
	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, CodeIgnored, res.Code)

	got, _ := store.GetOrder(context.Background(), "ord-1")
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestSuccessEventForFailedOrderIgnored(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentStatus:    models.PaymentFailed,
		PaymentReference: "ps-ref-1",
	})
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	assert.Equal(t, CodeIgnored, res.Code)
	assert.Nil(t, res.Report)
}

func TestUnmatchedEventReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	_, err := p.Process(context.Background(), paystackEvent("no-such-ref", 500_000))
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestGateErrorIsTransient(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	store.markErr = errors.New("connection reset")
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	_, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.Error(t, err)

	// Order stays pending, so the provider's retry can win the gate.
	got, _ := store.GetOrder(context.Background(), "ord-1")
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestRewardFailureDoesNotBlockRemainingSteps(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	store.rewardsErr = errors.New("deadlock detected")
	notifier := &fakeNotifier{}
	syncer := &fakeSyncer{}
	p := New(store, nil, notifier, syncer, config.DefaultPolicy(), testLogger())

	res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	assert.Equal(t, CodeConfirmed, res.Code)
	assert.Contains(t, res.Report.Failed(), "credit_rewards")

	// Later steps still ran.
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, []string{"ord-1"}, notifier.confirmed)
}

func TestProfileFailureSkipsDependentStepsButNotifies(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ps-ref-1",
	})
	store.profileErr = errors.New("permission denied")
	notifier := &fakeNotifier{}
	p := New(store, nil, notifier, &fakeSyncer{}, config.DefaultPolicy(), testLogger())

	res, err := p.Process(context.Background(), paystackEvent("ps-ref-1", 500_000))
	require.NoError(t, err)
	assert.Equal(t, CodeConfirmed, res.Code)
	assert.Contains(t, res.Report.Failed(), "resolve_profile")

	skipped := map[string]bool{}
	for _, s := range res.Report.Steps {
		if s.Skipped {
			skipped[s.Name] = true
		}
	}
	assert.True(t, skipped["credit_rewards"])
	assert.True(t, skipped["update_streak"])
	assert.True(t, skipped["sync_external"])
	assert.Equal(t, []string{"ord-1"}, notifier.confirmed)
}

func TestFirstOrderBonusGrantedOnce(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        200_000,
		PaymentReference: "ref-1",
	})
	store.addOrder(models.Order{
		ID:               "ord-2",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        200_000,
		PaymentReference: "ref-2",
	})
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	first, err := p.Process(context.Background(), paystackEvent("ref-1", 200_000))
	require.NoError(t, err)
	assert.True(t, first.Report.Rewards.FirstOrderBonus)

	second, err := p.Process(context.Background(), paystackEvent("ref-2", 200_000))
	require.NoError(t, err)
	assert.False(t, second.Report.Rewards.FirstOrderBonus)
}

func TestReferralBonusCreditsReferrer(t *testing.T) {
	store := newFakeStore()
	referrer, err := store.GetOrCreateProfile(context.Background(), "tunde@example.com")
	require.NoError(t, err)
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        200_000,
		PaymentReference: "ref-1",
		ReferredBy:       referrer.ID,
	})
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	res, err := p.Process(context.Background(), paystackEvent("ref-1", 200_000))
	require.NoError(t, err)
	assert.True(t, res.Report.Rewards.ReferralProcessed)
	assert.Equal(t, config.DefaultPolicy().ReferralBonusPoints, store.balance(referrer.ID))
}

func TestStreakBonusOnTargetDay(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	target := config.DefaultPolicy().StreakTarget

	var last Result
	for day := 0; day < target; day++ {
		p.now = func() time.Time { return base.AddDate(0, 0, day) }
		ref := fmt.Sprintf("ref-%d", day)
		store.addOrder(models.Order{
			ID:               "ord-" + ref,
			CustomerEmail:    "ada@example.com",
			TotalKobo:        50_000,
			PaymentReference: ref,
		})
		res, err := p.Process(context.Background(), paystackEvent(ref, 50_000))
		require.NoError(t, err)
		last = res
	}

	assert.Equal(t, target, last.Report.StreakRun)
	assert.True(t, last.Report.StreakCompleted)
	assert.True(t, last.Report.StreakBonus)
}

func TestResendReRunsFulfillmentIdempotently(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{
		ID:               "ord-1",
		CustomerEmail:    "ada@example.com",
		TotalKobo:        500_000,
		PaymentReference: "ref-1",
	})
	notifier := &fakeNotifier{}
	p := New(store, nil, notifier, nil, config.DefaultPolicy(), testLogger())

	_, err := p.Process(context.Background(), paystackEvent("ref-1", 500_000))
	require.NoError(t, err)
	profileID := store.profiles["ada@example.com"].ID
	balance := store.balance(profileID)

	report, err := p.Resend(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, report.Rewards.AlreadyApplied)
	assert.Equal(t, balance, store.balance(profileID), "resend must not double-credit")
	assert.Len(t, notifier.confirmed, 2, "resend may notify again")
}

func TestResendRejectsUnpaidOrder(t *testing.T) {
	store := newFakeStore()
	store.addOrder(models.Order{ID: "ord-1", CustomerEmail: "ada@example.com", TotalKobo: 500_000})
	p := New(store, nil, nil, nil, config.DefaultPolicy(), testLogger())

	_, err := p.Resend(context.Background(), "ord-1")
	assert.ErrorIs(t, err, ErrOrderNotPaid)
}
