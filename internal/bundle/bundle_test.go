package bundle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/betwallet-ledger/internal/access"
	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
)

const adminID = int64(100)

var admin = model.Actor{UserID: adminID}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// faultyRepo отказывает в блокировке кошельков пользователей из broken.
type faultyRepo struct {
	*repository.MemoryRepository

	mu     sync.Mutex
	broken map[int64]bool
}

type faultyTx struct {
	repository.Tx
	repo *faultyRepo
}

func (r *faultyRepo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.MemoryRepository.InTx(ctx, func(tx repository.Tx) error {
		return fn(&faultyTx{Tx: tx, repo: r})
	})
}

func (r *faultyRepo) setBroken(userID int64, broken bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken[userID] = broken
}

func (t *faultyTx) LockWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	t.repo.mu.Lock()
	broken := t.repo.broken[userID]
	t.repo.mu.Unlock()
	if broken {
		return nil, errors.New("wallet row is unavailable")
	}
	return t.Tx.LockWalletByUser(ctx, userID)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string]int
	rounds map[int64][]int
}

func (n *recordingNotifier) Notify(userID int64, eventType string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[eventType]++
	if next, ok := payload["next_round"].(int); ok {
		if n.rounds == nil {
			n.rounds = make(map[int64][]int)
		}
		n.rounds[userID] = append(n.rounds[userID], next)
	}
}

type fixture struct {
	engine   *Engine
	wallets  *ledger.Service
	repo     *faultyRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &faultyRepo{MemoryRepository: repository.NewMemoryRepository(), broken: map[int64]bool{}}
	wallets := ledger.NewService(repo, nil)
	n := &recordingNotifier{events: map[string]int{}}
	return &fixture{
		engine:   NewEngine(repo, wallets, access.NewAdminSet(adminID), n, nil),
		wallets:  wallets,
		repo:     repo,
		notifier: n,
	}
}

func (f *fixture) user(t *testing.T, userID int64, balance string) *model.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := f.wallets.OpenWallet(ctx, userID)
	require.NoError(t, err)
	if b := dec(balance); b.IsPositive() {
		_, err = f.wallets.Credit(ctx, w.ID, b, model.TransactionDeposit, "SEED")
		require.NoError(t, err)
	}
	return w
}

func (f *fixture) balance(t *testing.T, w *model.Wallet) decimal.Decimal {
	t.Helper()
	got, err := f.wallets.Wallet(context.Background(), w.ID)
	require.NoError(t, err)
	return got.Balance
}

func (f *fixture) bundle(t *testing.T) *model.Bundle {
	t.Helper()
	b, err := f.engine.CreateBundle(context.Background(), admin, Params{
		Name:              "Weekend accumulator " + uuid.NewString()[:8],
		Price:             dec("1000.00"),
		WinningPercentage: dec("20"),
		MinPerUser:        1,
		MaxPerUser:        5,
	})
	require.NoError(t, err)
	return b
}

func TestPayoutAmount(t *testing.T) {
	tests := []struct {
		amount, pct, want string
	}{
		{"2000.00", "20", "2400.00"},
		{"1000.00", "100", "2000.00"},
		{"333.33", "15", "383.33"},
		{"10.00", "1", "10.10"},
	}

	for _, tt := range tests {
		got := PayoutAmount(dec(tt.amount), dec(tt.pct))
		if !got.Equal(dec(tt.want)) {
			t.Fatalf("PayoutAmount(%s, %s) = %s, want %s", tt.amount, tt.pct, got, tt.want)
		}
	}
}

func TestCreateBundleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := Params{Name: "Daily", Price: dec("500.00"), WinningPercentage: dec("10"), MinPerUser: 1, MaxPerUser: 2}

	_, err := f.engine.CreateBundle(ctx, model.Actor{UserID: 1}, valid)
	require.ErrorIs(t, err, model.ErrForbidden)

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"empty name", func(p *Params) { p.Name = "" }},
		{"zero price", func(p *Params) { p.Price = decimal.Zero }},
		{"percentage above 100", func(p *Params) { p.WinningPercentage = dec("101") }},
		{"percentage below 1", func(p *Params) { p.WinningPercentage = dec("0.5") }},
		{"min above max", func(p *Params) { p.MinPerUser, p.MaxPerUser = 3, 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := f.engine.CreateBundle(ctx, admin, p)
			require.ErrorIs(t, err, model.ErrInvalidBundle)
		})
	}

	_, err = f.engine.CreateBundle(ctx, admin, valid)
	require.NoError(t, err)
	_, err = f.engine.CreateBundle(ctx, admin, valid)
	require.ErrorIs(t, err, model.ErrInvalidBundle, "names are unique")
}

func TestWinScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.user(t, 1, "5000.00")
	b := f.bundle(t)

	p, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 2)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(dec("2000.00")))
	assert.True(t, p.PayoutAmount.Equal(dec("2400.00")))
	assert.Equal(t, 1, p.Round)
	assert.True(t, f.balance(t, w).Equal(dec("3000.00")))

	res, err := f.engine.MarkWon(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, res.Payouts, 1)
	assert.Empty(t, res.Failed)
	assert.True(t, res.Payouts[0].Amount.Equal(dec("2400.00")))
	assert.Equal(t, model.PayoutStatusApproved, res.Payouts[0].Status)
	assert.Equal(t, model.BundleStatusWon, res.Bundle.Status)
	assert.Equal(t, model.BundleStatusWon, res.Bundle.RoundOutcomes[1])

	assert.True(t, f.balance(t, w).Equal(dec("5400.00")))

	history, err := f.wallets.History(ctx, w.ID)
	require.NoError(t, err)
	var winnings int
	for _, e := range history {
		if e.Type == model.TransactionBundleWinning {
			winnings++
			assert.True(t, e.Amount.Equal(dec("2400.00")))
			assert.Equal(t, res.Payouts[0].Reference, e.TransactionID)
		}
	}
	assert.Equal(t, 1, winnings)

	_, err = f.engine.MarkWon(ctx, admin, b.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.engine.MarkLost(ctx, admin, b.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	retry, err := f.engine.RetryPayouts(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Empty(t, retry.Payouts)
	assert.True(t, f.balance(t, w).Equal(dec("5400.00")))

	report, err := f.wallets.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 1, f.notifier.events["bundle.won"])
}

func TestFourLossesEndBundle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, 1, "5000.00")
	bob := f.user(t, 2, "5000.00")
	b := f.bundle(t)

	_, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 1)
	require.NoError(t, err)
	_, err = f.engine.PurchaseBundle(ctx, 2, b.ID, 3)
	require.NoError(t, err)

	for round := 1; round < model.MaxRounds; round++ {
		res, err := f.engine.MarkLost(ctx, admin, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BundleStatusPending, res.Bundle.Status)
		assert.Equal(t, round+1, res.Bundle.CurrentRound)
		assert.Empty(t, res.Payouts)
		assert.Equal(t, 2*round, f.notifier.events["bundle.round_advanced"])
	}
	assert.Equal(t, []int{2, 3, 4}, f.notifier.rounds[1])
	assert.Equal(t, []int{2, 3, 4}, f.notifier.rounds[2])

	before := []decimal.Decimal{f.balance(t, alice), f.balance(t, bob)}

	res, err := f.engine.MarkLost(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BundleStatusLost, res.Bundle.Status)
	assert.Equal(t, model.MaxRounds, res.Bundle.CurrentRound)
	for round := 1; round <= model.MaxRounds; round++ {
		assert.Equal(t, model.BundleStatusLost, res.Bundle.RoundOutcomes[round], "round %d", round)
	}

	require.Len(t, res.Payouts, 2)
	for _, p := range res.Payouts {
		assert.True(t, p.Amount.IsZero())
		assert.Equal(t, model.PayoutStatusCancelled, p.Status)
	}

	assert.True(t, f.balance(t, alice).Equal(before[0]))
	assert.True(t, f.balance(t, bob).Equal(before[1]))

	stored, err := f.engine.Payouts(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = f.engine.MarkLost(ctx, admin, b.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	pending, err := f.engine.PendingPayouts(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 2, f.notifier.events["bundle.lost"])
	assert.Equal(t, 2*(model.MaxRounds-1), f.notifier.events["bundle.round_advanced"])
}

func TestPurchaseEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1, "5000.00")
	f.user(t, 2, "5000.00")
	b := f.bundle(t)

	_, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 1)
	require.NoError(t, err)

	_, err = f.engine.MarkLost(ctx, admin, b.ID)
	require.NoError(t, err)

	_, err = f.engine.PurchaseBundle(ctx, 2, b.ID, 1)
	require.ErrorIs(t, err, model.ErrNotEligible)

	p, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Round)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.user(t, 1, "1500.00")
	b := f.bundle(t)

	_, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 0)
	require.ErrorIs(t, err, model.ErrInvalidQuantity)

	_, err = f.engine.PurchaseBundle(ctx, 1, b.ID, 6)
	require.ErrorIs(t, err, model.ErrInvalidQuantity)

	_, err = f.engine.PurchaseBundle(ctx, 1, b.ID, 2)
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	_, err = f.engine.PurchaseBundle(ctx, 1, uuid.New(), 1)
	require.ErrorIs(t, err, model.ErrBundleNotFound)

	_, err = f.engine.PurchaseBundle(ctx, 9, b.ID, 1)
	require.ErrorIs(t, err, model.ErrWalletNotFound)

	assert.True(t, f.balance(t, w).Equal(dec("1500.00")))

	_, err = f.engine.MarkWon(ctx, admin, b.ID)
	require.NoError(t, err)
	_, err = f.engine.PurchaseBundle(ctx, 1, b.ID, 1)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestPayoutFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, 1, "5000.00")
	bob := f.user(t, 2, "5000.00")
	carol := f.user(t, 3, "5000.00")
	b := f.bundle(t)

	for _, userID := range []int64{1, 2, 3} {
		_, err := f.engine.PurchaseBundle(ctx, userID, b.ID, 1)
		require.NoError(t, err)
	}

	f.repo.setBroken(2, true)

	res, err := f.engine.MarkWon(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Len(t, res.Payouts, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, int64(2), res.Failed[0].UserID)
	assert.True(t, res.Failed[0].Amount.Equal(dec("1200.00")))

	assert.True(t, f.balance(t, alice).Equal(dec("5200.00")))
	assert.True(t, f.balance(t, bob).Equal(dec("4000.00")))
	assert.True(t, f.balance(t, carol).Equal(dec("5200.00")))

	pending, err := f.engine.PendingPayouts(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].UserID)

	f.repo.setBroken(2, false)

	_, err = f.engine.RetryPayouts(ctx, model.Actor{UserID: 2}, b.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	retry, err := f.engine.RetryPayouts(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, retry.Payouts, 1)
	assert.Empty(t, retry.Failed)
	assert.True(t, f.balance(t, bob).Equal(dec("5200.00")))

	pending, err = f.engine.PendingPayouts(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	payouts, err := f.engine.Payouts(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 3)
}

func TestConcurrentResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.user(t, 1, "5000.00")
	b := f.bundle(t)

	_, err := f.engine.PurchaseBundle(ctx, 1, b.ID, 1)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.engine.MarkWon(ctx, admin, b.ID)
			} else {
				_, err = f.engine.RetryPayouts(ctx, admin, b.ID)
			}
			if err == nil && i%2 == 0 {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, f.balance(t, w).Equal(dec("5200.00")), "payout must be credited exactly once")
}

func TestResolutionRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.bundle(t)

	_, err := f.engine.MarkWon(ctx, model.Actor{UserID: 1}, b.ID)
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.engine.MarkLost(ctx, model.Actor{UserID: 1}, b.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.engine.MarkWon(ctx, admin, uuid.New())
	require.ErrorIs(t, err, model.ErrBundleNotFound)
}
