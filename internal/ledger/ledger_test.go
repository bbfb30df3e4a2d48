package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return NewService(repo, nil), repo
}

func openFunded(t *testing.T, svc *Service, userID int64, balance string) *model.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := svc.OpenWallet(ctx, userID)
	require.NoError(t, err)
	if b := dec(balance); b.IsPositive() {
		_, err = svc.Credit(ctx, w.ID, b, model.TransactionDeposit, "SEED"+fmt.Sprint(userID))
		require.NoError(t, err)
	}
	return w
}

func TestCreditScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := openFunded(t, svc, 1, "5000.00")

	entry, err := svc.Credit(ctx, w.ID, dec("1500.00"), model.TransactionDeposit, "DEP1")
	require.NoError(t, err)

	assert.True(t, entry.BalanceBefore.Equal(dec("5000.00")), "before: %s", entry.BalanceBefore)
	assert.True(t, entry.BalanceAfter.Equal(dec("6500.00")), "after: %s", entry.BalanceAfter)
	assert.Equal(t, "DEP1", entry.TransactionID)
	assert.Equal(t, model.TransactionDeposit, entry.Type)

	got, err := svc.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("6500.00")))

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.TransactionWalletCreation, history[0].Type)
	assert.Equal(t, "DEP1", history[2].TransactionID)
}

func TestUpdateBalanceValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := openFunded(t, svc, 1, "100.00")

	tests := []struct {
		name    string
		wallet  uuid.UUID
		amount  string
		txType  model.TransactionType
		wantErr error
	}{
		{"zero amount", w.ID, "0", model.TransactionDeposit, model.ErrInvalidAmount},
		{"negative amount", w.ID, "-5.00", model.TransactionDeposit, model.ErrInvalidAmount},
		{"sub-cent amount", w.ID, "1.005", model.TransactionDeposit, model.ErrInvalidAmount},
		{"unknown wallet", uuid.New(), "5.00", model.TransactionDeposit, model.ErrWalletNotFound},
		{"wallet creation is not a mutation", w.ID, "5.00", model.TransactionWalletCreation, model.ErrInvalidTransactionType},
		{"debit over balance", w.ID, "100.01", model.TransactionWithdrawal, model.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateBalance(ctx, tt.wallet, dec(tt.amount), tt.txType, "X")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "failed mutations must not leave audit entries")

	got, err := svc.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100.00")))
}

func TestCreditDebitDirection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := openFunded(t, svc, 1, "100.00")

	_, err := svc.Credit(ctx, w.ID, dec("10.00"), model.TransactionWithdrawal, "W1")
	require.ErrorIs(t, err, model.ErrInvalidTransactionType)

	_, err = svc.Debit(ctx, w.ID, dec("10.00"), model.TransactionDeposit, "D1")
	require.ErrorIs(t, err, model.ErrInvalidTransactionType)

	entry, err := svc.Debit(ctx, w.ID, dec("100.00"), model.TransactionBundlePurchase, "P1")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.IsZero())
	assert.True(t, entry.Amount.Equal(dec("100.00")))
}

func TestConcurrentCredits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := openFunded(t, svc, 1, "250.00")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Credit(ctx, w.ID, dec("10.00"), model.TransactionDeposit, fmt.Sprintf("C%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("750.00")), "balance: %s", got.Balance)

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, history, n+2)

	report, err := svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "discrepancies: %+v", report.Discrepancies)
}

// staleRepo отдаёт транзакции, в которых первые conflicts обновлений баланса
// завершаются конфликтом версий.
type staleRepo struct {
	*repository.MemoryRepository

	mu        sync.Mutex
	conflicts int
}

type staleTx struct {
	repository.Tx
	repo *staleRepo
}

func (r *staleRepo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.MemoryRepository.InTx(ctx, func(tx repository.Tx) error {
		return fn(&staleTx{Tx: tx, repo: r})
	})
}

func (t *staleTx) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if t.repo.conflicts > 0 {
		t.repo.conflicts--
		return repository.ErrVersionConflict
	}
	return t.Tx.UpdateWalletBalance(ctx, id, balance, expectedVersion)
}

func TestVersionConflictIsRetried(t *testing.T) {
	repo := &staleRepo{MemoryRepository: repository.NewMemoryRepository()}
	svc := NewService(repo, nil)
	ctx := context.Background()

	w, err := svc.OpenWallet(ctx, 1)
	require.NoError(t, err)

	repo.conflicts = DefaultMaxAttempts - 1
	entry, err := svc.Credit(ctx, w.ID, dec("20.00"), model.TransactionDeposit, "D1")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(dec("20.00")))

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "retried attempts must not leave audit entries")
}

func TestVersionConflictExhaustsRetries(t *testing.T) {
	repo := &staleRepo{MemoryRepository: repository.NewMemoryRepository()}
	svc := NewService(repo, nil)
	ctx := context.Background()

	w, err := svc.OpenWallet(ctx, 1)
	require.NoError(t, err)

	repo.conflicts = DefaultMaxAttempts
	_, err = svc.Credit(ctx, w.ID, dec("20.00"), model.TransactionDeposit, "D1")
	require.ErrorIs(t, err, model.ErrConcurrentModification)

	got, err := svc.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestOpenWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.OpenWallet(ctx, 7)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	_, err = svc.OpenWallet(ctx, 7)
	require.ErrorIs(t, err, model.ErrWalletExists)

	byUser, err := svc.WalletByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, w.ID, byUser.ID)

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TransactionWalletCreation, history[0].Type)
	assert.True(t, history[0].Amount.IsZero())
	assert.True(t, history[0].BalanceAfter.IsZero())
	assert.LessOrEqual(t, len(history[0].TransactionID), repository.MaxTransactionIDLen)
}

func TestTransactionIDLongerThanColumnRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.OpenWallet(ctx, 1)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, w.ID, dec("10.00"), model.TransactionDeposit, strings.Repeat("X", repository.MaxTransactionIDLen+1))
	require.ErrorIs(t, err, repository.ErrTransactionIDTooLong)

	got, err := svc.Wallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	history, err := svc.History(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	w := &model.Wallet{ID: uuid.New(), Balance: dec("150.00")}
	entries := []model.AuditLogEntry{
		{Seq: 1, Type: model.TransactionWalletCreation, Amount: decimal.Zero, BalanceBefore: decimal.Zero, BalanceAfter: decimal.Zero},
		{Seq: 2, Type: model.TransactionDeposit, Amount: dec("100.00"), BalanceBefore: decimal.Zero, BalanceAfter: dec("100.00")},
		{Seq: 3, Type: model.TransactionDeposit, Amount: dec("40.00"), BalanceBefore: dec("100.00"), BalanceAfter: dec("150.00")},
	}

	report := replay(w, entries)
	assert.False(t, report.Consistent())
	assert.True(t, report.Replayed.Equal(dec("140.00")))
	require.NotEmpty(t, report.Discrepancies)
	assert.Equal(t, int64(3), report.Discrepancies[0].Seq)
}

func TestReconcileUnknownWallet(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(), uuid.New())
	require.ErrorIs(t, err, model.ErrWalletNotFound)
}
