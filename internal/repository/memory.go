package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Транзакции выполняются последовательно
// над копией состояния и применяются только при успешном завершении.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

var _ Repository = (*MemoryRepository)(nil)

type participantKey struct {
	bundleID uuid.UUID
	userID   int64
}

type memState struct {
	seq          int64
	wallets      map[uuid.UUID]model.Wallet
	audit        []model.AuditLogEntry
	deposits     map[string]model.Deposit
	withdrawals  map[uuid.UUID]model.Withdrawal
	bundles      map[uuid.UUID]model.Bundle
	participants map[participantKey]struct{}
	purchases    []model.Purchase
	payouts      []model.Payout
}

func newMemState() *memState {
	return &memState{
		wallets:      make(map[uuid.UUID]model.Wallet),
		deposits:     make(map[string]model.Deposit),
		withdrawals:  make(map[uuid.UUID]model.Withdrawal),
		bundles:      make(map[uuid.UUID]model.Bundle),
		participants: make(map[participantKey]struct{}),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:          s.seq,
		wallets:      make(map[uuid.UUID]model.Wallet, len(s.wallets)),
		audit:        append([]model.AuditLogEntry(nil), s.audit...),
		deposits:     make(map[string]model.Deposit, len(s.deposits)),
		withdrawals:  make(map[uuid.UUID]model.Withdrawal, len(s.withdrawals)),
		bundles:      make(map[uuid.UUID]model.Bundle, len(s.bundles)),
		participants: make(map[participantKey]struct{}, len(s.participants)),
		purchases:    append([]model.Purchase(nil), s.purchases...),
		payouts:      append([]model.Payout(nil), s.payouts...),
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.bundles {
		v.RoundOutcomes = cloneOutcomes(v.RoundOutcomes)
		c.bundles[k] = v
	}
	for k := range s.participants {
		c.participants[k] = struct{}{}
	}
	return c
}

func cloneOutcomes(in map[int]model.BundleStatus) map[int]model.BundleStatus {
	out := make(map[int]model.BundleStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

// InTx выполняет fn над копией состояния. Изменения видны другим только после успешного fn.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	draft := r.state.clone()
	if err := fn(&memTx{s: draft}); err != nil {
		return err
	}
	r.state = draft
	return nil
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) read() *memTx {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &memTx{s: r.state.clone()}
}

func (r *MemoryRepository) GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return r.read().GetWallet(ctx, id)
}

func (r *MemoryRepository) GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return r.read().GetWalletByUser(ctx, userID)
}

func (r *MemoryRepository) ListAuditEntries(ctx context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error) {
	return r.read().ListAuditEntries(ctx, walletID)
}

func (r *MemoryRepository) GetDepositByReference(ctx context.Context, reference string) (*model.Deposit, error) {
	return r.read().GetDepositByReference(ctx, reference)
}

func (r *MemoryRepository) ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int) ([]model.Deposit, error) {
	return r.read().ListPendingDeposits(ctx, createdBefore, limit)
}

func (r *MemoryRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return r.read().GetWithdrawal(ctx, id)
}

func (r *MemoryRepository) GetBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	return r.read().GetBundle(ctx, id)
}

func (r *MemoryRepository) ListPurchasesByBundle(ctx context.Context, bundleID uuid.UUID, status model.PurchaseStatus) ([]model.Purchase, error) {
	return r.read().ListPurchasesByBundle(ctx, bundleID, status)
}

func (r *MemoryRepository) ListUnpaidPurchases(ctx context.Context, bundleID uuid.UUID) ([]model.Purchase, error) {
	return r.read().ListUnpaidPurchases(ctx, bundleID)
}

func (r *MemoryRepository) ListPayoutsByBundle(ctx context.Context, bundleID uuid.UUID) ([]model.Payout, error) {
	return r.read().ListPayoutsByBundle(ctx, bundleID)
}

type memTx struct {
	s *memState
}

var _ Tx = (*memTx)(nil)

func (t *memTx) GetWallet(_ context.Context, id uuid.UUID) (*model.Wallet, error) {
	w, ok := t.s.wallets[id]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	return &w, nil
}

func (t *memTx) GetWalletByUser(_ context.Context, userID int64) (*model.Wallet, error) {
	for _, w := range t.s.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, model.ErrWalletNotFound
}

func (t *memTx) InsertWallet(ctx context.Context, w *model.Wallet) error {
	if _, err := t.GetWalletByUser(ctx, w.UserID); err == nil {
		return fmt.Errorf("%w: user %d", model.ErrWalletExists, w.UserID)
	}
	now := time.Now()
	w.Version, w.CreatedAt, w.UpdatedAt = 0, now, now
	t.s.wallets[w.ID] = *w
	return nil
}

func (t *memTx) LockWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return t.GetWallet(ctx, id)
}

func (t *memTx) LockWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return t.GetWalletByUser(ctx, userID)
}

func (t *memTx) UpdateWalletBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error {
	w, ok := t.s.wallets[id]
	if !ok || w.Version != expectedVersion {
		return ErrVersionConflict
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now()
	t.s.wallets[id] = w
	return nil
}

func (t *memTx) InsertAuditEntry(_ context.Context, e *model.AuditLogEntry) error {
	if _, ok := t.s.wallets[e.WalletID]; !ok {
		return model.ErrWalletNotFound
	}
	if len(e.TransactionID) > MaxTransactionIDLen {
		return fmt.Errorf("%w: %d", ErrTransactionIDTooLong, len(e.TransactionID))
	}
	t.s.seq++
	e.Seq = t.s.seq
	e.CreatedAt = time.Now()
	t.s.audit = append(t.s.audit, *e)
	return nil
}

func (t *memTx) ListAuditEntries(_ context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error) {
	var res []model.AuditLogEntry
	for _, e := range t.s.audit {
		if e.WalletID == walletID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (t *memTx) InsertDeposit(_ context.Context, d *model.Deposit) error {
	if _, ok := t.s.deposits[d.Reference]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, d.Reference)
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	t.s.deposits[d.Reference] = *d
	return nil
}

func (t *memTx) GetDepositByReference(_ context.Context, reference string) (*model.Deposit, error) {
	d, ok := t.s.deposits[reference]
	if !ok {
		return nil, model.ErrDepositNotFound
	}
	return &d, nil
}

func (t *memTx) LockDeposit(ctx context.Context, reference string) (*model.Deposit, error) {
	return t.GetDepositByReference(ctx, reference)
}

func (t *memTx) UpdateDeposit(_ context.Context, d *model.Deposit) error {
	if _, ok := t.s.deposits[d.Reference]; !ok {
		return model.ErrDepositNotFound
	}
	d.UpdatedAt = time.Now()
	t.s.deposits[d.Reference] = *d
	return nil
}

func (t *memTx) ListPendingDeposits(_ context.Context, createdBefore time.Time, limit int) ([]model.Deposit, error) {
	var res []model.Deposit
	for _, d := range t.s.deposits {
		if d.Status == model.DepositStatusPending && d.CreatedAt.Before(createdBefore) {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (t *memTx) InsertWithdrawal(_ context.Context, w *model.Withdrawal) error {
	for _, existing := range t.s.withdrawals {
		if existing.Reference == w.Reference {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, w.Reference)
		}
	}
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	t.s.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) GetWithdrawal(_ context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	w, ok := t.s.withdrawals[id]
	if !ok {
		return nil, model.ErrWithdrawalNotFound
	}
	return &w, nil
}

func (t *memTx) LockWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *memTx) UpdateWithdrawal(_ context.Context, w *model.Withdrawal) error {
	if _, ok := t.s.withdrawals[w.ID]; !ok {
		return model.ErrWithdrawalNotFound
	}
	w.UpdatedAt = time.Now()
	t.s.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) InsertBundle(_ context.Context, b *model.Bundle) error {
	for _, existing := range t.s.bundles {
		if existing.Name == b.Name {
			return fmt.Errorf("%w: name %q is taken", model.ErrInvalidBundle, b.Name)
		}
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	stored := *b
	stored.RoundOutcomes = cloneOutcomes(b.RoundOutcomes)
	t.s.bundles[b.ID] = stored
	return nil
}

func (t *memTx) GetBundle(_ context.Context, id uuid.UUID) (*model.Bundle, error) {
	b, ok := t.s.bundles[id]
	if !ok {
		return nil, model.ErrBundleNotFound
	}
	b.RoundOutcomes = cloneOutcomes(b.RoundOutcomes)
	return &b, nil
}

func (t *memTx) LockBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	return t.GetBundle(ctx, id)
}

func (t *memTx) UpdateBundle(_ context.Context, b *model.Bundle) error {
	if _, ok := t.s.bundles[b.ID]; !ok {
		return model.ErrBundleNotFound
	}
	b.UpdatedAt = time.Now()
	stored := *b
	stored.RoundOutcomes = cloneOutcomes(b.RoundOutcomes)
	t.s.bundles[b.ID] = stored
	return nil
}

func (t *memTx) IsParticipant(_ context.Context, bundleID uuid.UUID, userID int64) (bool, error) {
	_, ok := t.s.participants[participantKey{bundleID: bundleID, userID: userID}]
	return ok, nil
}

func (t *memTx) AddParticipant(_ context.Context, bundleID uuid.UUID, userID int64) error {
	t.s.participants[participantKey{bundleID: bundleID, userID: userID}] = struct{}{}
	return nil
}

func (t *memTx) InsertPurchase(_ context.Context, p *model.Purchase) error {
	for _, existing := range t.s.purchases {
		if existing.Reference == p.Reference {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, p.Reference)
		}
	}
	p.CreatedAt = time.Now()
	t.s.purchases = append(t.s.purchases, *p)
	return nil
}

func (t *memTx) ListPurchasesByBundle(_ context.Context, bundleID uuid.UUID, status model.PurchaseStatus) ([]model.Purchase, error) {
	var res []model.Purchase
	for _, p := range t.s.purchases {
		if p.BundleID == bundleID && p.Status == status {
			res = append(res, p)
		}
	}
	return res, nil
}

func (t *memTx) ListUnpaidPurchases(ctx context.Context, bundleID uuid.UUID) ([]model.Purchase, error) {
	paid := make(map[uuid.UUID]struct{})
	for _, p := range t.s.payouts {
		paid[p.PurchaseID] = struct{}{}
	}

	approved, _ := t.ListPurchasesByBundle(ctx, bundleID, model.PurchaseStatusApproved)
	var res []model.Purchase
	for _, p := range approved {
		if _, ok := paid[p.ID]; !ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (t *memTx) InsertPayout(_ context.Context, p *model.Payout) error {
	for _, existing := range t.s.payouts {
		if existing.PurchaseID == p.PurchaseID {
			return fmt.Errorf("%w: %s", ErrPayoutExists, p.PurchaseID)
		}
	}
	p.CreatedAt = time.Now()
	t.s.payouts = append(t.s.payouts, *p)
	return nil
}

func (t *memTx) ListPayoutsByBundle(_ context.Context, bundleID uuid.UUID) ([]model.Payout, error) {
	var res []model.Payout
	for _, p := range t.s.payouts {
		if p.BundleID == bundleID {
			res = append(res, p)
		}
	}
	return res, nil
}
