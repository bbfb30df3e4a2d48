package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

var (
	// ErrVersionConflict возвращается, если версия кошелька изменилась между чтением и записью.
	ErrVersionConflict = errors.New("wallet version conflict")
	// ErrDuplicateReference возвращается при нарушении уникальности референса.
	ErrDuplicateReference = errors.New("duplicate reference")
	// ErrPayoutExists возвращается, если выплата по покупке уже создана.
	ErrPayoutExists = errors.New("payout already exists for purchase")
	// ErrTransactionIDTooLong возвращается, если идентификатор операции не помещается в журнал.
	ErrTransactionIDTooLong = errors.New("audit transaction id too long")
)

// MaxTransactionIDLen задаёт ширину колонки transaction_id журнала операций.
const MaxTransactionIDLen = 64

// Queries описывает операции чтения, доступные как внутри, так и вне транзакции.
type Queries interface {
	GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error)
	GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error)
	ListAuditEntries(ctx context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error)

	GetDepositByReference(ctx context.Context, reference string) (*model.Deposit, error)
	ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int) ([]model.Deposit, error)

	GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)

	GetBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error)
	ListPurchasesByBundle(ctx context.Context, bundleID uuid.UUID, status model.PurchaseStatus) ([]model.Purchase, error)
	ListUnpaidPurchases(ctx context.Context, bundleID uuid.UUID) ([]model.Purchase, error)
	ListPayoutsByBundle(ctx context.Context, bundleID uuid.UUID) ([]model.Payout, error)
}

// Tx описывает операции в рамках одной транзакции хранилища.
// Методы Lock* блокируют строку до конца транзакции.
type Tx interface {
	Queries

	InsertWallet(ctx context.Context, w *model.Wallet) error
	LockWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error)
	LockWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error)
	UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error
	InsertAuditEntry(ctx context.Context, e *model.AuditLogEntry) error

	InsertDeposit(ctx context.Context, d *model.Deposit) error
	LockDeposit(ctx context.Context, reference string) (*model.Deposit, error)
	UpdateDeposit(ctx context.Context, d *model.Deposit) error

	InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error
	LockWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w *model.Withdrawal) error

	InsertBundle(ctx context.Context, b *model.Bundle) error
	LockBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error)
	UpdateBundle(ctx context.Context, b *model.Bundle) error
	IsParticipant(ctx context.Context, bundleID uuid.UUID, userID int64) (bool, error)
	AddParticipant(ctx context.Context, bundleID uuid.UUID, userID int64) error
	InsertPurchase(ctx context.Context, p *model.Purchase) error
	InsertPayout(ctx context.Context, p *model.Payout) error
}

// Repository хранит кошельки, журнал операций и связанные записи.
type Repository interface {
	Queries
	// InTx выполняет fn в одной транзакции. Ошибка fn откатывает все изменения.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
