// Package model содержит доменные сущности кошелька и журнала операций.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType описывает тип операции, изменившей баланс кошелька.
type TransactionType string

const (
	TransactionWalletCreation TransactionType = "wallet_creation"
	TransactionDeposit        TransactionType = "deposit"
	TransactionWithdrawal     TransactionType = "withdrawal"
	TransactionBundlePurchase TransactionType = "bundle_purchase"
	TransactionBundleWinning  TransactionType = "bundle_winning"
)

// IsCredit сообщает, увеличивает ли операция данного типа баланс.
func (t TransactionType) IsCredit() bool {
	return t == TransactionDeposit || t == TransactionBundleWinning
}

// IsDebit сообщает, уменьшает ли операция данного типа баланс.
func (t TransactionType) IsDebit() bool {
	return t == TransactionWithdrawal || t == TransactionBundlePurchase
}

// Wallet представляет денежный баланс пользователя. Один кошелёк на пользователя.
type Wallet struct {
	ID        uuid.UUID
	UserID    int64
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditLogEntry описывает неизменяемую запись об одном изменении баланса.
// Amount всегда положителен (или ноль для открытия кошелька), направление задаёт Type.
type AuditLogEntry struct {
	ID            uuid.UUID
	Seq           int64
	WalletID      uuid.UUID
	Type          TransactionType
	TransactionID string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}

// DepositStatus описывает статус пополнения.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusCompleted DepositStatus = "completed"
	DepositStatusFailed    DepositStatus = "failed"
)

// Deposit описывает внешний платёж, ожидающий подтверждения платёжным шлюзом.
type Deposit struct {
	ID                uuid.UUID
	UserID            int64
	WalletID          uuid.UUID
	Reference         string
	Amount            decimal.Decimal
	Description       string
	Status            DepositStatus
	GatewayResponse   string
	Channel           string
	AuthorizationCode string
	IPAddress         string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusDeclined  WithdrawalStatus = "declined"
	WithdrawalStatusCancelled WithdrawalStatus = "cancelled"
)

// Withdrawal описывает заявку пользователя на вывод средств.
type Withdrawal struct {
	ID          uuid.UUID
	UserID      int64
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Description string
	Note        string
	Reference   string
	Status      WithdrawalStatus
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BundleStatus описывает состояние пакета ставок.
type BundleStatus string

const (
	BundleStatusPending BundleStatus = "pending"
	BundleStatusWon     BundleStatus = "won"
	BundleStatusLost    BundleStatus = "lost"
)

// MaxRounds задаёт число раундов, после которого проигрыш становится окончательным.
const MaxRounds = 4

// Bundle описывает многораундовый пакет ставок группы.
type Bundle struct {
	ID                uuid.UUID
	Name              string
	Price             decimal.Decimal
	WinningPercentage decimal.Decimal
	MinPerUser        int
	MaxPerUser        int
	Status            BundleStatus
	CurrentRound      int
	RoundOutcomes     map[int]BundleStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PurchaseStatus описывает статус покупки пакета.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusApproved  PurchaseStatus = "approved"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

// Purchase описывает ставку пользователя на пакет. PayoutAmount фиксируется в момент покупки.
type Purchase struct {
	ID           uuid.UUID
	UserID       int64
	BundleID     uuid.UUID
	Round        int
	Quantity     int
	Amount       decimal.Decimal
	PayoutAmount decimal.Decimal
	Reference    string
	Status       PurchaseStatus
	CreatedAt    time.Time
}

// PayoutStatus описывает статус выплаты.
type PayoutStatus string

const (
	PayoutStatusApproved  PayoutStatus = "approved"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

// Payout описывает итог разрешения пакета для одной покупки участника.
type Payout struct {
	ID         uuid.UUID
	UserID     int64
	BundleID   uuid.UUID
	PurchaseID uuid.UUID
	Amount     decimal.Decimal
	Reference  string
	Status     PayoutStatus
	CreatedAt  time.Time
}

// Actor идентифицирует пользователя, от имени которого выполняется операция.
type Actor struct {
	UserID int64
}

// GatewayConfirmation содержит ответ платёжного шлюза о статусе платежа.
type GatewayConfirmation struct {
	Reference         string
	Success           bool
	Amount            decimal.Decimal
	GatewayResponse   string
	Channel           string
	AuthorizationCode string
	IPAddress         string
	PaidAt            *time.Time
}
