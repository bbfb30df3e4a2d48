// Package ledger реализует единственный способ изменения баланса кошелька.
// Каждое изменение баланса сопровождается ровно одной записью журнала операций
// в той же транзакции хранилища.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
)

// DefaultMaxAttempts задаёт число попыток транзакции при конкурентном изменении кошелька.
const DefaultMaxAttempts = 5

// Service изменяет балансы кошельков и ведёт журнал операций.
type Service struct {
	repo        repository.Repository
	logger      *zap.Logger
	maxAttempts int
}

// NewService создаёт сервис кошельков поверх хранилища.
func NewService(repo repository.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Mutation описывает одно изменение баланса.
type Mutation struct {
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	Type          model.TransactionType
	TransactionID string
}

// ValidAmount сообщает, что сумма положительна и не содержит долей меньше копейки.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// RunInTx выполняет fn в транзакции и повторяет её целиком, если кошелёк был изменён конкурентно.
// После исчерпания попыток возвращается ошибка, оборачивающая model.ErrConcurrentModification.
func (s *Service) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.repo.InTx(ctx, fn)
		if !errors.Is(err, model.ErrConcurrentModification) {
			return err
		}

		conflictRetries.Inc()
		s.logger.Debug("concurrent wallet modification, retrying", zap.Int("attempt", attempt))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

// Apply изменяет баланс внутри уже открытой транзакции вызывающего.
// Строка кошелька блокируется, новый баланс записывается с проверкой версии,
// затем добавляется запись журнала. Списание сверх баланса отклоняется.
func (s *Service) Apply(ctx context.Context, tx repository.Tx, m Mutation) (*model.AuditLogEntry, error) {
	if !ValidAmount(m.Amount) {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, m.Amount)
	}
	if !m.Type.IsCredit() && !m.Type.IsDebit() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidTransactionType, m.Type)
	}

	w, err := tx.LockWallet(ctx, m.WalletID)
	if err != nil {
		return nil, err
	}

	after := w.Balance.Add(m.Amount)
	if m.Type.IsDebit() {
		if w.Balance.LessThan(m.Amount) {
			return nil, fmt.Errorf("%w: balance %s, requested %s", model.ErrInsufficientBalance, w.Balance, m.Amount)
		}
		after = w.Balance.Sub(m.Amount)
	}

	if err := tx.UpdateWalletBalance(ctx, w.ID, after, w.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: wallet %s", model.ErrConcurrentModification, w.ID)
		}
		return nil, err
	}

	entry := &model.AuditLogEntry{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          m.Type,
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  after,
	}
	if err := tx.InsertAuditEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateBalance применяет изменение баланса в отдельной транзакции.
// Направление определяется типом операции, сумма всегда положительна.
func (s *Service) UpdateBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, txID string) (*model.AuditLogEntry, error) {
	start := time.Now()

	var entry *model.AuditLogEntry
	err := s.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		entry, err = s.Apply(ctx, tx, Mutation{
			WalletID:      walletID,
			Amount:        amount,
			Type:          txType,
			TransactionID: txID,
		})
		return err
	})

	mutationDuration.WithLabelValues(string(txType)).Observe(time.Since(start).Seconds())
	mutationsTotal.WithLabelValues(string(txType), resultLabel(err)).Inc()

	if err != nil {
		s.logger.Warn("wallet mutation failed",
			zap.String("wallet_id", walletID.String()),
			zap.String("type", string(txType)),
			zap.String("transaction_id", txID),
			zap.Error(err),
		)
		return nil, err
	}
	return entry, nil
}

// Credit зачисляет средства на кошелёк.
func (s *Service) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, txID string) (*model.AuditLogEntry, error) {
	if !txType.IsCredit() {
		return nil, fmt.Errorf("%w: %s is not a credit", model.ErrInvalidTransactionType, txType)
	}
	return s.UpdateBalance(ctx, walletID, amount, txType, txID)
}

// Debit списывает средства с кошелька.
func (s *Service) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, txID string) (*model.AuditLogEntry, error) {
	if !txType.IsDebit() {
		return nil, fmt.Errorf("%w: %s is not a debit", model.ErrInvalidTransactionType, txType)
	}
	return s.UpdateBalance(ctx, walletID, amount, txType, txID)
}

// OpenWallet создаёт кошелёк с нулевым балансом при подтверждении учётной записи пользователя
// и записывает в журнал операцию открытия.
func (s *Service) OpenWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	w := &model.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Balance: decimal.Zero,
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertWallet(ctx, w); err != nil {
			return err
		}
		return tx.InsertAuditEntry(ctx, &model.AuditLogEntry{
			ID:            uuid.New(),
			WalletID:      w.ID,
			Type:          model.TransactionWalletCreation,
			TransactionID: w.ID.String(),
			Amount:        decimal.Zero,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  decimal.Zero,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet opened", zap.Int64("user_id", userID), zap.String("wallet_id", w.ID.String()))
	return w, nil
}

// Wallet возвращает кошелёк по идентификатору.
func (s *Service) Wallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, id)
}

// WalletByUser возвращает кошелёк пользователя.
func (s *Service) WalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.repo.GetWalletByUser(ctx, userID)
}

// History возвращает журнал операций кошелька в порядке применения.
func (s *Service) History(ctx context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error) {
	if _, err := s.repo.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.repo.ListAuditEntries(ctx, walletID)
}
