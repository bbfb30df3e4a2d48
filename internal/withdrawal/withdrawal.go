// Package withdrawal реализует заявки на вывод средств с подтверждением администратором.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/access"
	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/notify"
	"github.com/mmeshcher/betwallet-ledger/internal/reference"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
	"github.com/mmeshcher/betwallet-ledger/internal/validation"
)

const referenceAttempts = 3

// Workflow управляет заявками на вывод средств.
type Workflow struct {
	repo     repository.Repository
	wallets  *ledger.Service
	auth     access.Authorizer
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewWorkflow создаёт процесс вывода средств.
func NewWorkflow(repo repository.Repository, wallets *ledger.Service, auth access.Authorizer, notifier notify.Notifier, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Workflow{
		repo:     repo,
		wallets:  wallets,
		auth:     auth,
		notifier: notifier,
		logger:   logger,
	}
}

// RequestWithdrawal создаёт заявку в статусе pending. Проверка баланса здесь предварительная,
// окончательная выполняется при одобрении.
func (w *Workflow) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.Withdrawal, error) {
	if !ledger.ValidAmount(amount) {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, amount)
	}
	if !validation.IsValidDescription(description, true) {
		return nil, fmt.Errorf("%w: must be %d to %d characters", model.ErrInvalidDescription,
			validation.MinDescriptionLen, validation.MaxDescriptionLen)
	}

	wallet, err := w.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(wallet.Balance) {
		return nil, fmt.Errorf("%w: balance %s, requested %s", model.ErrInsufficientBalance, wallet.Balance, amount)
	}

	wd := &model.Withdrawal{
		ID:          uuid.New(),
		UserID:      userID,
		WalletID:    wallet.ID,
		Amount:      amount,
		Description: description,
		Status:      model.WithdrawalStatusPending,
	}

	for attempt := 1; ; attempt++ {
		wd.Reference = reference.New()
		err = w.repo.InTx(ctx, func(tx repository.Tx) error {
			return tx.InsertWithdrawal(ctx, wd)
		})
		if !errors.Is(err, repository.ErrDuplicateReference) || attempt == referenceAttempts {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}

	w.logger.Info("withdrawal requested",
		zap.Int64("user_id", userID),
		zap.String("reference", wd.Reference),
		zap.String("amount", amount.StringFixed(2)),
	)
	return wd, nil
}

// Withdrawal возвращает заявку по идентификатору.
func (w *Workflow) Withdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return w.repo.GetWithdrawal(ctx, id)
}

// ApproveWithdrawal списывает средства и переводит заявку в approved в одной транзакции.
// При недостатке средств заявка остаётся pending.
func (w *Workflow) ApproveWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error) {
	if err := access.RequireAdmin(w.auth, actor); err != nil {
		return nil, err
	}

	var result *model.Withdrawal
	err := w.wallets.RunInTx(ctx, func(tx repository.Tx) error {
		wd, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := w.wallets.Apply(ctx, tx, ledger.Mutation{
			WalletID:      wd.WalletID,
			Amount:        wd.Amount,
			Type:          model.TransactionWithdrawal,
			TransactionID: wd.Reference,
		}); err != nil {
			return err
		}

		finish(wd, model.WithdrawalStatusApproved, note)
		if err := tx.UpdateWithdrawal(ctx, wd); err != nil {
			return err
		}
		result = wd
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("withdrawal approved",
		zap.String("reference", result.Reference),
		zap.Int64("admin_id", actor.UserID),
	)
	w.notifier.Notify(result.UserID, notify.EventWithdrawalApproved, map[string]any{
		"reference": result.Reference,
		"amount":    result.Amount.StringFixed(2),
	})
	return result, nil
}

// DeclineWithdrawal отклоняет заявку без изменения баланса.
func (w *Workflow) DeclineWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error) {
	if err := access.RequireAdmin(w.auth, actor); err != nil {
		return nil, err
	}

	result, err := w.transition(ctx, id, model.WithdrawalStatusDeclined, note, nil)
	if err != nil {
		return nil, err
	}

	w.notifier.Notify(result.UserID, notify.EventWithdrawalDeclined, map[string]any{
		"reference": result.Reference,
		"note":      result.Note,
	})
	return result, nil
}

// CancelWithdrawal отменяет заявку. Доступно владельцу заявки и администратору.
func (w *Workflow) CancelWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Withdrawal, error) {
	return w.transition(ctx, id, model.WithdrawalStatusCancelled, "", func(wd *model.Withdrawal) error {
		if wd.UserID == actor.UserID || (w.auth != nil && w.auth.IsAdmin(actor)) {
			return nil
		}
		return fmt.Errorf("%w: withdrawal belongs to another user", model.ErrForbidden)
	})
}

func (w *Workflow) transition(ctx context.Context, id uuid.UUID, status model.WithdrawalStatus, note string, check func(*model.Withdrawal) error) (*model.Withdrawal, error) {
	var result *model.Withdrawal
	err := w.repo.InTx(ctx, func(tx repository.Tx) error {
		wd, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(wd); err != nil {
				return err
			}
		}

		finish(wd, status, note)
		if err := tx.UpdateWithdrawal(ctx, wd); err != nil {
			return err
		}
		result = wd
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("withdrawal processed",
		zap.String("reference", result.Reference),
		zap.String("status", string(status)),
	)
	return result, nil
}

func lockPending(ctx context.Context, tx repository.Tx, id uuid.UUID) (*model.Withdrawal, error) {
	wd, err := tx.LockWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if wd.Status != model.WithdrawalStatusPending {
		return nil, fmt.Errorf("%w: withdrawal %s is %s", model.ErrAlreadyProcessed, wd.Reference, wd.Status)
	}
	return wd, nil
}

func finish(wd *model.Withdrawal, status model.WithdrawalStatus, note string) {
	now := time.Now()
	wd.Status = status
	wd.Note = note
	wd.ProcessedAt = &now
}
