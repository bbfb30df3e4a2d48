// Package bundle реализует многораундовые пакеты ставок: покупки, разрешение раундов и выплаты.
package bundle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
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

var payoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bundle_payouts_total",
		Help: "Total number of bundle payouts by result",
	},
	[]string{"result"},
)

var hundred = decimal.NewFromInt(100)

// PayoutAmount возвращает сумму выплаты: amount + amount × pct / 100, округлённую до копеек.
func PayoutAmount(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Add(amount.Mul(pct).Div(hundred)).Round(2)
}

// Engine управляет пакетами ставок.
type Engine struct {
	repo     repository.Repository
	wallets  *ledger.Service
	auth     access.Authorizer
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewEngine создаёт движок пакетов.
func NewEngine(repo repository.Repository, wallets *ledger.Service, auth access.Authorizer, notifier notify.Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		repo:     repo,
		wallets:  wallets,
		auth:     auth,
		notifier: notifier,
		logger:   logger,
	}
}

// Params содержит параметры нового пакета.
type Params struct {
	Name              string
	Price             decimal.Decimal
	WinningPercentage decimal.Decimal
	MinPerUser        int
	MaxPerUser        int
}

func (p Params) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", model.ErrInvalidBundle)
	case !ledger.ValidAmount(p.Price):
		return fmt.Errorf("%w: price must be positive", model.ErrInvalidBundle)
	case p.WinningPercentage.LessThan(decimal.NewFromInt(1)) || p.WinningPercentage.GreaterThan(hundred):
		return fmt.Errorf("%w: winning percentage must be between 1 and 100", model.ErrInvalidBundle)
	case p.MinPerUser < 1 || p.MaxPerUser < p.MinPerUser:
		return fmt.Errorf("%w: quantity bounds must satisfy 1 <= min <= max", model.ErrInvalidBundle)
	}
	return nil
}

// CreateBundle создаёт пакет в первом раунде.
func (e *Engine) CreateBundle(ctx context.Context, actor model.Actor, p Params) (*model.Bundle, error) {
	if err := access.RequireAdmin(e.auth, actor); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	b := &model.Bundle{
		ID:                uuid.New(),
		Name:              p.Name,
		Price:             p.Price,
		WinningPercentage: p.WinningPercentage,
		MinPerUser:        p.MinPerUser,
		MaxPerUser:        p.MaxPerUser,
		Status:            model.BundleStatusPending,
		CurrentRound:      1,
		RoundOutcomes:     map[int]model.BundleStatus{},
	}
	if err := e.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertBundle(ctx, b)
	}); err != nil {
		return nil, err
	}

	e.logger.Info("bundle created", zap.String("bundle_id", b.ID.String()), zap.String("name", b.Name))
	return b, nil
}

// Bundle возвращает пакет.
func (e *Engine) Bundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	return e.repo.GetBundle(ctx, id)
}

// Payouts возвращает выплаты по пакету.
func (e *Engine) Payouts(ctx context.Context, id uuid.UUID) ([]model.Payout, error) {
	if _, err := e.repo.GetBundle(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.ListPayoutsByBundle(ctx, id)
}

// PurchaseBundle списывает стоимость покупки и регистрирует пользователя участником пакета.
// Начиная со второго раунда покупать могут только участники предыдущих раундов.
func (e *Engine) PurchaseBundle(ctx context.Context, userID int64, bundleID uuid.UUID, quantity int) (*model.Purchase, error) {
	var result *model.Purchase
	err := e.wallets.RunInTx(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBundle(ctx, bundleID)
		if err != nil {
			return err
		}
		if b.Status != model.BundleStatusPending {
			return fmt.Errorf("%w: bundle is %s", model.ErrInvalidTransition, b.Status)
		}
		if !validation.IsValidQuantity(quantity, b.MinPerUser, b.MaxPerUser) {
			return fmt.Errorf("%w: quantity must be between %d and %d", model.ErrInvalidQuantity, b.MinPerUser, b.MaxPerUser)
		}
		if b.CurrentRound > 1 {
			ok, err := tx.IsParticipant(ctx, b.ID, userID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: round %d", model.ErrNotEligible, b.CurrentRound)
			}
		}

		wallet, err := tx.LockWalletByUser(ctx, userID)
		if err != nil {
			return err
		}

		amount := b.Price.Mul(decimal.NewFromInt(int64(quantity)))
		p := &model.Purchase{
			ID:           uuid.New(),
			UserID:       userID,
			BundleID:     b.ID,
			Round:        b.CurrentRound,
			Quantity:     quantity,
			Amount:       amount,
			PayoutAmount: PayoutAmount(amount, b.WinningPercentage),
			Reference:    reference.New(),
			Status:       model.PurchaseStatusApproved,
		}

		if _, err := e.wallets.Apply(ctx, tx, ledger.Mutation{
			WalletID:      wallet.ID,
			Amount:        amount,
			Type:          model.TransactionBundlePurchase,
			TransactionID: p.Reference,
		}); err != nil {
			return err
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}
		if err := tx.AddParticipant(ctx, b.ID, userID); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("bundle purchased",
		zap.String("bundle_id", bundleID.String()),
		zap.Int64("user_id", userID),
		zap.Int("quantity", quantity),
		zap.String("amount", result.Amount.StringFixed(2)),
	)
	return result, nil
}
