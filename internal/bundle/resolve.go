package bundle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/access"
	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/notify"
	"github.com/mmeshcher/betwallet-ledger/internal/reference"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
)

// PayoutFailure описывает покупку, выплату по которой не удалось провести.
type PayoutFailure struct {
	PurchaseID uuid.UUID
	UserID     int64
	Amount     decimal.Decimal
	Err        error
}

// Resolution содержит результат разрешения раунда.
// Failed перечисляет участников, которым выплату нужно провести повторно.
type Resolution struct {
	Bundle  *model.Bundle
	Payouts []model.Payout
	Failed  []PayoutFailure
}

// MarkWon завершает пакет выигрышем и выплачивает каждую одобренную покупку.
// Выплата каждому участнику проводится в отдельной транзакции, ошибка по одному
// участнику не прерывает выплаты остальным.
func (e *Engine) MarkWon(ctx context.Context, actor model.Actor, bundleID uuid.UUID) (*Resolution, error) {
	if err := access.RequireAdmin(e.auth, actor); err != nil {
		return nil, err
	}

	var b *model.Bundle
	err := e.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		b, err = lockPending(ctx, tx, bundleID)
		if err != nil {
			return err
		}
		b.RoundOutcomes[b.CurrentRound] = model.BundleStatusWon
		b.Status = model.BundleStatusWon
		return tx.UpdateBundle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("bundle won", zap.String("bundle_id", b.ID.String()), zap.Int("round", b.CurrentRound))
	return e.payUnpaid(ctx, b)
}

// MarkLost фиксирует проигрыш текущего раунда. До последнего раунда пакет переходит в следующий
// раунд, после последнего становится проигранным, а каждая одобренная покупка получает нулевую
// отменённую выплату без изменения балансов.
func (e *Engine) MarkLost(ctx context.Context, actor model.Actor, bundleID uuid.UUID) (*Resolution, error) {
	if err := access.RequireAdmin(e.auth, actor); err != nil {
		return nil, err
	}

	res := &Resolution{}
	var participants []int64
	err := e.repo.InTx(ctx, func(tx repository.Tx) error {
		res.Payouts = nil
		participants = nil

		b, err := lockPending(ctx, tx, bundleID)
		if err != nil {
			return err
		}
		res.Bundle = b

		b.RoundOutcomes[b.CurrentRound] = model.BundleStatusLost
		if b.CurrentRound < model.MaxRounds {
			b.CurrentRound++
			if err := tx.UpdateBundle(ctx, b); err != nil {
				return err
			}
			purchases, err := tx.ListPurchasesByBundle(ctx, b.ID, model.PurchaseStatusApproved)
			if err != nil {
				return err
			}
			participants = distinctUsers(purchases)
			return nil
		}

		b.Status = model.BundleStatusLost
		if err := tx.UpdateBundle(ctx, b); err != nil {
			return err
		}

		purchases, err := tx.ListPurchasesByBundle(ctx, b.ID, model.PurchaseStatusApproved)
		if err != nil {
			return err
		}
		for _, p := range purchases {
			payout := model.Payout{
				ID:         uuid.New(),
				UserID:     p.UserID,
				BundleID:   b.ID,
				PurchaseID: p.ID,
				Amount:     decimal.Zero,
				Reference:  reference.Payout(),
				Status:     model.PayoutStatusCancelled,
			}
			if err := tx.InsertPayout(ctx, &payout); err != nil {
				return err
			}
			res.Payouts = append(res.Payouts, payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b := res.Bundle
	if b.Status != model.BundleStatusLost {
		e.logger.Info("bundle round lost", zap.String("bundle_id", b.ID.String()), zap.Int("next_round", b.CurrentRound))
		for _, userID := range participants {
			e.notifier.Notify(userID, notify.EventBundleRoundAdvanced, map[string]any{
				"bundle_id":  b.ID.String(),
				"name":       b.Name,
				"next_round": b.CurrentRound,
			})
		}
		return res, nil
	}

	e.logger.Info("bundle lost", zap.String("bundle_id", b.ID.String()), zap.Int("payouts", len(res.Payouts)))
	notified := make(map[int64]struct{})
	for _, p := range res.Payouts {
		if _, ok := notified[p.UserID]; ok {
			continue
		}
		notified[p.UserID] = struct{}{}
		e.notifier.Notify(p.UserID, notify.EventBundleLost, map[string]any{
			"bundle_id": b.ID.String(),
			"name":      b.Name,
		})
	}
	return res, nil
}

// PendingPayouts возвращает покупки выигранного пакета, по которым ещё нет выплаты.
func (e *Engine) PendingPayouts(ctx context.Context, bundleID uuid.UUID) ([]model.Purchase, error) {
	b, err := e.repo.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BundleStatusWon {
		return nil, nil
	}
	return e.repo.ListUnpaidPurchases(ctx, bundleID)
}

// RetryPayouts повторяет выплаты по выигранному пакету для покупок без выплаты.
func (e *Engine) RetryPayouts(ctx context.Context, actor model.Actor, bundleID uuid.UUID) (*Resolution, error) {
	if err := access.RequireAdmin(e.auth, actor); err != nil {
		return nil, err
	}

	b, err := e.repo.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BundleStatusWon {
		return nil, fmt.Errorf("%w: bundle is %s", model.ErrInvalidTransition, b.Status)
	}
	return e.payUnpaid(ctx, b)
}

func (e *Engine) payUnpaid(ctx context.Context, b *model.Bundle) (*Resolution, error) {
	purchases, err := e.repo.ListUnpaidPurchases(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("list unpaid purchases: %w", err)
	}

	res := &Resolution{Bundle: b}
	for _, p := range purchases {
		payout, err := e.payPurchase(ctx, b, p)
		switch {
		case errors.Is(err, repository.ErrPayoutExists):
			continue
		case err != nil:
			payoutsTotal.WithLabelValues("failed").Inc()
			e.logger.Error("bundle payout failed",
				zap.String("bundle_id", b.ID.String()),
				zap.String("purchase_id", p.ID.String()),
				zap.Int64("user_id", p.UserID),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, PayoutFailure{
				PurchaseID: p.ID,
				UserID:     p.UserID,
				Amount:     p.PayoutAmount,
				Err:        err,
			})
			continue
		}

		payoutsTotal.WithLabelValues("paid").Inc()
		res.Payouts = append(res.Payouts, *payout)
		e.notifier.Notify(p.UserID, notify.EventBundleWon, map[string]any{
			"bundle_id": b.ID.String(),
			"name":      b.Name,
			"amount":    payout.Amount.StringFixed(2),
			"reference": payout.Reference,
		})
	}
	return res, nil
}

func (e *Engine) payPurchase(ctx context.Context, b *model.Bundle, p model.Purchase) (*model.Payout, error) {
	var payout *model.Payout
	err := e.wallets.RunInTx(ctx, func(tx repository.Tx) error {
		wallet, err := tx.LockWalletByUser(ctx, p.UserID)
		if err != nil {
			return err
		}

		po := &model.Payout{
			ID:         uuid.New(),
			UserID:     p.UserID,
			BundleID:   b.ID,
			PurchaseID: p.ID,
			Amount:     p.PayoutAmount,
			Reference:  reference.Payout(),
			Status:     model.PayoutStatusApproved,
		}
		if err := tx.InsertPayout(ctx, po); err != nil {
			return err
		}
		if _, err := e.wallets.Apply(ctx, tx, ledger.Mutation{
			WalletID:      wallet.ID,
			Amount:        po.Amount,
			Type:          model.TransactionBundleWinning,
			TransactionID: po.Reference,
		}); err != nil {
			return err
		}
		payout = po
		return nil
	})
	return payout, err
}

func lockPending(ctx context.Context, tx repository.Tx, id uuid.UUID) (*model.Bundle, error) {
	b, err := tx.LockBundle(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BundleStatusPending {
		return nil, fmt.Errorf("%w: bundle is %s", model.ErrInvalidTransition, b.Status)
	}
	if b.RoundOutcomes == nil {
		b.RoundOutcomes = map[int]model.BundleStatus{}
	}
	return b, nil
}

func distinctUsers(purchases []model.Purchase) []int64 {
	seen := make(map[int64]struct{}, len(purchases))
	users := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}
	return users
}
