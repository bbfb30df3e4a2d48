package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
)

// Discrepancy описывает запись журнала, не согласующуюся с предыдущими.
type Discrepancy struct {
	Seq      int64
	Expected decimal.Decimal
	Actual   decimal.Decimal
	Reason   string
}

// Report содержит результат сверки кошелька с журналом операций.
type Report struct {
	WalletID      uuid.UUID
	Stored        decimal.Decimal
	Replayed      decimal.Decimal
	Entries       int
	Discrepancies []Discrepancy
}

// Consistent сообщает, что журнал воспроизводит сохранённый баланс без расхождений.
func (r *Report) Consistent() bool {
	return len(r.Discrepancies) == 0 && r.Stored.Equal(r.Replayed)
}

// Reconcile воспроизводит журнал кошелька с нуля и сравнивает результат с сохранённым балансом.
// Кошелёк блокируется на время чтения, чтобы журнал и баланс относились к одному состоянию.
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (*Report, error) {
	var report *Report
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		entries, err := tx.ListAuditEntries(ctx, walletID)
		if err != nil {
			return err
		}
		report = replay(w, entries)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile wallet: %w", err)
	}
	return report, nil
}

func replay(w *model.Wallet, entries []model.AuditLogEntry) *Report {
	r := &Report{
		WalletID: w.ID,
		Stored:   w.Balance,
		Replayed: decimal.Zero,
		Entries:  len(entries),
	}

	for _, e := range entries {
		if !e.BalanceBefore.Equal(r.Replayed) {
			r.Discrepancies = append(r.Discrepancies, Discrepancy{
				Seq:      e.Seq,
				Expected: r.Replayed,
				Actual:   e.BalanceBefore,
				Reason:   "balance_before does not match running total",
			})
		}

		switch {
		case e.Type.IsCredit():
			r.Replayed = r.Replayed.Add(e.Amount)
		case e.Type.IsDebit():
			r.Replayed = r.Replayed.Sub(e.Amount)
		}

		if !e.BalanceAfter.Equal(r.Replayed) {
			r.Discrepancies = append(r.Discrepancies, Discrepancy{
				Seq:      e.Seq,
				Expected: r.Replayed,
				Actual:   e.BalanceAfter,
				Reason:   "balance_after does not match running total",
			})
		}
	}

	if !r.Replayed.Equal(r.Stored) {
		r.Discrepancies = append(r.Discrepancies, Discrepancy{
			Expected: r.Replayed,
			Actual:   r.Stored,
			Reason:   "stored balance differs from replayed journal",
		})
	}

	return r
}
