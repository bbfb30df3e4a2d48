package deposit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

const reverifyBatch = 100

// Reverifier периодически повторяет проверку пополнений, зависших в статусе pending
// дольше одного интервала. Повторная проверка безопасна, так как подтверждение идемпотентно.
type Reverifier struct {
	wf       *Workflow
	interval time.Duration
	logger   *zap.Logger
}

// NewReverifier создаёт фоновую проверку. Нулевой интервал отключает её.
func NewReverifier(wf *Workflow, interval time.Duration) *Reverifier {
	return &Reverifier{wf: wf, interval: interval, logger: wf.logger}
}

// Run выполняет проверку по таймеру, пока не отменён ctx.
func (r *Reverifier) Run(ctx context.Context) error {
	if r.interval <= 0 || r.wf.gateway == nil {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.processBatch(ctx)
		}
	}
}

func (r *Reverifier) processBatch(ctx context.Context) int {
	pending, err := r.wf.repo.ListPendingDeposits(ctx, time.Now().Add(-r.interval), reverifyBatch)
	if err != nil {
		r.logger.Warn("list pending deposits failed", zap.Error(err))
		return 0
	}

	completed := 0
	for _, d := range pending {
		if ctx.Err() != nil {
			return completed
		}

		res, err := r.wf.ConfirmDeposit(ctx, d.Reference)
		switch {
		case err == nil:
			if res.Status == model.DepositStatusCompleted {
				completed++
			}
		case errors.Is(err, ErrVerificationIncomplete), errors.Is(err, model.ErrGatewayVerificationFailed):
		default:
			r.logger.Warn("deposit reverification failed", zap.String("reference", d.Reference), zap.Error(err))
		}
	}
	return completed
}
