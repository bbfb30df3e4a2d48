// Package deposit реализует жизненный цикл пополнений кошелька через платёжный шлюз.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/notify"
	"github.com/mmeshcher/betwallet-ledger/internal/paystack"
	"github.com/mmeshcher/betwallet-ledger/internal/reference"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
	"github.com/mmeshcher/betwallet-ledger/internal/validation"
)

// DefaultMinAmount задаёт минимальную сумму пополнения.
var DefaultMinAmount = decimal.NewFromInt(1000)

// ErrVerificationIncomplete возвращается, если шлюз не дал ответа. Пополнение остаётся pending
// и может быть подтверждено повторно.
var ErrVerificationIncomplete = errors.New("gateway verification did not complete")

const referenceAttempts = 3

// Gateway проверяет платёж во внешнем платёжном шлюзе.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*model.GatewayConfirmation, error)
}

// Checkout регистрирует платёж в шлюзе и возвращает страницу оплаты.
type Checkout interface {
	InitializeTransaction(ctx context.Context, p paystack.PaymentRequest) (*paystack.Payment, error)
}

// Config содержит параметры процесса пополнения.
type Config struct {
	MinAmount     decimal.Decimal
	VerifyTimeout time.Duration
}

// Workflow создаёт и подтверждает пополнения.
type Workflow struct {
	repo     repository.Repository
	wallets  *ledger.Service
	gateway  Gateway
	checkout Checkout
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
}

// NewWorkflow создаёт процесс пополнения. Если gateway умеет инициализировать платежи,
// он же используется в BeginPayment.
func NewWorkflow(repo repository.Repository, wallets *ledger.Service, gateway Gateway, notifier notify.Notifier, logger *zap.Logger, cfg Config) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.MinAmount.IsZero() {
		cfg.MinAmount = DefaultMinAmount
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 10 * time.Second
	}

	w := &Workflow{
		repo:     repo,
		wallets:  wallets,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
	if c, ok := gateway.(Checkout); ok {
		w.checkout = c
	}
	return w
}

// CreateDeposit создаёт пополнение в статусе pending с новым референсом.
func (w *Workflow) CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.Deposit, error) {
	if !ledger.ValidAmount(amount) {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, amount)
	}
	if amount.LessThan(w.cfg.MinAmount) {
		return nil, fmt.Errorf("%w: minimum deposit is %s", model.ErrBelowMinimum, w.cfg.MinAmount.StringFixed(2))
	}
	if !validation.IsValidDescription(description, false) {
		return nil, fmt.Errorf("%w: must be %d to %d characters", model.ErrInvalidDescription,
			validation.MinDescriptionLen, validation.MaxDescriptionLen)
	}

	wallet, err := w.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &model.Deposit{
		ID:          uuid.New(),
		UserID:      userID,
		WalletID:    wallet.ID,
		Amount:      amount,
		Description: description,
		Status:      model.DepositStatusPending,
	}

	for attempt := 1; ; attempt++ {
		d.Reference = reference.New()
		err = w.repo.InTx(ctx, func(tx repository.Tx) error {
			return tx.InsertDeposit(ctx, d)
		})
		if !errors.Is(err, repository.ErrDuplicateReference) || attempt == referenceAttempts {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create deposit: %w", err)
	}

	w.logger.Info("deposit created",
		zap.Int64("user_id", userID),
		zap.String("reference", d.Reference),
		zap.String("amount", d.Amount.StringFixed(2)),
	)
	return d, nil
}

// Deposit возвращает пополнение по референсу.
func (w *Workflow) Deposit(ctx context.Context, ref string) (*model.Deposit, error) {
	return w.repo.GetDepositByReference(ctx, ref)
}

// ConfirmDeposit проверяет платёж в шлюзе и зачисляет средства.
// Повторный вызов для завершённого пополнения ничего не меняет. Если шлюз не ответил за
// VerifyTimeout, пополнение остаётся pending и возвращается ErrVerificationIncomplete.
func (w *Workflow) ConfirmDeposit(ctx context.Context, ref string) (*model.Deposit, error) {
	d, err := w.repo.GetDepositByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case model.DepositStatusCompleted:
		return d, nil
	case model.DepositStatusFailed:
		return nil, fmt.Errorf("%w: deposit %s has failed", model.ErrAlreadyProcessed, ref)
	}

	if w.gateway == nil {
		return nil, fmt.Errorf("%w: gateway is not configured", ErrVerificationIncomplete)
	}

	vctx, cancel := context.WithTimeout(ctx, w.cfg.VerifyTimeout)
	defer cancel()

	conf, err := w.gateway.VerifyTransaction(vctx, ref)
	if err != nil {
		w.logger.Warn("deposit verification incomplete", zap.String("reference", ref), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationIncomplete, err)
	}
	conf.Reference = ref

	return w.HandleConfirmation(ctx, conf)
}

// HandleConfirmation применяет ответ шлюза к пополнению. Используется при проверке
// по запросу и при получении вебхука.
func (w *Workflow) HandleConfirmation(ctx context.Context, conf *model.GatewayConfirmation) (*model.Deposit, error) {
	var (
		result   *model.Deposit
		credited bool
		failed   bool
	)

	err := w.wallets.RunInTx(ctx, func(tx repository.Tx) error {
		credited, failed = false, false

		d, err := tx.LockDeposit(ctx, conf.Reference)
		if err != nil {
			return err
		}
		result = d

		switch d.Status {
		case model.DepositStatusCompleted:
			return nil
		case model.DepositStatusFailed:
			return fmt.Errorf("%w: deposit %s has failed", model.ErrAlreadyProcessed, d.Reference)
		}

		applyGatewayMetadata(d, conf)

		if !conf.Success || conf.Amount.LessThan(d.Amount) {
			d.Status = model.DepositStatusFailed
			failed = true
			return tx.UpdateDeposit(ctx, d)
		}

		d.Status = model.DepositStatusCompleted
		if err := tx.UpdateDeposit(ctx, d); err != nil {
			return err
		}
		if _, err := w.wallets.Apply(ctx, tx, ledger.Mutation{
			WalletID:      d.WalletID,
			Amount:        d.Amount,
			Type:          model.TransactionDeposit,
			TransactionID: d.Reference,
		}); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if failed {
		w.logger.Warn("deposit verification failed",
			zap.String("reference", result.Reference),
			zap.String("gateway_response", conf.GatewayResponse),
			zap.String("confirmed_amount", conf.Amount.StringFixed(2)),
		)
		return result, fmt.Errorf("%w: %s", model.ErrGatewayVerificationFailed, result.Reference)
	}

	if credited {
		w.logger.Info("deposit completed",
			zap.String("reference", result.Reference),
			zap.Int64("user_id", result.UserID),
			zap.String("amount", result.Amount.StringFixed(2)),
		)
		w.notifier.Notify(result.UserID, notify.EventDepositCompleted, map[string]any{
			"reference": result.Reference,
			"amount":    result.Amount.StringFixed(2),
		})
	}

	return result, nil
}

func applyGatewayMetadata(d *model.Deposit, conf *model.GatewayConfirmation) {
	d.GatewayResponse = conf.GatewayResponse
	d.Channel = conf.Channel
	d.AuthorizationCode = conf.AuthorizationCode
	d.IPAddress = conf.IPAddress
	d.PaidAt = conf.PaidAt
}

// BeginPayment регистрирует платёж для pending пополнения и возвращает адрес страницы оплаты.
func (w *Workflow) BeginPayment(ctx context.Context, ref, email, callbackURL string) (string, error) {
	if w.checkout == nil {
		return "", fmt.Errorf("%w: gateway is not configured", ErrVerificationIncomplete)
	}

	d, err := w.repo.GetDepositByReference(ctx, ref)
	if err != nil {
		return "", err
	}
	if d.Status != model.DepositStatusPending {
		return "", fmt.Errorf("%w: deposit %s is %s", model.ErrAlreadyProcessed, ref, d.Status)
	}

	p, err := w.checkout.InitializeTransaction(ctx, paystack.PaymentRequest{
		Email:       email,
		Amount:      d.Amount,
		Reference:   d.Reference,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("begin payment: %w", err)
	}
	return p.AuthorizationURL, nil
}
