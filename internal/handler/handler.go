// Package handler содержит HTTP-обработчики API сервиса кошельков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/access"
	"github.com/mmeshcher/betwallet-ledger/internal/bundle"
	"github.com/mmeshcher/betwallet-ledger/internal/deposit"
	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/middleware"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

// Wallets определяет операции с кошельками, доступные через API.
type Wallets interface {
	OpenWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	WalletByUser(ctx context.Context, userID int64) (*model.Wallet, error)
	History(ctx context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*ledger.Report, error)
}

// Deposits определяет операции с пополнениями.
type Deposits interface {
	CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.Deposit, error)
	Deposit(ctx context.Context, ref string) (*model.Deposit, error)
	ConfirmDeposit(ctx context.Context, ref string) (*model.Deposit, error)
	HandleConfirmation(ctx context.Context, conf *model.GatewayConfirmation) (*model.Deposit, error)
	BeginPayment(ctx context.Context, ref, email, callbackURL string) (string, error)
}

// Withdrawals определяет операции с заявками на вывод.
type Withdrawals interface {
	RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.Withdrawal, error)
	Withdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error)
	DeclineWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error)
	CancelWithdrawal(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Withdrawal, error)
}

// Bundles определяет операции с пакетами ставок.
type Bundles interface {
	CreateBundle(ctx context.Context, actor model.Actor, p bundle.Params) (*model.Bundle, error)
	Bundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error)
	Payouts(ctx context.Context, id uuid.UUID) ([]model.Payout, error)
	PurchaseBundle(ctx context.Context, userID int64, bundleID uuid.UUID, quantity int) (*model.Purchase, error)
	MarkWon(ctx context.Context, actor model.Actor, id uuid.UUID) (*bundle.Resolution, error)
	MarkLost(ctx context.Context, actor model.Actor, id uuid.UUID) (*bundle.Resolution, error)
	PendingPayouts(ctx context.Context, id uuid.UUID) ([]model.Purchase, error)
	RetryPayouts(ctx context.Context, actor model.Actor, id uuid.UUID) (*bundle.Resolution, error)
}

// Handler реализует HTTP-обработчики API сервиса кошельков.
type Handler struct {
	wallets        Wallets
	deposits       Deposits
	withdrawals    Withdrawals
	bundles        Bundles
	authMiddleware *middleware.AuthMiddleware
	authorizer     access.Authorizer
	webhookSecret  string
	logger         *zap.Logger
}

// Options содержит зависимости обработчика.
type Options struct {
	Wallets       Wallets
	Deposits      Deposits
	Withdrawals   Withdrawals
	Bundles       Bundles
	Auth          *middleware.AuthMiddleware
	Authorizer    access.Authorizer
	WebhookSecret string
	Logger        *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		wallets:        opts.Wallets,
		deposits:       opts.Deposits,
		withdrawals:    opts.Withdrawals,
		bundles:        opts.Bundles,
		authMiddleware: opts.Auth,
		authorizer:     opts.Authorizer,
		webhookSecret:  opts.WebhookSecret,
		logger:         logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) bool {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrBelowMinimum),
		errors.Is(err, model.ErrInvalidDescription),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidBundle),
		errors.Is(err, model.ErrInvalidTransactionType):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrForbidden),
		errors.Is(err, model.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, model.ErrWalletNotFound),
		errors.Is(err, model.ErrDepositNotFound),
		errors.Is(err, model.ErrWithdrawalNotFound),
		errors.Is(err, model.ErrBundleNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyProcessed),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrWalletExists),
		errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, model.ErrGatewayVerificationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, deposit.ErrVerificationIncomplete):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail пишет ответ для ошибки бизнес-логики. Внутренние ошибки логируются и не раскрываются.
func (h *Handler) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		writeStatus(w, status)
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
	}
	return actor, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Healthz отвечает 200, пока процесс обслуживает запросы.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
