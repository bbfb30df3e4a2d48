package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
	"github.com/mmeshcher/betwallet-ledger/internal/paystack"
)

const maxWebhookBody = 1 << 20

type depositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type depositResponse struct {
	Reference       string  `json:"reference"`
	Amount          string  `json:"amount"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status"`
	GatewayResponse string  `json:"gateway_response,omitempty"`
	Channel         string  `json:"channel,omitempty"`
	PaidAt          *string `json:"paid_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func newDepositResponse(d *model.Deposit) depositResponse {
	resp := depositResponse{
		Reference:       d.Reference,
		Amount:          money(d.Amount),
		Description:     d.Description,
		Status:          string(d.Status),
		GatewayResponse: d.GatewayResponse,
		Channel:         d.Channel,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
	if d.PaidAt != nil {
		paid := d.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paid
	}
	return resp
}

// CreateDeposit создаёт пополнение текущего пользователя.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if !decodeJSON(r, &req) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	d, err := h.deposits.CreateDeposit(r.Context(), actor.UserID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "create deposit", err, zap.Int64("user_id", actor.UserID))
		return
	}
	writeJSON(w, http.StatusCreated, newDepositResponse(d))
}

// ownDeposit возвращает пополнение текущего пользователя. Чужие пополнения не раскрываются.
func (h *Handler) ownDeposit(w http.ResponseWriter, r *http.Request) (*model.Deposit, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return nil, false
	}

	ref := chi.URLParam(r, "reference")
	d, err := h.deposits.Deposit(r.Context(), ref)
	if err == nil && d.UserID != actor.UserID {
		err = model.ErrDepositNotFound
	}
	if err != nil {
		h.fail(w, "get deposit", err, zap.String("reference", ref))
		return nil, false
	}
	return d, true
}

// GetDeposit возвращает пополнение по референсу.
func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownDeposit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(d))
}

// VerifyDeposit запрашивает у шлюза статус платежа и зачисляет средства.
func (h *Handler) VerifyDeposit(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownDeposit(w, r)
	if !ok {
		return
	}

	confirmed, err := h.deposits.ConfirmDeposit(r.Context(), d.Reference)
	if err != nil {
		h.fail(w, "verify deposit", err, zap.String("reference", d.Reference))
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(confirmed))
}

type paymentRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callback_url"`
}

type paymentResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// PayDeposit регистрирует платёж в шлюзе и возвращает адрес страницы оплаты.
func (h *Handler) PayDeposit(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownDeposit(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !decodeJSON(r, &req) || req.Email == "" {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	url, err := h.deposits.BeginPayment(r.Context(), d.Reference, req.Email, req.CallbackURL)
	if err != nil {
		h.fail(w, "begin payment", err, zap.String("reference", d.Reference))
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{AuthorizationURL: url})
}

// PaystackWebhook принимает события шлюза. Ответ не 2xx заставляет шлюз повторить доставку,
// поэтому окончательные ошибки подтверждаются 200.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	ev, err := paystack.ParseEvent(h.webhookSecret, body, r.Header.Get(paystack.SignatureHeader))
	switch {
	case errors.Is(err, paystack.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr))
		writeStatus(w, http.StatusUnauthorized)
		return
	case err != nil:
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if ev.Confirmation == nil {
		h.logger.Debug("webhook event ignored", zap.String("event", ev.Name))
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err = h.deposits.HandleConfirmation(r.Context(), ev.Confirmation)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError || errors.Is(err, model.ErrConcurrentModification) {
			h.logger.Error("webhook confirmation error",
				zap.String("reference", ev.Confirmation.Reference),
				zap.Error(err),
			)
			writeStatus(w, http.StatusInternalServerError)
			return
		}
		h.logger.Info("webhook confirmation not applied",
			zap.String("reference", ev.Confirmation.Reference),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusOK)
}
