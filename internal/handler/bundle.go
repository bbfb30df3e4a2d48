package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/bundle"
	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

type createBundleRequest struct {
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	WinningPercentage decimal.Decimal `json:"winning_percentage"`
	MinPerUser        int             `json:"min_per_user"`
	MaxPerUser        int             `json:"max_per_user"`
}

type bundleResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Price             string            `json:"price"`
	WinningPercentage string            `json:"winning_percentage"`
	MinPerUser        int               `json:"min_per_user"`
	MaxPerUser        int               `json:"max_per_user"`
	Status            string            `json:"status"`
	CurrentRound      int               `json:"current_round"`
	RoundOutcomes     map[string]string `json:"round_outcomes"`
}

func newBundleResponse(b *model.Bundle) bundleResponse {
	outcomes := make(map[string]string, len(b.RoundOutcomes))
	for round, status := range b.RoundOutcomes {
		outcomes[roundKey(round)] = string(status)
	}
	return bundleResponse{
		ID:                b.ID.String(),
		Name:              b.Name,
		Price:             money(b.Price),
		WinningPercentage: b.WinningPercentage.String(),
		MinPerUser:        b.MinPerUser,
		MaxPerUser:        b.MaxPerUser,
		Status:            string(b.Status),
		CurrentRound:      b.CurrentRound,
		RoundOutcomes:     outcomes,
	}
}

func roundKey(round int) string {
	return "round_" + strconv.Itoa(round)
}

type purchaseRequest struct {
	Quantity int `json:"quantity"`
}

type purchaseResponse struct {
	ID           string `json:"id"`
	BundleID     string `json:"bundle_id"`
	UserID       int64  `json:"user_id"`
	Round        int    `json:"round"`
	Quantity     int    `json:"quantity"`
	Amount       string `json:"amount"`
	PayoutAmount string `json:"payout_amount"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

func newPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:           p.ID.String(),
		BundleID:     p.BundleID.String(),
		UserID:       p.UserID,
		Round:        p.Round,
		Quantity:     p.Quantity,
		Amount:       money(p.Amount),
		PayoutAmount: money(p.PayoutAmount),
		Reference:    p.Reference,
		Status:       string(p.Status),
	}
}

type payoutResponse struct {
	ID         string `json:"id"`
	UserID     int64  `json:"user_id"`
	PurchaseID string `json:"purchase_id"`
	Amount     string `json:"amount"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

func newPayoutResponses(payouts []model.Payout) []payoutResponse {
	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, payoutResponse{
			ID:         p.ID.String(),
			UserID:     p.UserID,
			PurchaseID: p.PurchaseID.String(),
			Amount:     money(p.Amount),
			Reference:  p.Reference,
			Status:     string(p.Status),
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

type failureResponse struct {
	PurchaseID string `json:"purchase_id"`
	UserID     int64  `json:"user_id"`
	Amount     string `json:"amount"`
	Error      string `json:"error"`
}

type resolutionResponse struct {
	Bundle  bundleResponse    `json:"bundle"`
	Payouts []payoutResponse  `json:"payouts"`
	Failed  []failureResponse `json:"failed"`
}

func newResolutionResponse(res *bundle.Resolution) resolutionResponse {
	resp := resolutionResponse{
		Bundle:  newBundleResponse(res.Bundle),
		Payouts: newPayoutResponses(res.Payouts),
		Failed:  make([]failureResponse, 0, len(res.Failed)),
	}
	for _, f := range res.Failed {
		resp.Failed = append(resp.Failed, failureResponse{
			PurchaseID: f.PurchaseID.String(),
			UserID:     f.UserID,
			Amount:     money(f.Amount),
			Error:      f.Err.Error(),
		})
	}
	return resp
}

// CreateBundle создаёт пакет ставок.
func (h *Handler) CreateBundle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createBundleRequest
	if !decodeJSON(r, &req) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	b, err := h.bundles.CreateBundle(r.Context(), actor, bundle.Params{
		Name:              req.Name,
		Price:             req.Price,
		WinningPercentage: req.WinningPercentage,
		MinPerUser:        req.MinPerUser,
		MaxPerUser:        req.MaxPerUser,
	})
	if err != nil {
		h.fail(w, "create bundle", err)
		return
	}
	writeJSON(w, http.StatusCreated, newBundleResponse(b))
}

// GetBundle возвращает пакет.
func (h *Handler) GetBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	b, err := h.bundles.Bundle(r.Context(), id)
	if err != nil {
		h.fail(w, "get bundle", err, zap.String("bundle_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, newBundleResponse(b))
}

// PurchaseBundle покупает пакет от имени текущего пользователя.
func (h *Handler) PurchaseBundle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req purchaseRequest
	if !decodeJSON(r, &req) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	p, err := h.bundles.PurchaseBundle(r.Context(), actor.UserID, id, req.Quantity)
	if err != nil {
		h.fail(w, "purchase bundle", err, zap.String("bundle_id", id.String()), zap.Int64("user_id", actor.UserID))
		return
	}
	writeJSON(w, http.StatusCreated, newPurchaseResponse(p))
}

// MarkWon завершает пакет выигрышем.
func (h *Handler) MarkWon(w http.ResponseWriter, r *http.Request) {
	h.resolveBundle(w, r, "mark won", h.bundles.MarkWon)
}

// MarkLost фиксирует проигрыш текущего раунда.
func (h *Handler) MarkLost(w http.ResponseWriter, r *http.Request) {
	h.resolveBundle(w, r, "mark lost", h.bundles.MarkLost)
}

// RetryPayouts повторяет незавершённые выплаты выигравшего пакета.
func (h *Handler) RetryPayouts(w http.ResponseWriter, r *http.Request) {
	h.resolveBundle(w, r, "retry payouts", h.bundles.RetryPayouts)
}

func (h *Handler) resolveBundle(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, actor model.Actor, id uuid.UUID) (*bundle.Resolution, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	res, err := fn(r.Context(), actor, id)
	if err != nil {
		h.fail(w, op, err, zap.String("bundle_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, newResolutionResponse(res))
}

// GetPayouts возвращает выплаты по пакету.
func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	payouts, err := h.bundles.Payouts(r.Context(), id)
	if err != nil {
		h.fail(w, "get payouts", err, zap.String("bundle_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, newPayoutResponses(payouts))
}

// GetPendingPayouts возвращает покупки выигравшего пакета, по которым выплата не проведена.
func (h *Handler) GetPendingPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	purchases, err := h.bundles.PendingPayouts(r.Context(), id)
	if err != nil {
		h.fail(w, "pending payouts", err, zap.String("bundle_id", id.String()))
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, newPurchaseResponse(&purchases[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
