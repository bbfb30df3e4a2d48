package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

type withdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type withdrawalResponse struct {
	ID          string  `json:"id"`
	Amount      string  `json:"amount"`
	Description string  `json:"description"`
	Note        string  `json:"note,omitempty"`
	Reference   string  `json:"reference"`
	Status      string  `json:"status"`
	ProcessedAt *string `json:"processed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func newWithdrawalResponse(wd *model.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:          wd.ID.String(),
		Amount:      money(wd.Amount),
		Description: wd.Description,
		Note:        wd.Note,
		Reference:   wd.Reference,
		Status:      string(wd.Status),
		CreatedAt:   wd.CreatedAt.Format(time.RFC3339),
	}
	if wd.ProcessedAt != nil {
		processed := wd.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

// RequestWithdrawal создаёт заявку на вывод средств текущего пользователя.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if !decodeJSON(r, &req) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	wd, err := h.withdrawals.RequestWithdrawal(r.Context(), actor.UserID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "request withdrawal", err, zap.Int64("user_id", actor.UserID))
		return
	}
	writeJSON(w, http.StatusCreated, newWithdrawalResponse(wd))
}

// GetWithdrawal возвращает заявку текущего пользователя.
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	wd, err := h.withdrawals.Withdrawal(r.Context(), id)
	if err == nil && wd.UserID != actor.UserID && (h.authorizer == nil || !h.authorizer.IsAdmin(actor)) {
		err = model.ErrWithdrawalNotFound
	}
	if err != nil {
		h.fail(w, "get withdrawal", err, zap.String("withdrawal_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalResponse(wd))
}

// CancelWithdrawal отменяет заявку. Доступно владельцу и администратору.
func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolveWithdrawal(w, r, "cancel withdrawal", func(actor model.Actor, id uuid.UUID, _ string) (*model.Withdrawal, error) {
		return h.withdrawals.CancelWithdrawal(r.Context(), actor, id)
	})
}

// ApproveWithdrawal одобряет заявку и списывает средства.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolveWithdrawal(w, r, "approve withdrawal", func(actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error) {
		return h.withdrawals.ApproveWithdrawal(r.Context(), actor, id, note)
	})
}

// DeclineWithdrawal отклоняет заявку.
func (h *Handler) DeclineWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolveWithdrawal(w, r, "decline withdrawal", func(actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error) {
		return h.withdrawals.DeclineWithdrawal(r.Context(), actor, id, note)
	})
}

func (h *Handler) resolveWithdrawal(w http.ResponseWriter, r *http.Request, op string,
	fn func(actor model.Actor, id uuid.UUID, note string) (*model.Withdrawal, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	wd, err := fn(actor, id, req.Note)
	if err != nil {
		h.fail(w, op, err, zap.String("withdrawal_id", id.String()), zap.Int64("actor", actor.UserID))
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalResponse(wd))
}
