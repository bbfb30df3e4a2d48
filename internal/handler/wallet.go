package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type walletResponse struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

type auditEntryResponse struct {
	Seq           int64  `json:"seq"`
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	CreatedAt     string `json:"created_at"`
}

// OpenWallet открывает кошелёк текущего пользователя.
func (h *Handler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	wallet, err := h.wallets.OpenWallet(r.Context(), actor.UserID)
	if err != nil {
		h.fail(w, "open wallet", err, zap.Int64("user_id", actor.UserID))
		return
	}

	writeJSON(w, http.StatusCreated, walletResponse{
		ID:        wallet.ID.String(),
		UserID:    wallet.UserID,
		Balance:   money(wallet.Balance),
		UpdatedAt: wallet.UpdatedAt.Format(time.RFC3339),
	})
}

// GetWallet возвращает кошелёк текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	wallet, err := h.wallets.WalletByUser(r.Context(), actor.UserID)
	if err != nil {
		h.fail(w, "get wallet", err, zap.Int64("user_id", actor.UserID))
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{
		ID:        wallet.ID.String(),
		UserID:    wallet.UserID,
		Balance:   money(wallet.Balance),
		UpdatedAt: wallet.UpdatedAt.Format(time.RFC3339),
	})
}

// GetAudit возвращает журнал операций кошелька текущего пользователя.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	wallet, err := h.wallets.WalletByUser(r.Context(), actor.UserID)
	if err != nil {
		h.fail(w, "get audit", err, zap.Int64("user_id", actor.UserID))
		return
	}

	entries, err := h.wallets.History(r.Context(), wallet.ID)
	if err != nil {
		h.fail(w, "get audit", err, zap.Int64("user_id", actor.UserID))
		return
	}

	resp := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditEntryResponse{
			Seq:           e.Seq,
			Type:          string(e.Type),
			TransactionID: e.TransactionID,
			Amount:        money(e.Amount),
			BalanceBefore: money(e.BalanceBefore),
			BalanceAfter:  money(e.BalanceAfter),
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type discrepancyResponse struct {
	Seq      int64  `json:"seq"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   string `json:"reason"`
}

type reconcileResponse struct {
	WalletID      string                `json:"wallet_id"`
	Stored        string                `json:"stored"`
	Replayed      string                `json:"replayed"`
	Entries       int                   `json:"entries"`
	Consistent    bool                  `json:"consistent"`
	Discrepancies []discrepancyResponse `json:"discrepancies"`
}

// ReconcileWallet сверяет баланс кошелька с журналом операций.
func (h *Handler) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	report, err := h.wallets.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, "reconcile wallet", err, zap.String("wallet_id", id.String()))
		return
	}

	resp := reconcileResponse{
		WalletID:      report.WalletID.String(),
		Stored:        money(report.Stored),
		Replayed:      money(report.Replayed),
		Entries:       report.Entries,
		Consistent:    report.Consistent(),
		Discrepancies: make([]discrepancyResponse, 0, len(report.Discrepancies)),
	}
	for _, d := range report.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, discrepancyResponse{
			Seq:      d.Seq,
			Expected: money(d.Expected),
			Actual:   money(d.Actual),
			Reason:   d.Reason,
		})
	}
	if !resp.Consistent {
		h.logger.Warn("wallet reconciliation found discrepancies",
			zap.String("wallet_id", id.String()),
			zap.Int("count", len(report.Discrepancies)),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}
