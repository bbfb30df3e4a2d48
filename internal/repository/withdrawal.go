package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

const withdrawalColumns = `id, user_id, wallet_id, amount, description, note, reference, status,
	processed_at, created_at, updated_at`

func scanWithdrawal(row rowScanner) (*model.Withdrawal, error) {
	var (
		w      model.Withdrawal
		status string
	)
	err := row.Scan(&w.ID, &w.UserID, &w.WalletID, &w.Amount, &w.Description, &w.Note, &w.Reference, &status,
		&w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	w.Status = model.WithdrawalStatus(status)
	return &w, nil
}

// InsertWithdrawal создаёт заявку на вывод средств.
func (q *queries) InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO withdrawals (id, user_id, wallet_id, amount, description, reference, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		w.ID, w.UserID, w.WalletID, w.Amount, w.Description, w.Reference, string(w.Status),
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "withdrawals_reference_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, w.Reference)
		}
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (q *queries) GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return scanWithdrawal(q.db.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
}

// LockWithdrawal возвращает заявку, блокируя её строку до конца транзакции.
func (q *queries) LockWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return scanWithdrawal(q.db.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
}

// UpdateWithdrawal сохраняет статус, комментарий администратора и время обработки.
func (q *queries) UpdateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	err := q.db.QueryRow(ctx,
		`UPDATE withdrawals SET status = $2, note = $3, processed_at = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		w.ID, string(w.Status), w.Note, w.ProcessedAt,
	).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrWithdrawalNotFound
		}
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return nil
}
