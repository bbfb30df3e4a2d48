package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

const walletColumns = `id, user_id, balance, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return &w, nil
}

// GetWallet возвращает кошелёк по идентификатору без блокировки.
func (q *queries) GetWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

// GetWalletByUser возвращает кошелёк пользователя без блокировки.
func (q *queries) GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// InsertWallet создаёт кошелёк. Второй кошелёк для пользователя отклоняется.
func (q *queries) InsertWallet(ctx context.Context, w *model.Wallet) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, $3)
		 RETURNING version, created_at, updated_at`,
		w.ID, w.UserID, w.Balance,
	).Scan(&w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "wallets_user_id_key") {
			return fmt.Errorf("%w: user %d", model.ErrWalletExists, w.UserID)
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// LockWallet возвращает кошелёк, блокируя его строку до конца транзакции.
func (q *queries) LockWallet(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// LockWalletByUser возвращает кошелёк пользователя, блокируя его строку до конца транзакции.
func (q *queries) LockWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// UpdateWalletBalance записывает новый баланс, если версия кошелька не изменилась.
func (q *queries) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE wallets SET balance = $2, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $3`,
		id, balance, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	return nil
}

// InsertAuditEntry добавляет запись в журнал операций и заполняет её порядковый номер.
func (q *queries) InsertAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO audit_log_entries
		   (id, wallet_id, transaction_type, transaction_id, amount, balance_before, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq, created_at`,
		e.ID, e.WalletID, string(e.Type), e.TransactionID, e.Amount, e.BalanceBefore, e.BalanceAfter,
	).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries возвращает журнал операций кошелька в порядке применения.
func (q *queries) ListAuditEntries(ctx context.Context, walletID uuid.UUID) ([]model.AuditLogEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, seq, wallet_id, transaction_type, transaction_id, amount, balance_before, balance_after, created_at
		 FROM audit_log_entries
		 WHERE wallet_id = $1
		 ORDER BY seq`,
		walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()

	var res []model.AuditLogEntry
	for rows.Next() {
		var (
			e     model.AuditLogEntry
			txTyp string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.WalletID, &txTyp, &e.TransactionID,
			&e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Type = model.TransactionType(txTyp)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
