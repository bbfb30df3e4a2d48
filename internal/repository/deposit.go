package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

const depositColumns = `id, user_id, wallet_id, reference, amount, description, status,
	gateway_response, channel, authorization_code, ip_address, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row rowScanner) (*model.Deposit, error) {
	var (
		d      model.Deposit
		status string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.WalletID, &d.Reference, &d.Amount, &d.Description, &status,
		&d.GatewayResponse, &d.Channel, &d.AuthorizationCode, &d.IPAddress, &d.PaidAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrDepositNotFound
		}
		return nil, fmt.Errorf("scan deposit: %w", err)
	}
	d.Status = model.DepositStatus(status)
	return &d, nil
}

// InsertDeposit создаёт пополнение в статусе pending.
func (q *queries) InsertDeposit(ctx context.Context, d *model.Deposit) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO deposits (id, user_id, wallet_id, reference, amount, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.WalletID, d.Reference, d.Amount, d.Description, string(d.Status),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "deposits_reference_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, d.Reference)
		}
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

// GetDepositByReference возвращает пополнение по референсу.
func (q *queries) GetDepositByReference(ctx context.Context, reference string) (*model.Deposit, error) {
	return scanDeposit(q.db.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE reference = $1`, reference))
}

// LockDeposit возвращает пополнение, блокируя его строку до конца транзакции.
func (q *queries) LockDeposit(ctx context.Context, reference string) (*model.Deposit, error) {
	return scanDeposit(q.db.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE reference = $1 FOR UPDATE`, reference))
}

// UpdateDeposit сохраняет статус и данные шлюза.
func (q *queries) UpdateDeposit(ctx context.Context, d *model.Deposit) error {
	err := q.db.QueryRow(ctx,
		`UPDATE deposits
		 SET status = $2, gateway_response = $3, channel = $4, authorization_code = $5,
		     ip_address = $6, paid_at = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		d.ID, string(d.Status), d.GatewayResponse, d.Channel, d.AuthorizationCode, d.IPAddress, d.PaidAt,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrDepositNotFound
		}
		return fmt.Errorf("update deposit: %w", err)
	}
	return nil
}

// ListPendingDeposits возвращает пополнения, ожидающие подтверждения с момента до createdBefore.
func (q *queries) ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int) ([]model.Deposit, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+depositColumns+`
		 FROM deposits
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.DepositStatusPending), createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending deposits: %w", err)
	}
	defer rows.Close()

	var res []model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
