package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

const bundleColumns = `id, name, price, winning_percentage, min_per_user, max_per_user, status,
	current_round, round_outcomes, created_at, updated_at`

func scanBundle(row rowScanner) (*model.Bundle, error) {
	var (
		b        model.Bundle
		status   string
		outcomes []byte
	)
	err := row.Scan(&b.ID, &b.Name, &b.Price, &b.WinningPercentage, &b.MinPerUser, &b.MaxPerUser, &status,
		&b.CurrentRound, &outcomes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBundleNotFound
		}
		return nil, fmt.Errorf("scan bundle: %w", err)
	}
	b.Status = model.BundleStatus(status)
	b.RoundOutcomes = make(map[int]model.BundleStatus)
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &b.RoundOutcomes); err != nil {
			return nil, fmt.Errorf("decode round outcomes: %w", err)
		}
	}
	return &b, nil
}

func encodeOutcomes(outcomes map[int]model.BundleStatus) ([]byte, error) {
	if outcomes == nil {
		outcomes = map[int]model.BundleStatus{}
	}
	data, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("encode round outcomes: %w", err)
	}
	return data, nil
}

// InsertBundle создаёт пакет ставок.
func (q *queries) InsertBundle(ctx context.Context, b *model.Bundle) error {
	outcomes, err := encodeOutcomes(b.RoundOutcomes)
	if err != nil {
		return err
	}

	err = q.db.QueryRow(ctx,
		`INSERT INTO bundles (id, name, price, winning_percentage, min_per_user, max_per_user, status, current_round, round_outcomes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		b.ID, b.Name, b.Price, b.WinningPercentage, b.MinPerUser, b.MaxPerUser, string(b.Status), b.CurrentRound, outcomes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "bundles_name_key") {
			return fmt.Errorf("%w: name %q is taken", model.ErrInvalidBundle, b.Name)
		}
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// GetBundle возвращает пакет по идентификатору.
func (q *queries) GetBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	return scanBundle(q.db.QueryRow(ctx,
		`SELECT `+bundleColumns+` FROM bundles WHERE id = $1`, id))
}

// LockBundle возвращает пакет, блокируя его строку до конца транзакции.
func (q *queries) LockBundle(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	return scanBundle(q.db.QueryRow(ctx,
		`SELECT `+bundleColumns+` FROM bundles WHERE id = $1 FOR UPDATE`, id))
}

// UpdateBundle сохраняет статус, текущий раунд и исходы раундов.
func (q *queries) UpdateBundle(ctx context.Context, b *model.Bundle) error {
	outcomes, err := encodeOutcomes(b.RoundOutcomes)
	if err != nil {
		return err
	}

	err = q.db.QueryRow(ctx,
		`UPDATE bundles SET status = $2, current_round = $3, round_outcomes = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		b.ID, string(b.Status), b.CurrentRound, outcomes,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrBundleNotFound
		}
		return fmt.Errorf("update bundle: %w", err)
	}
	return nil
}

// IsParticipant сообщает, покупал ли пользователь пакет ранее.
func (q *queries) IsParticipant(ctx context.Context, bundleID uuid.UUID, userID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bundle_participants WHERE bundle_id = $1 AND user_id = $2)`,
		bundleID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

// AddParticipant добавляет пользователя в участники пакета.
func (q *queries) AddParticipant(ctx context.Context, bundleID uuid.UUID, userID int64) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO bundle_participants (bundle_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		bundleID, userID,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

const purchaseColumns = `id, user_id, bundle_id, round, quantity, amount, payout_amount, reference, status, created_at`

func scanPurchases(rows pgx.Rows) ([]model.Purchase, error) {
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		var (
			p      model.Purchase
			status string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.BundleID, &p.Round, &p.Quantity, &p.Amount,
			&p.PayoutAmount, &p.Reference, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		p.Status = model.PurchaseStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// InsertPurchase сохраняет покупку пакета.
func (q *queries) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO purchases (id, user_id, bundle_id, round, quantity, amount, payout_amount, reference, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		p.ID, p.UserID, p.BundleID, p.Round, p.Quantity, p.Amount, p.PayoutAmount, p.Reference, string(p.Status),
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "purchases_reference_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, p.Reference)
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// ListPurchasesByBundle возвращает покупки пакета с указанным статусом в порядке создания.
func (q *queries) ListPurchasesByBundle(ctx context.Context, bundleID uuid.UUID, status model.PurchaseStatus) ([]model.Purchase, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE bundle_id = $1 AND status = $2 ORDER BY created_at, id`,
		bundleID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	return scanPurchases(rows)
}

// ListUnpaidPurchases возвращает одобренные покупки пакета, по которым ещё нет выплаты.
func (q *queries) ListUnpaidPurchases(ctx context.Context, bundleID uuid.UUID) ([]model.Purchase, error) {
	rows, err := q.db.Query(ctx,
		`SELECT p.id, p.user_id, p.bundle_id, p.round, p.quantity, p.amount, p.payout_amount, p.reference, p.status, p.created_at
		 FROM purchases p
		 LEFT JOIN payouts po ON po.purchase_id = p.id
		 WHERE p.bundle_id = $1 AND p.status = $2 AND po.id IS NULL
		 ORDER BY p.created_at, p.id`,
		bundleID, string(model.PurchaseStatusApproved),
	)
	if err != nil {
		return nil, fmt.Errorf("select unpaid purchases: %w", err)
	}
	return scanPurchases(rows)
}

// InsertPayout сохраняет выплату. На одну покупку допускается одна выплата.
func (q *queries) InsertPayout(ctx context.Context, p *model.Payout) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO payouts (id, user_id, bundle_id, purchase_id, amount, reference, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		p.ID, p.UserID, p.BundleID, p.PurchaseID, p.Amount, p.Reference, string(p.Status),
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "payouts_purchase_id_key") {
			return fmt.Errorf("%w: %s", ErrPayoutExists, p.PurchaseID)
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// ListPayoutsByBundle возвращает выплаты по пакету.
func (q *queries) ListPayoutsByBundle(ctx context.Context, bundleID uuid.UUID) ([]model.Payout, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, user_id, bundle_id, purchase_id, amount, reference, status, created_at
		 FROM payouts WHERE bundle_id = $1 ORDER BY created_at, id`,
		bundleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payouts: %w", err)
	}
	defer rows.Close()

	var res []model.Payout
	for rows.Next() {
		var (
			p      model.Payout
			status string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.BundleID, &p.PurchaseID, &p.Amount, &p.Reference, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Status = model.PayoutStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
