package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
)

const (
	cardColumns = `id, owner_id, par_value, balance, status, expire_time, bind_time, code_hash, version, created_at, updated_at`

	consumptionColumns = `id, card_id, contract_id, title, order_id, amount, refundable_amount, created_at, created_by, created_ip`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgReader struct {
	q querier
	// forUpdate row-locks contracts read inside a transaction.
	forUpdate bool
}

// PostgresStore persists cards, contracts and consumptions in PostgreSQL.
type PostgresStore struct {
	pgReader
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgReader: pgReader{q: db}, db: db}
}

// WithinTx runs fn inside a database transaction, committing only when fn succeeds.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{pgReader: pgReader{q: tx, forUpdate: true}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExpireDue marks a batch of overdue valid cards as expired.
func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE gift_cards SET status = $1, version = version + 1, updated_at = $2
        WHERE id IN (
            SELECT id FROM gift_cards
            WHERE status = $3 AND expire_time <= $2
            ORDER BY id LIMIT $4 FOR UPDATE SKIP LOCKED)`,
		string(card.StatusExpired), now.UTC(), string(card.StatusValid), limit)
	if err != nil {
		return 0, fmt.Errorf("expire cards: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// MarkEmpty marks a batch of valid cards without balance as empty.
func (s *PostgresStore) MarkEmpty(ctx context.Context, now time.Time, limit int) (int64, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE gift_cards SET status = $1, version = version + 1, updated_at = $2
        WHERE id IN (
            SELECT id FROM gift_cards
            WHERE status = $3 AND COALESCE(balance, 0) <= 0
            ORDER BY id LIMIT $4 FOR UPDATE SKIP LOCKED)`,
		string(card.StatusEmpty), now.UTC(), string(card.StatusValid), limit)
	if err != nil {
		return 0, fmt.Errorf("mark empty cards: %w", err)
	}
	return cmd.RowsAffected(), nil
}

type pgTx struct {
	pgReader
}

func (r pgReader) GetCard(ctx context.Context, id string) (card.Card, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return card.Card{}, card.ErrNotFound
	}
	row := r.q.QueryRow(ctx, `SELECT `+cardColumns+` FROM gift_cards WHERE id = $1`, cardID)
	c, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return card.Card{}, card.ErrNotFound
	}
	return c, err
}

func (r pgReader) ListCardsByOwner(ctx context.Context, ownerID string) ([]card.Card, error) {
	return r.listCards(ctx, `SELECT `+cardColumns+` FROM gift_cards WHERE owner_id = $1 ORDER BY id`, ownerID)
}

func (r pgReader) ListSpendableCards(ctx context.Context, ownerID string) ([]card.Card, error) {
	return r.listCards(ctx, `SELECT `+cardColumns+` FROM gift_cards
        WHERE owner_id = $1 AND status = $2 AND balance > 0
        ORDER BY expire_time ASC NULLS LAST, id ASC`, ownerID, string(card.StatusValid))
}

func (r pgReader) SumSpendableBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM gift_cards
        WHERE owner_id = $1 AND status = $2 AND balance > 0`, ownerID, string(card.StatusValid)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r pgReader) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	contractID, err := uuid.Parse(id)
	if err != nil {
		return contract.Contract{}, contract.ErrNotFound
	}
	query := `SELECT id, code, owner_id, cost_amount, refund_time, created_at FROM card_contracts WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		c     contract.Contract
		idVal uuid.UUID
	)
	if err := r.q.QueryRow(ctx, query, contractID).Scan(&idVal, &c.Code, &c.OwnerID, &c.CostAmount, &c.RefundTime, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contract.Contract{}, contract.ErrNotFound
		}
		return contract.Contract{}, err
	}
	c.ID = idVal.String()
	c.CreatedAt = c.CreatedAt.UTC()

	rows, err := r.q.Query(ctx, `SELECT `+consumptionColumns+` FROM card_consumptions WHERE contract_id = $1 ORDER BY seq`, contractID)
	if err != nil {
		return contract.Contract{}, err
	}
	defer rows.Close()
	for rows.Next() {
		line, err := scanConsumption(rows)
		if err != nil {
			return contract.Contract{}, err
		}
		c.Consumptions = append(c.Consumptions, line)
	}
	if err := rows.Err(); err != nil {
		return contract.Contract{}, err
	}
	return c, nil
}

func (r pgReader) ListConsumptionsByCard(ctx context.Context, cardID string) ([]contract.Consumption, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return nil, card.ErrNotFound
	}
	rows, err := r.q.Query(ctx, `SELECT `+consumptionColumns+` FROM card_consumptions WHERE card_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.Consumption
	for rows.Next() {
		line, err := scanConsumption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateCard(ctx context.Context, c card.Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO gift_cards (`+cardColumns+`)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, 0, $9, $10)`,
		cardID, c.OwnerID, c.ParValue, c.Balance, string(c.Status), c.ExpireTime, c.BindTime, c.CodeHash, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return err
}

func (t *pgTx) UpdateCard(ctx context.Context, c card.Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return card.ErrNotFound
	}
	cmd, err := t.q.Exec(ctx, `UPDATE gift_cards
        SET owner_id = NULLIF($2, ''), balance = $3, status = $4, bind_time = $5, updated_at = $6, version = version + 1
        WHERE id = $1 AND version = $7`,
		cardID, c.OwnerID, c.Balance, string(c.Status), c.BindTime, c.UpdatedAt.UTC(), c.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gift_cards WHERE id = $1)`, cardID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return card.ErrNotFound
	}
	return ErrVersionConflict
}

func (t *pgTx) CreateContract(ctx context.Context, c contract.Contract) error {
	contractID, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `INSERT INTO card_contracts (id, code, owner_id, cost_amount, refund_time, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, contractID, c.Code, c.OwnerID, c.CostAmount, c.RefundTime, c.CreatedAt.UTC())
	return err
}

func (t *pgTx) UpdateContract(ctx context.Context, c contract.Contract) error {
	contractID, err := uuid.Parse(c.ID)
	if err != nil {
		return contract.ErrNotFound
	}
	cmd, err := t.q.Exec(ctx, `UPDATE card_contracts SET refund_time = $2 WHERE id = $1`, contractID, c.RefundTime)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (t *pgTx) CreateConsumption(ctx context.Context, line contract.Consumption) error {
	lineID, err := uuid.Parse(line.ID)
	if err != nil {
		return err
	}
	cardID, err := uuid.Parse(line.CardID)
	if err != nil {
		return card.ErrNotFound
	}
	contractID, err := uuid.Parse(line.ContractID)
	if err != nil {
		return contract.ErrNotFound
	}
	_, err = t.q.Exec(ctx, `INSERT INTO card_consumptions (`+consumptionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lineID, cardID, contractID, line.Title, line.OrderID, line.Amount, line.RefundableAmount, line.CreatedAt.UTC(), line.CreatedBy, line.CreatedIP)
	return err
}

func (t *pgTx) UpdateConsumption(ctx context.Context, line contract.Consumption) error {
	lineID, err := uuid.Parse(line.ID)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `UPDATE card_consumptions SET refundable_amount = $2 WHERE id = $1`, lineID, line.RefundableAmount)
	return err
}

func (r pgReader) listCards(ctx context.Context, query string, args ...any) ([]card.Card, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCard(row pgx.Row) (card.Card, error) {
	var (
		c      card.Card
		idVal  uuid.UUID
		owner  *string
		status string
	)
	if err := row.Scan(&idVal, &owner, &c.ParValue, &c.Balance, &status, &c.ExpireTime, &c.BindTime, &c.CodeHash, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return card.Card{}, err
	}
	c.ID = idVal.String()
	if owner != nil {
		c.OwnerID = *owner
	}
	c.Status = card.Status(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func scanConsumption(row pgx.Row) (contract.Consumption, error) {
	var (
		line       contract.Consumption
		idVal      uuid.UUID
		cardID     uuid.UUID
		contractID uuid.UUID
	)
	if err := row.Scan(&idVal, &cardID, &contractID, &line.Title, &line.OrderID, &line.Amount, &line.RefundableAmount, &line.CreatedAt, &line.CreatedBy, &line.CreatedIP); err != nil {
		return contract.Consumption{}, err
	}
	line.ID = idVal.String()
	line.CardID = cardID.String()
	line.ContractID = contractID.String()
	line.CreatedAt = line.CreatedAt.UTC()
	return line, nil
}
