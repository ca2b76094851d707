package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists orders and their line items.
type Repository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, order Order) error
	LatestForCustomer(ctx context.Context, customerID string) (Order, error)
}

// PostgresRepository stores orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an order and its items in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return err
	}
	customerID, err := uuid.Parse(o.CustomerID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, customer_id, status, total, estimated_cost, topup_funds_applied, settled, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)`,
		id, customerID, o.Status, o.Total.String(), o.EstimatedCost.String(), o.TopUpFundsApplied, o.Settled, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		var topUpValue *string
		if it.TopUpValue.Valid {
			v := it.TopUpValue.Decimal.String()
			topUpValue = &v
		}
		_, err = tx.Exec(ctx, `INSERT INTO order_items (order_id, position, product_id, name, quantity, line_total, topup_value, is_topup, is_subscription)
            VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)`,
			id, i, it.ProductID, it.Name, it.Quantity, it.LineTotal.String(), topUpValue, it.TopUp, it.Subscription)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Get fetches an order with its items.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return Order{}, ErrNotFound
	}
	o, err := r.scanOrder(r.db.QueryRow(ctx, `SELECT id, customer_id, status, total::text, estimated_cost::text, topup_funds_applied, settled, created_at, updated_at
        FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.items(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// Update stores the mutable order fields.
func (r *PostgresRepository) Update(ctx context.Context, o Order) error {
	orderID, err := uuid.Parse(o.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE orders SET status = $1, total = $2::numeric, topup_funds_applied = $3, settled = $4, updated_at = $5
        WHERE id = $6`, o.Status, o.Total.String(), o.TopUpFundsApplied, o.Settled, o.UpdatedAt.UTC(), orderID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestForCustomer returns the customer's most recently created order.
func (r *PostgresRepository) LatestForCustomer(ctx context.Context, customerID string) (Order, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return Order{}, ErrNotFound
	}
	return r.scanOrder(r.db.QueryRow(ctx, `SELECT id, customer_id, status, total::text, estimated_cost::text, topup_funds_applied, settled, created_at, updated_at
        FROM orders WHERE customer_id = $1 ORDER BY created_at DESC LIMIT 1`, cid))
}

func (r *PostgresRepository) scanOrder(row pgx.Row) (Order, error) {
	var (
		o                Order
		id, customerID   uuid.UUID
		total, estimated string
	)
	err := row.Scan(&id, &customerID, &o.Status, &total, &estimated, &o.TopUpFundsApplied, &o.Settled, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.ID = id.String()
	o.CustomerID = customerID.String()
	o.Total = parseAmount(total)
	o.EstimatedCost = parseAmount(estimated)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (r *PostgresRepository) items(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT product_id, name, quantity, line_total::text, topup_value::text, is_topup, is_subscription
        FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it         Item
			lineTotal  string
			topUpValue *string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &lineTotal, &topUpValue, &it.TopUp, &it.Subscription); err != nil {
			return nil, err
		}
		it.LineTotal = parseAmount(lineTotal)
		if topUpValue != nil {
			it.TopUpValue = decimal.NewNullDecimal(parseAmount(*topUpValue))
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
