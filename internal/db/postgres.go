package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id uuid PRIMARY KEY,
	order_id text NOT NULL UNIQUE,
	user_id text NOT NULL,
	stripe_session_id text NOT NULL,
	items jsonb NOT NULL,
	delivery_method text NOT NULL,
	shipping_cost numeric(12,2) NOT NULL,
	total numeric(12,2) NOT NULL,
	status text NOT NULL,
	shipping_address jsonb,
	customer_email text NOT NULL DEFAULT '',
	shipment jsonb,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	CONSTRAINT orders_stripe_session_id_key UNIQUE (stripe_session_id)
);
ALTER TABLE orders ADD COLUMN IF NOT EXISTS shipment jsonb;
CREATE INDEX IF NOT EXISTS orders_user_id_created_at_idx ON orders (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC);
`

const orderColumns = `id, order_id, user_id, stripe_session_id, items, delivery_method,
	shipping_cost::text, total::text, status, shipping_address, customer_email, shipment, created_at, updated_at`

const (
	uniqueViolationCode     = "23505"
	sessionUniqueConstraint = "orders_stripe_session_id_key"
	newestFirstClause       = " ORDER BY created_at DESC, order_id DESC"
)

// PostgresOrderStore keeps orders in a hosted Postgres database. Items and the
// shipping address are stored as jsonb documents on the order row.
type PostgresOrderStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresOrderStore(pool *pgxpool.Pool) *PostgresOrderStore {
	return &PostgresOrderStore{pool: pool, now: time.Now}
}

// EnsureSchema creates the orders table when it does not exist yet.
func (s *PostgresOrderStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return persistenceError("ensure schema", "orders", err)
	}
	return nil
}

func (s *PostgresOrderStore) Create(ctx context.Context, order *Order) (*Order, error) {
	record := prepareForCreate(order, s.now())

	args, err := postgresOrderArgs(record)
	if err != nil {
		return nil, persistenceError("create", record.StripeSessionID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, order_id, user_id, stripe_session_id, items, delivery_method,
			shipping_cost, total, status, shipping_address, customer_email, shipment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14)`,
		args...,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == sessionUniqueConstraint {
			return nil, ErrDuplicateSession
		}
		return nil, persistenceError("create", record.StripeSessionID, err)
	}
	return record, nil
}

func (s *PostgresOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return s.scanOne(row, "find by id", id.String())
}

func (s *PostgresOrderStore) FindByStripeSessionID(ctx context.Context, sessionID string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_session_id = $1`, sessionID)
	return s.scanOne(row, "find by session", sessionID)
}

func (s *PostgresOrderStore) Update(ctx context.Context, id uuid.UUID, patch OrderPatch) (*Order, error) {
	var status *string
	if patch.Status != nil {
		value := string(*patch.Status)
		status = &value
	}
	var addressJSON []byte
	if patch.ShippingAddress != nil {
		encoded, err := json.Marshal(patch.ShippingAddress)
		if err != nil {
			return nil, persistenceError("update", id.String(), err)
		}
		addressJSON = encoded
	}
	shipmentJSON, err := marshalOptional(patch.Shipment)
	if err != nil {
		return nil, persistenceError("update", id.String(), err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET
			status = COALESCE($2, status),
			shipping_address = COALESCE($3, shipping_address),
			customer_email = COALESCE($4, customer_email),
			shipment = COALESCE($5, shipment),
			updated_at = $6
		WHERE id = $1
		RETURNING `+orderColumns,
		id, status, addressJSON, patch.CustomerEmail, shipmentJSON, s.now().UTC(),
	)
	return s.scanOne(row, "update", id.String())
}

func (s *PostgresOrderStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return false, persistenceError("delete", id.String(), err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresOrderStore) FindAll(ctx context.Context, limit int) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders` + newestFirstClause
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("find all", "", err)
	}
	return s.scanAll(rows, "find all", "")
}

func (s *PostgresOrderStore) FindByUserID(ctx context.Context, userID string, excludeCart bool) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if excludeCart {
		query += ` AND status <> $2`
		args = append(args, string(StatusCart))
	}
	rows, err := s.pool.Query(ctx, query+newestFirstClause, args...)
	if err != nil {
		return nil, persistenceError("find by user", userID, err)
	}
	return s.scanAll(rows, "find by user", userID)
}

func (s *PostgresOrderStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return persistenceError("ping", "postgres", err)
	}
	return nil
}

func (s *PostgresOrderStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresOrderStore) scanOne(row pgx.Row, op, key string) (*Order, error) {
	order, err := scanPostgresOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError(op, key, err)
	}
	return order, nil
}

func (s *PostgresOrderStore) scanAll(rows pgx.Rows, op, key string) ([]*Order, error) {
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		order, err := scanPostgresOrder(rows)
		if err != nil {
			return nil, persistenceError(op, key, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(op, key, err)
	}
	return orders, nil
}

func scanPostgresOrder(row pgx.Row) (*Order, error) {
	var (
		order          Order
		itemsJSON      []byte
		addressJSON    []byte
		shipmentJSON   []byte
		deliveryMethod string
		shippingCost   string
		total          string
		status         string
	)
	if err := row.Scan(
		&order.PrivateID,
		&order.OrderID,
		&order.UserID,
		&order.StripeSessionID,
		&itemsJSON,
		&deliveryMethod,
		&shippingCost,
		&total,
		&status,
		&addressJSON,
		&order.CustomerEmail,
		&shipmentJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if len(addressJSON) > 0 {
		var address models.ShippingAddress
		if err := json.Unmarshal(addressJSON, &address); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
		order.ShippingAddress = &address
	}
	if len(shipmentJSON) > 0 {
		var shipment models.Shipment
		if err := json.Unmarshal(shipmentJSON, &shipment); err != nil {
			return nil, fmt.Errorf("decode shipment: %w", err)
		}
		order.Shipment = &shipment
	}

	var err error
	if order.ShippingCost, err = decimal.NewFromString(shippingCost); err != nil {
		return nil, fmt.Errorf("decode shipping cost: %w", err)
	}
	if order.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total: %w", err)
	}
	order.DeliveryMethod = models.DeliveryMethod(deliveryMethod)
	order.Status = models.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return &order, nil
}

// postgresOrderArgs encodes an order in orderColumns order, which is also the INSERT column order.
func postgresOrderArgs(order *Order) ([]any, error) {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	addressJSON, err := marshalOptional(order.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}
	shipmentJSON, err := marshalOptional(order.Shipment)
	if err != nil {
		return nil, fmt.Errorf("encode shipment: %w", err)
	}

	return []any{
		order.PrivateID,
		order.OrderID,
		order.UserID,
		order.StripeSessionID,
		itemsJSON,
		string(order.DeliveryMethod),
		order.ShippingCost.StringFixed(2),
		order.Total.StringFixed(2),
		string(order.Status),
		addressJSON,
		order.CustomerEmail,
		shipmentJSON,
		order.CreatedAt,
		order.UpdatedAt,
	}, nil
}

// marshalOptional encodes v as jsonb, or SQL NULL when v is nil.
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
