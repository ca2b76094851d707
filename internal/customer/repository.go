package customer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository persists customers.
type Repository interface {
	Create(ctx context.Context, customer Customer) error
	FindByPhone(ctx context.Context, phone string) (Customer, error)
	FindByID(ctx context.Context, id string) (Customer, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed customer repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new customer. A duplicate phone yields ErrExists.
func (r *PostgresRepository) Create(ctx context.Context, c Customer) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO customers (id, phone, first_name, last_name, address, latitude, longitude, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, c.Phone, c.FirstName, c.LastName, c.Address, c.Latitude, c.Longitude, c.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrExists
	}
	return err
}

// FindByPhone fetches a customer by normalized phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Customer, error) {
	return r.findOne(ctx, `SELECT id, phone, first_name, last_name, address, latitude, longitude, created_at
        FROM customers WHERE phone = $1`, phone)
}

// FindByID fetches a customer by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Customer, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return Customer{}, ErrNotFound
	}
	return r.findOne(ctx, `SELECT id, phone, first_name, last_name, address, latitude, longitude, created_at
        FROM customers WHERE id = $1`, customerID)
}

// Exists reports whether a customer with id is stored.
func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, customerID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (Customer, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		c         Customer
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&id, &c.Phone, &c.FirstName, &c.LastName, &c.Address, &c.Latitude, &c.Longitude, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	c.ID = id.String()
	c.CreatedAt = createdAt.UTC()
	return c, nil
}
