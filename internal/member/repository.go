package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcall/rollcall/internal/infra"
)

// Repository persists members.
type Repository interface {
	Create(ctx context.Context, m Member) error
	FindByPhone(ctx context.Context, phone string) (Member, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed member repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new member; ErrExists when the phone is taken.
func (r *PostgresRepository) Create(ctx context.Context, m Member) error {
	_, err := r.db.Exec(ctx, `INSERT INTO members (phone, name, created_at) VALUES ($1, $2, $3)`,
		m.Phone, m.Name, m.CreatedAt.UTC())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// FindByPhone fetches a member by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Member, error) {
	var (
		m         Member
		createdAt time.Time
	)
	err := r.db.QueryRow(ctx, `SELECT phone, name, created_at FROM members WHERE phone = $1`, phone).
		Scan(&m.Phone, &m.Name, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("find member: %w", err)
	}
	m.CreatedAt = createdAt.UTC()
	return m, nil
}
