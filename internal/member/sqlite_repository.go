package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rollcall/rollcall/internal/infra"
)

// SQLiteRepository implements Repository on a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an already migrated database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, m Member) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO members (phone, name, created_at) VALUES (?, ?, ?)`,
		m.Phone, m.Name, m.CreatedAt.UTC().UnixMilli())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindByPhone(ctx context.Context, phone string) (Member, error) {
	var (
		m         Member
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT phone, name, created_at FROM members WHERE phone = ?`, phone).
		Scan(&m.Phone, &m.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("find member: %w", err)
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return m, nil
}
