package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/infra"
)

// SQLiteStore persists attendance in a local SQLite file. Instants are stored
// as unix milliseconds and days as YYYY-MM-DD facility dates.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteColumns = `id, phone, name, day, check_in, check_out, COALESCE(closed_by, '')`

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO attendance (id, phone, name, day, check_in) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Phone, rec.Name, clock.DayKey(rec.Day), rec.CheckIn.UTC().UnixMilli())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, phone string, day time.Time) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM attendance WHERE phone = ? AND day = ?`,
		phone, clock.DayKey(day))
	rec, err := scanSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get attendance: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) MarkOut(ctx context.Context, phone string, day, at time.Time, by Actor) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attendance SET check_out = ?, closed_by = ?
        WHERE phone = ? AND day = ? AND check_out IS NULL`,
		at.UTC().UnixMilli(), string(by), phone, clock.DayKey(day))
	if err != nil {
		return fmt.Errorf("mark out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark out rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, phone, day); err != nil {
		return err
	}
	return ErrAlreadyOut
}

func (s *SQLiteStore) History(ctx context.Context, phone string, since time.Time, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM attendance
        WHERE phone = ? AND day >= ? ORDER BY day DESC LIMIT ?`,
		phone, clock.DayKey(since), limit)
	if err != nil {
		return nil, fmt.Errorf("attendance history: %w", err)
	}
	defer rows.Close()
	return collectSQLite(rows)
}

func (s *SQLiteStore) ListDay(ctx context.Context, day time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM attendance
        WHERE day = ? ORDER BY check_in ASC`, clock.DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("list attendance day: %w", err)
	}
	defer rows.Close()
	return collectSQLite(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func collectSQLite(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

func scanSQLite(row scanner) (Record, error) {
	var (
		rec      Record
		dayKey   string
		checkIn  int64
		checkOut sql.NullInt64
		closedBy string
	)
	if err := row.Scan(&rec.ID, &rec.Phone, &rec.Name, &dayKey, &checkIn, &checkOut, &closedBy); err != nil {
		return Record{}, err
	}
	day, err := clock.ParseDayKey(dayKey)
	if err != nil {
		return Record{}, err
	}
	rec.Day = day
	rec.CheckIn = time.UnixMilli(checkIn).In(clock.Location)
	if checkOut.Valid {
		out := time.UnixMilli(checkOut.Int64).In(clock.Location)
		rec.CheckOut = &out
	}
	rec.ClosedBy = Actor(closedBy)
	return rec, nil
}
