package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/infra"
)

// PostgresStore persists attendance in PostgreSQL. The attendance table's
// UNIQUE (phone, day) constraint arbitrates concurrent check-ins.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgColumns = `id, phone, name, day::text, check_in, check_out, COALESCE(closed_by, '')`

func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO attendance (id, phone, name, day, check_in)
        VALUES ($1, $2, $3, $4::date, $5)`,
		id, rec.Phone, rec.Name, clock.DayKey(rec.Day), rec.CheckIn.UTC())
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, phone string, day time.Time) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgColumns+` FROM attendance WHERE phone = $1 AND day = $2::date`,
		phone, clock.DayKey(day))
	rec, err := scanPostgres(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get attendance: %w", err)
	}
	return rec, nil
}

// MarkOut only touches an open row, so of two concurrent calls exactly one
// sees a row affected.
func (s *PostgresStore) MarkOut(ctx context.Context, phone string, day, at time.Time, by Actor) error {
	cmd, err := s.db.Exec(ctx, `UPDATE attendance SET check_out = $1, closed_by = $2
        WHERE phone = $3 AND day = $4::date AND check_out IS NULL`,
		at.UTC(), string(by), phone, clock.DayKey(day))
	if err != nil {
		return fmt.Errorf("mark out: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, phone, day); err != nil {
		return err
	}
	return ErrAlreadyOut
}

func (s *PostgresStore) History(ctx context.Context, phone string, since time.Time, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pgColumns+` FROM attendance
        WHERE phone = $1 AND day >= $2::date ORDER BY day DESC LIMIT $3`,
		phone, clock.DayKey(since), limit)
	if err != nil {
		return nil, fmt.Errorf("attendance history: %w", err)
	}
	defer rows.Close()
	return collectPostgres(rows)
}

func (s *PostgresStore) ListDay(ctx context.Context, day time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pgColumns+` FROM attendance
        WHERE day = $1::date ORDER BY check_in ASC`, clock.DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("list attendance day: %w", err)
	}
	defer rows.Close()
	return collectPostgres(rows)
}

func collectPostgres(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanPostgres(rows)
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

func scanPostgres(row pgx.Row) (Record, error) {
	var (
		rec      Record
		id       uuid.UUID
		dayKey   string
		checkIn  time.Time
		checkOut *time.Time
		closedBy string
	)
	if err := row.Scan(&id, &rec.Phone, &rec.Name, &dayKey, &checkIn, &checkOut, &closedBy); err != nil {
		return Record{}, err
	}
	day, err := clock.ParseDayKey(dayKey)
	if err != nil {
		return Record{}, err
	}
	rec.ID = id.String()
	rec.Day = day
	rec.CheckIn = checkIn.In(clock.Location)
	if checkOut != nil {
		out := checkOut.In(clock.Location)
		rec.CheckOut = &out
	}
	rec.ClosedBy = Actor(closedBy)
	return rec, nil
}
