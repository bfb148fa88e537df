// Package attendance is the per-member daily check-in/check-out ledger.
// Each (phone, facility-day) pair moves NoRecord -> CheckedIn -> CheckedOut
// and never back.
package attendance

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned by a Store when a record for (phone, day) exists.
	ErrDuplicate = errors.New("attendance record already exists")
	// ErrNotFound is returned by a Store when no record matches.
	ErrNotFound = errors.New("attendance record not found")
	// ErrAlreadyOut means the day's record was already closed.
	ErrAlreadyOut = errors.New("already marked OUT")
	// ErrNotCheckedIn means there is no record for today to close.
	ErrNotCheckedIn = errors.New("not marked inside today")
	// ErrUnknownMember means sign-in was attempted for an unregistered phone.
	ErrUnknownMember = errors.New("phone number not registered, please register first")
)

// Actor is who closed a record.
type Actor string

const (
	ActorSelf     Actor = "self"
	ActorOperator Actor = "operator"
)

// State is the derived position of a record in the daily state machine.
type State string

const (
	StateNoRecord   State = "no_record"
	StateCheckedIn  State = "checked_in"
	StateCheckedOut State = "checked_out"
)

// Record is one member's attendance for one facility-day.
type Record struct {
	ID    string
	Phone string
	Name  string
	// Day is the facility midnight the record belongs to.
	Day      time.Time
	CheckIn  time.Time
	CheckOut *time.Time
	ClosedBy Actor
}

// State derives the record's state.
func (r Record) State() State {
	switch {
	case r.ID == "":
		return StateNoRecord
	case r.CheckOut == nil:
		return StateCheckedIn
	default:
		return StateCheckedOut
	}
}

// Store persists records. Implementations must enforce uniqueness of
// (phone, day) atomically and close records with a conditional write.
type Store interface {
	// Insert adds a new record or returns ErrDuplicate.
	Insert(ctx context.Context, rec Record) error
	// Get returns the record for (phone, day) or ErrNotFound.
	Get(ctx context.Context, phone string, day time.Time) (Record, error)
	// MarkOut closes an open record. It returns ErrNotFound when there is no
	// record and ErrAlreadyOut when it was closed before.
	MarkOut(ctx context.Context, phone string, day, at time.Time, by Actor) error
	// History returns records with Day >= since, newest day first, at most limit.
	History(ctx context.Context, phone string, since time.Time, limit int) ([]Record, error)
	// ListDay returns all records for day ordered by check-in.
	ListDay(ctx context.Context, day time.Time) ([]Record, error)
}
