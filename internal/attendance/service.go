package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/logging"
	"github.com/rollcall/rollcall/internal/member"
	"github.com/rollcall/rollcall/internal/metrics"
	"github.com/rollcall/rollcall/internal/notification"
)

const (
	// HistoryDays is how far back History looks, in facility-days.
	HistoryDays = 30
	// HistoryLimit caps the number of records History returns.
	HistoryLimit = 30
)

// Outcome tells the caller which branch of the entry flow was taken.
type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeAlreadyIn        Outcome = "already_in"
	OutcomeAlreadyCompleted Outcome = "already_completed_today"
)

// Entry is the result of Register or SignIn.
type Entry struct {
	Member          member.Member
	MemberCreated   bool
	Outcome         Outcome
	Record          Record
	ForgotYesterday bool
}

// Snapshot is the read-only view returned by Status.
type Snapshot struct {
	Member          member.Member
	Today           *Record
	ForgotYesterday bool
}

// DaySummary lists one facility-day's records.
type DaySummary struct {
	Day         time.Time
	Records     []Record
	Count       int
	InsideCount int
}

// Service runs the daily state machine on top of a Store.
type Service struct {
	store    Store
	members  *member.Service
	clock    clock.Clock
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires the ledger. notifier, m and logger may be nil.
func NewService(store Store, members *member.Service, clk clock.Clock, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:    store,
		members:  members,
		clock:    clk,
		notifier: notifier,
		metrics:  m,
		logger:   logging.Component(logger, "attendance"),
	}
}

// Register creates the member if needed and checks them in for today.
func (s *Service) Register(ctx context.Context, phone, name string) (Entry, error) {
	m, created, err := s.members.Ensure(ctx, phone, name)
	if err != nil {
		s.metrics.ObserveLedger("register", "error")
		return Entry{}, err
	}
	entry, err := s.enter(ctx, "register", m)
	entry.MemberCreated = created
	return entry, err
}

// SignIn checks an existing member in for today.
func (s *Service) SignIn(ctx context.Context, phone string) (Entry, error) {
	m, err := s.members.Get(ctx, phone)
	if err != nil {
		s.metrics.ObserveLedger("signin", "error")
		if errors.Is(err, member.ErrNotFound) {
			return Entry{}, ErrUnknownMember
		}
		return Entry{}, err
	}
	return s.enter(ctx, "signin", m)
}

func (s *Service) enter(ctx context.Context, op string, m member.Member) (Entry, error) {
	now := s.clock.Now()
	today := clock.StartOfDay(now)

	forgot, err := s.forgotYesterday(ctx, m.Phone, today)
	if err != nil {
		s.metrics.ObserveLedger(op, "error")
		return Entry{}, err
	}
	entry := Entry{Member: m, ForgotYesterday: forgot}

	rec, err := s.store.Get(ctx, m.Phone, today)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = Record{
			ID:      uuid.NewString(),
			Phone:   m.Phone,
			Name:    m.Name,
			Day:     today,
			CheckIn: now,
		}
		err = s.store.Insert(ctx, rec)
		if err == nil {
			entry.Outcome = OutcomeCheckedIn
			entry.Record = rec
			s.metrics.ObserveLedger(op, string(OutcomeCheckedIn))
			s.logger.Info("member checked in", slog.String("record_id", rec.ID), slog.String("day", clock.DayKey(today)))
			if forgot {
				s.notify(ctx, notification.Message{
					Kind:        notification.KindForgotCheckout,
					Destination: m.Phone,
					Body:        "You did not mark OUT yesterday. Please remember to mark OUT when you leave.",
				})
			}
			return entry, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			s.metrics.ObserveLedger(op, "error")
			return Entry{}, err
		}
		// A concurrent request created today's record first.
		s.metrics.ObserveInsertRace()
		rec, err = s.store.Get(ctx, m.Phone, today)
		if err != nil {
			s.metrics.ObserveLedger(op, "error")
			return Entry{}, fmt.Errorf("re-read after insert race: %w", err)
		}
	case err != nil:
		s.metrics.ObserveLedger(op, "error")
		return Entry{}, err
	}

	entry.Record = rec
	if rec.CheckOut != nil {
		entry.Outcome = OutcomeAlreadyCompleted
	} else {
		entry.Outcome = OutcomeAlreadyIn
	}
	s.metrics.ObserveLedger(op, string(entry.Outcome))
	return entry, nil
}

// MarkOut closes today's record for phone on behalf of actor and returns the
// closed record.
func (s *Service) MarkOut(ctx context.Context, phone string, actor Actor) (Record, error) {
	op := "mark_out"
	if actor == ActorOperator {
		op = "force_out"
	}
	phone, err := member.NormalizePhone(phone)
	if err != nil {
		s.metrics.ObserveLedger(op, "error")
		return Record{}, err
	}

	now := s.clock.Now()
	today := clock.StartOfDay(now)
	if err := s.store.MarkOut(ctx, phone, today, now, actor); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			s.metrics.ObserveLedger(op, "not_checked_in")
			return Record{}, ErrNotCheckedIn
		case errors.Is(err, ErrAlreadyOut):
			s.metrics.ObserveLedger(op, "already_out")
			return Record{}, ErrAlreadyOut
		default:
			s.metrics.ObserveLedger(op, "error")
			return Record{}, err
		}
	}

	rec, err := s.store.Get(ctx, phone, today)
	if err != nil {
		s.metrics.ObserveLedger(op, "error")
		return Record{}, fmt.Errorf("read closed record: %w", err)
	}
	s.metrics.ObserveLedger(op, "ok")
	s.logger.Info("member marked out", slog.String("record_id", rec.ID), slog.String("actor", string(actor)))

	if actor == ActorOperator {
		s.notify(ctx, notification.Message{
			Kind:        notification.KindForcedOut,
			Destination: phone,
			Body:        "You were marked OUT by the facility at " + clock.FormatClock(now) + ".",
		})
	}
	return rec, nil
}

// Status reports today's record and the forgot-yesterday flag without
// changing anything.
func (s *Service) Status(ctx context.Context, phone string) (Snapshot, error) {
	m, err := s.members.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return Snapshot{}, ErrUnknownMember
		}
		return Snapshot{}, err
	}
	today := clock.StartOfDay(s.clock.Now())
	forgot, err := s.forgotYesterday(ctx, m.Phone, today)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Member: m, ForgotYesterday: forgot}
	rec, err := s.store.Get(ctx, m.Phone, today)
	switch {
	case err == nil:
		snap.Today = &rec
	case !errors.Is(err, ErrNotFound):
		return Snapshot{}, err
	}
	return snap, nil
}

// History returns the member's records from the last HistoryDays
// facility-days, newest first.
func (s *Service) History(ctx context.Context, phone string) ([]Record, error) {
	phone, err := member.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	since := clock.StartOfDay(s.clock.Now()).AddDate(0, 0, -HistoryDays)
	return s.store.History(ctx, phone, since, HistoryLimit)
}

// Today summarises the current facility-day for the operator.
func (s *Service) Today(ctx context.Context) (DaySummary, error) {
	day := clock.StartOfDay(s.clock.Now())
	records, err := s.store.ListDay(ctx, day)
	if err != nil {
		return DaySummary{}, err
	}
	sum := DaySummary{Day: day, Records: records, Count: len(records)}
	for _, r := range records {
		if r.CheckOut == nil {
			sum.InsideCount++
		}
	}
	return sum, nil
}

func (s *Service) forgotYesterday(ctx context.Context, phone string, today time.Time) (bool, error) {
	rec, err := s.store.Get(ctx, phone, today.Add(-clock.Day))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read previous day: %w", err)
	}
	return rec.CheckOut == nil, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
