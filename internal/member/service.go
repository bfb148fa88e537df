package member

import (
	"context"
	"errors"
	"strings"

	"github.com/rollcall/rollcall/internal/clock"
)

// Service looks members up and creates them on first registration.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService creates a member service.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk}
}

// Ensure returns the member for phone, creating it with name when absent.
// An existing member keeps its stored name. created reports whether this call
// inserted the row.
func (s *Service) Ensure(ctx context.Context, phone, name string) (m Member, created bool, err error) {
	phone, err = NormalizePhone(phone)
	if err != nil {
		return Member{}, false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Member{}, false, ErrNameRequired
	}

	m, err = s.repo.FindByPhone(ctx, phone)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Member{}, false, err
	}

	m = Member{Phone: phone, Name: name, CreatedAt: s.clock.Now().UTC()}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, ErrExists) {
			// Lost a concurrent registration; the winner's row is authoritative.
			m, err = s.repo.FindByPhone(ctx, phone)
			return m, false, err
		}
		return Member{}, false, err
	}
	return m, true, nil
}

// Get returns the member registered under phone.
func (s *Service) Get(ctx context.Context, phone string) (Member, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return Member{}, err
	}
	return s.repo.FindByPhone(ctx, phone)
}
