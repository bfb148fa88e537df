package member

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("member not found")
	ErrExists       = errors.New("member exists")
	ErrInvalidPhone = errors.New("phone must be a 10 digit number")
	ErrNameRequired = errors.New("name is required")
)

const phoneDigits = 10

// Member is a registered attendee, keyed by phone.
type Member struct {
	Phone     string
	Name      string
	CreatedAt time.Time
}

// NormalizePhone strips spaces and dashes and requires exactly ten digits.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if len(phone) != phoneDigits {
		return "", ErrInvalidPhone
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	return phone, nil
}
