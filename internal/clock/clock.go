// Package clock anchors every date and time in the service to the facility's
// fixed UTC+5:30 offset. Nothing here consults the host's local zone.
package clock

import (
	"strconv"
	"sync"
	"time"
)

// Offset is the facility's fixed distance from UTC.
const Offset = 5*time.Hour + 30*time.Minute

// Day is the length of one facility-day. The zone has no DST so it is constant.
const Day = 24 * time.Hour

// Location is the facility zone.
var Location = time.FixedZone("IST", int(Offset/time.Second))

// Clock yields the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns the current instant in facility time.
func (System) Now() time.Time {
	return time.Now().In(Location)
}

// Fixed is a settable clock for tests and replays.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now returns the stored instant in facility time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t.In(Location)
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// StartOfDay returns facility midnight for the day containing t.
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// StartOfNextDay returns facility midnight of the following day.
func StartOfNextDay(t time.Time) time.Time {
	return StartOfDay(t).Add(Day)
}

// PreviousDay returns facility midnight of the day before t's day.
func PreviousDay(t time.Time) time.Time {
	return StartOfDay(t).Add(-Day)
}

// DayKey renders the facility date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.In(Location).Format(time.DateOnly)
}

// ParseDayKey is the inverse of DayKey.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, key, Location)
}

// FormatClock renders t as "hh:mm:ss AM" in facility time.
func FormatClock(t time.Time) string {
	local := t.In(Location)
	h, m, s := local.Clock()
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	buf := make([]byte, 0, 11)
	buf = appendTwo(buf, h)
	buf = append(buf, ':')
	buf = appendTwo(buf, m)
	buf = append(buf, ':')
	buf = appendTwo(buf, s)
	buf = append(buf, ' ')
	buf = append(buf, suffix...)
	return string(buf)
}

func appendTwo(buf []byte, v int) []byte {
	if v < 10 {
		buf = append(buf, '0')
	}
	return strconv.AppendInt(buf, int64(v), 10)
}
