package clock

import (
	"testing"
	"time"
)

func TestStartOfDayUsesFacilityOffset(t *testing.T) {
	// 20:00 UTC on Jan 1 is 01:30 on Jan 2 at the facility.
	instant := time.Date(2026, time.January, 1, 20, 0, 0, 0, time.UTC)
	day := StartOfDay(instant)

	if got := DayKey(day); got != "2026-01-02" {
		t.Fatalf("expected day 2026-01-02, got %s", got)
	}
	h, m, s := day.Clock()
	if h != 0 || m != 0 || s != 0 || day.Nanosecond() != 0 {
		t.Fatalf("expected midnight, got %s", day)
	}
	if _, off := day.Zone(); off != 19800 {
		t.Fatalf("expected +05:30 offset, got %d", off)
	}
}

func TestStartOfDayIgnoresCallerZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	instant := time.Date(2026, time.March, 10, 22, 0, 0, 0, ny)
	if !StartOfDay(instant).Equal(StartOfDay(instant.UTC())) {
		t.Fatalf("day key depends on input zone")
	}
}

func TestStartOfNextDay(t *testing.T) {
	instant := time.Date(2026, time.February, 28, 12, 0, 0, 0, Location)
	next := StartOfNextDay(instant)
	if got := DayKey(next); got != "2026-03-01" {
		t.Fatalf("expected 2026-03-01, got %s", got)
	}
	if next.Sub(StartOfDay(instant)) != Day {
		t.Fatalf("expected 24h between day keys")
	}
	if got := DayKey(PreviousDay(instant)); got != "2026-02-27" {
		t.Fatalf("expected 2026-02-27, got %s", got)
	}
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 1, 1, 0, 0, 5, 0, Location), "12:00:05 AM"},
		{time.Date(2026, 1, 1, 9, 7, 3, 0, Location), "09:07:03 AM"},
		{time.Date(2026, 1, 1, 12, 0, 0, 0, Location), "12:00:00 PM"},
		{time.Date(2026, 1, 1, 23, 59, 59, 0, Location), "11:59:59 PM"},
		// 08:00 UTC is 13:30 at the facility.
		{time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC), "01:30:00 PM"},
	}
	for _, tc := range cases {
		if got := FormatClock(tc.in); got != tc.want {
			t.Fatalf("FormatClock(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewFixed(start)
	c.Advance(time.Hour)
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("advance not applied")
	}
	if c.Now().Location() != Location {
		t.Fatalf("expected facility location")
	}
}

func TestParseDayKeyRoundTrip(t *testing.T) {
	day := StartOfDay(time.Date(2026, 7, 4, 18, 45, 0, 0, time.UTC))
	parsed, err := ParseDayKey(DayKey(day))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(day) {
		t.Fatalf("expected %s, got %s", day, parsed)
	}
}
