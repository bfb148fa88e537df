package proximity

import (
	"math"
	"testing"
)

func TestDistanceIdenticalPointsIsZero(t *testing.T) {
	if d := DistanceMeters(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
	if d := DistanceMeters(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0 at origin, got %f", d)
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Coordinates{Lat: 28.6139, Lon: 77.2090}
	b := Coordinates{Lat: 19.0760, Lon: 72.8777}
	if Distance(a, b) != Distance(b, a) {
		t.Fatalf("distance not symmetric: %f vs %f", Distance(a, b), Distance(b, a))
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// 150m north of the origin is 150/6371000 rad of latitude.
	lat := 150.0 / EarthRadiusMeters * 180 / math.Pi
	if d := DistanceMeters(0, 0, lat, 0); math.Abs(d-150) > 0.01 {
		t.Fatalf("expected ~150m, got %f", d)
	}
	// One degree of longitude on the equator.
	want := EarthRadiusMeters * math.Pi / 180
	if d := DistanceMeters(0, 0, 0, 1); math.Abs(d-want) > 0.01 {
		t.Fatalf("expected %f, got %f", want, d)
	}
}

func TestDistanceMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 10; i++ {
		d := DistanceMeters(0, 0, float64(i)*0.001, 0)
		if d <= prev {
			t.Fatalf("distance not increasing at step %d: %f <= %f", i, d, prev)
		}
		prev = d
	}
}

func TestWithinRadiusInclusive(t *testing.T) {
	if !WithinRadius(100, 100) {
		t.Fatalf("boundary should be inside")
	}
	if WithinRadius(100.0001, 100) {
		t.Fatalf("just outside should fail")
	}
}

func TestParseCoordinates(t *testing.T) {
	cases := []struct {
		lat, lon string
		ok       bool
	}{
		{"12.5", "77.1", true},
		{"0", "0", true},
		{"", "77.1", false},
		{"12.5", "", false},
		{"abc", "77.1", false},
		{"91", "0", false},
		{"0", "-181", false},
		{"NaN", "0", false},
		{"Inf", "0", false},
	}
	for _, tc := range cases {
		_, ok := ParseCoordinates(tc.lat, tc.lon)
		if ok != tc.ok {
			t.Fatalf("ParseCoordinates(%q, %q) ok=%v, want %v", tc.lat, tc.lon, ok, tc.ok)
		}
	}
}

func TestMatchesAnyPrefix(t *testing.T) {
	prefixes := ParsePrefixes("192.168.86, 10.0.0,")
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %v", prefixes)
	}
	if !MatchesAnyPrefix("192.168.86.45", prefixes) {
		t.Fatalf("expected match for 192.168.86.45")
	}
	if !MatchesAnyPrefix("10.0.0.7", prefixes) {
		t.Fatalf("expected match for 10.0.0.7")
	}
	if MatchesAnyPrefix("10.1.0.5", prefixes) {
		t.Fatalf("did not expect match for 10.1.0.5")
	}
	if MatchesAnyPrefix("", prefixes) {
		t.Fatalf("empty ip must not match")
	}
}

func TestIsLoopback(t *testing.T) {
	for _, ip := range []string{"", "unknown", "127.0.0.1", "::1", "::ffff:127.0.0.1", "127.0.0.2"} {
		if !IsLoopback(ip) {
			t.Fatalf("expected %q to be loopback", ip)
		}
	}
	for _, ip := range []string{"192.168.86.4", "10.0.0.1", "2001:db8::1"} {
		if IsLoopback(ip) {
			t.Fatalf("expected %q not to be loopback", ip)
		}
	}
}

func TestPickHostAddress(t *testing.T) {
	prefixes := []string{"192.168.86"}
	if got := PickHostAddress([]string{"10.0.0.3", "192.168.86.20"}, prefixes); got != "192.168.86.20" {
		t.Fatalf("expected prefix match, got %s", got)
	}
	if got := PickHostAddress([]string{"10.0.0.3"}, prefixes); got != "10.0.0.3" {
		t.Fatalf("expected first candidate, got %s", got)
	}
	if got := PickHostAddress(nil, prefixes); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestIsVirtualAdapter(t *testing.T) {
	if !isVirtualAdapter("docker0") || !isVirtualAdapter("VirtualBox Host-Only") {
		t.Fatalf("expected virtual adapters to be skipped")
	}
	if isVirtualAdapter("wlan0") {
		t.Fatalf("wlan0 is not virtual")
	}
}
