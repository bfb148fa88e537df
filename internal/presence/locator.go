// Package presence keeps a client's view of the admission gate current. It
// acquires a location fix, asks the service for a decision and publishes
// state transitions to the UI shell.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rollcall/rollcall/internal/proximity"
)

// DefaultLocateTimeout bounds a single location request.
const DefaultLocateTimeout = 10 * time.Second

// FixKind tags the outcome of a location request.
type FixKind int

const (
	FixCoordinates FixKind = iota
	FixPermissionDenied
	FixUnavailable
)

func (k FixKind) String() string {
	switch k {
	case FixCoordinates:
		return "coordinates"
	case FixPermissionDenied:
		return "permission_denied"
	default:
		return "unavailable"
	}
}

// Fix is the single terminal outcome of one location request. Coordinates is
// meaningful only when Kind is FixCoordinates.
type Fix struct {
	Kind        FixKind
	Coordinates proximity.Coordinates
	Err         error
}

// Locator obtains the client's position.
type Locator interface {
	Locate(ctx context.Context) Fix
}

// Provider is a callback-style position source. It must eventually call
// exactly one of the callbacks, but may call them late, twice, or never.
type Provider func(onFix func(proximity.Coordinates), onError func(denied bool, err error))

// CallbackLocator adapts a Provider into a Locator that always settles once.
type CallbackLocator struct {
	Provider Provider
	Timeout  time.Duration
}

// Locate runs the provider and waits for its first callback or the timeout,
// whichever comes first. Later callbacks are ignored.
func (l CallbackLocator) Locate(ctx context.Context) Fix {
	if l.Provider == nil {
		return Fix{Kind: FixUnavailable}
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(chan Fix, 1)
	var once sync.Once
	settle := func(f Fix) {
		once.Do(func() { out <- f })
	}

	go l.Provider(
		func(c proximity.Coordinates) {
			if !c.Valid() {
				settle(Fix{Kind: FixUnavailable})
				return
			}
			settle(Fix{Kind: FixCoordinates, Coordinates: c})
		},
		func(denied bool, err error) {
			if denied {
				settle(Fix{Kind: FixPermissionDenied, Err: err})
				return
			}
			settle(Fix{Kind: FixUnavailable, Err: err})
		},
	)

	select {
	case f := <-out:
		return f
	case <-ctx.Done():
		settle(Fix{Kind: FixUnavailable, Err: ctx.Err()})
		return <-out
	}
}

// StaticLocator always returns the same fix.
type StaticLocator struct {
	Fix Fix
}

func (l StaticLocator) Locate(context.Context) Fix {
	return l.Fix
}

// CoordinatesFix is a convenience for a successful fix.
func CoordinatesFix(lat, lon float64) Fix {
	return Fix{Kind: FixCoordinates, Coordinates: proximity.Coordinates{Lat: lat, Lon: lon}}
}
