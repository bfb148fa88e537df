// Package admission decides, per request, whether a client is physically at
// the facility. Decisions are never stored.
package admission

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/config"
	"github.com/rollcall/rollcall/internal/logging"
	"github.com/rollcall/rollcall/internal/metrics"
	"github.com/rollcall/rollcall/internal/proximity"
)

// Method names the signal a decision was based on.
type Method string

const (
	MethodGeolocation Method = "geolocation"
	MethodIP          Method = "ip"
)

// Status is the outcome category of a decision.
type Status string

const (
	StatusPresent       Status = "present"
	StatusOutOfRange    Status = "out_of_range"
	StatusIndeterminate Status = "indeterminate"
)

// Reasons attached to decisions for diagnostics.
const (
	ReasonWithinRadius     = "within_radius"
	ReasonOutsideRadius    = "outside_radius"
	ReasonPrefixMatch      = "network_prefix_match"
	ReasonPrefixMismatch   = "network_prefix_mismatch"
	ReasonLoopbackOrigin   = "loopback_origin"
	ReasonNoHostInterface  = "no_host_interface"
	ReasonDiscoveryFailure = "host_interface_discovery_failed"
)

// Signal is what the server knows about the client for one evaluation.
type Signal struct {
	// Coordinates is nil when the client sent no usable geolocation.
	Coordinates *proximity.Coordinates
	ClientIP    string
}

// Decision is the ephemeral result of one gate evaluation.
type Decision struct {
	Present        bool
	Status         Status
	Method         Method
	DistanceMeters float64
	RadiusMeters   float64
	IP             string
	RequiredPrefix string
	Reason         string
	EvaluatedAt    time.Time
}

// Gate evaluates admission against the configured facility.
type Gate struct {
	facility config.Facility
	prefixes []string
	discover proximity.InterfaceDiscoverer
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewGate builds a gate. discover is consulted only when the facility enables
// loopback discovery; a nil discover falls back to the host's interfaces.
func NewGate(facility config.Facility, discover proximity.InterfaceDiscoverer, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Gate {
	if discover == nil {
		discover = proximity.HostInterfaces{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Gate{
		facility: facility,
		prefixes: proximity.ParsePrefixes(facility.NetworkPrefix),
		discover: discover,
		clock:    clk,
		metrics:  m,
		logger:   logging.Component(logger, "admission"),
	}
}

// Evaluate produces a decision. Coordinates win over the network origin when
// both they and the facility position are known; the two methods are never
// blended within one evaluation.
func (g *Gate) Evaluate(sig Signal) Decision {
	start := time.Now()
	var d Decision
	if sig.Coordinates != nil && g.facility.CoordinatesSet {
		d = g.byGeolocation(*sig.Coordinates)
	} else {
		d = g.byNetworkOrigin(sig.ClientIP)
	}
	d.EvaluatedAt = g.clock.Now()
	g.metrics.ObserveAdmission(string(d.Method), string(d.Status), time.Since(start).Seconds())
	g.logger.Debug("admission evaluated",
		slog.String("method", string(d.Method)),
		slog.String("status", string(d.Status)),
		slog.String("reason", d.Reason),
		slog.String("ip", d.IP),
	)
	return d
}

func (g *Gate) byGeolocation(c proximity.Coordinates) Decision {
	distance := proximity.DistanceMeters(g.facility.Latitude, g.facility.Longitude, c.Lat, c.Lon)
	d := Decision{
		Method:         MethodGeolocation,
		DistanceMeters: distance,
		RadiusMeters:   g.facility.RadiusMeters,
	}
	if proximity.WithinRadius(distance, g.facility.RadiusMeters) {
		d.Present = true
		d.Status = StatusPresent
		d.Reason = ReasonWithinRadius
	} else {
		d.Status = StatusOutOfRange
		d.Reason = ReasonOutsideRadius
	}
	return d
}

func (g *Gate) byNetworkOrigin(ip string) Decision {
	d := Decision{
		Method:         MethodIP,
		IP:             ip,
		RequiredPrefix: g.facility.NetworkPrefix,
	}
	if proximity.IsLoopback(ip) {
		if !g.facility.LoopbackDiscovery {
			d.Status = StatusIndeterminate
			d.Reason = ReasonLoopbackOrigin
			if d.IP == "" {
				d.IP = "unknown"
			}
			return d
		}
		host, err := g.hostAddress()
		if err != nil {
			g.logger.Warn("host interface discovery failed", slog.Any("error", err))
			d.Status = StatusIndeterminate
			d.Reason = ReasonDiscoveryFailure
			return d
		}
		if host == "" {
			d.Status = StatusIndeterminate
			d.Reason = ReasonNoHostInterface
			return d
		}
		d.IP = host
	}
	if proximity.MatchesAnyPrefix(d.IP, g.prefixes) {
		d.Present = true
		d.Status = StatusPresent
		d.Reason = ReasonPrefixMatch
	} else {
		d.Status = StatusOutOfRange
		d.Reason = ReasonPrefixMismatch
	}
	return d
}

func (g *Gate) hostAddress() (string, error) {
	candidates, err := g.discover.Candidates()
	if err != nil {
		return "", fmt.Errorf("list host interfaces: %w", err)
	}
	return proximity.PickHostAddress(candidates, g.prefixes), nil
}

// RoundedDistance is the distance reported to clients, in whole meters.
func (d Decision) RoundedDistance() float64 {
	return math.Round(d.DistanceMeters)
}
