// presence watches whether this machine is at the facility by polling the
// admission endpoint, and logs every state change. SIGHUP retries
// immediately, the same as the retry button in the member app.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rollcall/rollcall/internal/logging"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/proximity"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server        string
	lat, lon      string
	denied        bool
	interval      time.Duration
	locateTimeout time.Duration
	logLevel      string
}

func parseOptions(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("presence", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", "http://localhost:8080", "base URL of the attendance service")
	flagSet.StringVar(&opts.lat, "lat", "", "latitude reported by this device (omit to use the network origin)")
	flagSet.StringVar(&opts.lon, "lon", "", "longitude reported by this device")
	flagSet.BoolVar(&opts.denied, "deny-location", false, "behave as if the user refused the location prompt")
	flagSet.DurationVar(&opts.interval, "interval", presence.DefaultInterval, "re-check interval")
	flagSet.DurationVar(&opts.locateTimeout, "locate-timeout", presence.DefaultLocateTimeout, "how long to wait for a location fix")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if strings.TrimSpace(opts.server) == "" {
		return options{}, errors.New("--server is required")
	}
	if (opts.lat == "") != (opts.lon == "") {
		return options{}, errors.New("--lat and --lon must be given together")
	}
	if opts.denied && opts.lat != "" {
		return options{}, errors.New("--deny-location cannot be combined with --lat/--lon")
	}
	return opts, nil
}

// locator turns the flags into a fixed location source.
func (o options) locator() (presence.Locator, error) {
	switch {
	case o.denied:
		return presence.StaticLocator{Fix: presence.Fix{Kind: presence.FixPermissionDenied}}, nil
	case o.lat == "":
		return presence.StaticLocator{Fix: presence.Fix{Kind: presence.FixUnavailable}}, nil
	}
	coords, ok := proximity.ParseCoordinates(o.lat, o.lon)
	if !ok {
		return nil, fmt.Errorf("invalid coordinates %q,%q", o.lat, o.lon)
	}
	return presence.StaticLocator{Fix: presence.CoordinatesFix(coords.Lat, coords.Lon)}, nil
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	loc, err := opts.locator()
	if err != nil {
		return err
	}
	logger := logging.New(opts.logLevel, "presence")

	monitor := presence.NewMonitor(loc, presence.NewHTTPChecker(opts.server),
		presence.WithInterval(opts.interval),
		presence.WithLocateTimeout(opts.locateTimeout),
		presence.WithLogger(logger),
		presence.OnChange(func(u presence.Update) {
			attrs := []any{slog.String("state", u.State.String()), slog.String("fix", u.Fix.String())}
			if u.Response != nil {
				attrs = append(attrs, slog.String("method", u.Response.Method), slog.String("reason", u.Response.Reason))
				if u.Response.Distance != nil {
					attrs = append(attrs, slog.Float64("distance_m", *u.Response.Distance))
				}
			}
			logger.Info("presence changed", attrs...)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := monitor.Start(ctx)
	defer handle.Stop()

	retry := make(chan os.Signal, 1)
	signal.Notify(retry, syscall.SIGHUP)
	defer signal.Stop(retry)

	logger.Info("watching presence", slog.String("server", opts.server), slog.Duration("interval", opts.interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", slog.String("last_state", monitor.Current().State.String()))
			return nil
		case <-retry:
			handle.Trigger(presence.EventRetry)
		}
	}
}
