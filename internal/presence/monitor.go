package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rollcall/rollcall/internal/admission"
	"github.com/rollcall/rollcall/internal/logging"
)

// DefaultInterval is how often the gate is re-checked without any event.
const DefaultInterval = 10 * time.Second

// State is what the UI shell renders. Each failure state needs a different
// remediation, so they are kept apart.
type State int

const (
	StateChecking State = iota
	StatePresent
	StatePermissionDenied
	StateOutOfRange
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StatePresent:
		return "present"
	case StatePermissionDenied:
		return "permission_denied"
	case StateOutOfRange:
		return "out_of_range"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Event is an external trigger for re-evaluation.
type Event int

const (
	EventOnline Event = iota
	EventOffline
	EventVisible
	EventRetry
)

func (e Event) String() string {
	switch e {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventVisible:
		return "visible"
	case EventRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Update is published on every state transition.
type Update struct {
	State State
	// Response is the service answer behind the state, nil when no request was made.
	Response *admission.Response
	Fix      FixKind
	At       time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the periodic re-check interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLocateTimeout bounds each location request.
func WithLocateTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.locateTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logging.Component(logger, "presence")
	}
}

// OnChange registers the transition callback. It runs on the monitor's
// goroutines and must not block or call back into the Monitor.
func OnChange(fn func(Update)) Option {
	return func(m *Monitor) {
		m.onChange = fn
	}
}

// Monitor re-evaluates presence on a schedule and on events. Evaluations may
// overlap; only the most recently started one may publish.
type Monitor struct {
	locator       Locator
	checker       Checker
	interval      time.Duration
	locateTimeout time.Duration
	logger        *slog.Logger
	onChange      func(Update)

	mu      sync.Mutex
	started uint64
	online  bool
	current Update
}

// NewMonitor builds a monitor. It starts in StateChecking and assumes the
// client is online until told otherwise.
func NewMonitor(locator Locator, checker Checker, opts ...Option) *Monitor {
	m := &Monitor{
		locator:       locator,
		checker:       checker,
		interval:      DefaultInterval,
		locateTimeout: DefaultLocateTimeout,
		logger:        logging.Discard(),
		online:        true,
		current:       Update{State: StateChecking},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the last published update.
func (m *Monitor) Current() Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Handle controls a running monitor.
type Handle struct {
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	ctx    context.Context
}

// Trigger queues an event. It returns false when the monitor has stopped.
func (h *Handle) Trigger(e Event) bool {
	select {
	case h.events <- e:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Stop cancels the schedule and waits for in-flight evaluations to finish.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Start runs an initial evaluation and then re-checks until ctx is cancelled
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		events: make(chan Event, 8),
		done:   make(chan struct{}),
		ctx:    ctx,
	}
	go m.run(ctx, h)
	return h
}

func (m *Monitor) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	var wg sync.WaitGroup
	defer wg.Wait()

	// inflight counts running evaluations. Only the run loop reads it, so
	// finished evaluations report back over done instead of sharing state.
	inflight := 0
	done := make(chan struct{})

	spawn := func() {
		seq, online := m.begin()
		if !online {
			m.publish(seq, Update{State: StateOffline})
			return
		}
		inflight++
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := m.evaluate(ctx)
			if ctx.Err() == nil {
				m.publish(seq, u)
			}
			select {
			case done <- struct{}{}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	spawn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			inflight--
		case <-ticker.C:
			// A tick never supersedes a running evaluation; only events do.
			if inflight > 0 {
				m.logger.Debug("presence tick skipped, evaluation in flight")
				continue
			}
			spawn()
		case e := <-h.events:
			m.logger.Debug("presence event", slog.String("event", e.String()))
			switch e {
			case EventOffline:
				m.setOnline(false)
				seq, _ := m.begin()
				m.publish(seq, Update{State: StateOffline})
			case EventOnline:
				m.setOnline(true)
				spawn()
			case EventRetry:
				seq, _ := m.begin()
				m.publish(seq, Update{State: StateChecking})
				spawn()
			default:
				spawn()
			}
		}
	}
}

// begin reserves the next start sequence. Any evaluation started earlier is
// superseded from this point on.
func (m *Monitor) begin() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return m.started, m.online
}

func (m *Monitor) setOnline(v bool) {
	m.mu.Lock()
	m.online = v
	m.mu.Unlock()
}

// publish records u if seq is still the newest start and reports a change to
// the callback only when the state differs from the current one.
func (m *Monitor) publish(seq uint64, u Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.started {
		m.logger.Debug("stale presence result dropped", slog.Uint64("seq", seq), slog.Uint64("latest", m.started))
		return
	}
	changed := u.State != m.current.State
	m.current = u
	if changed && m.onChange != nil {
		m.onChange(u)
	}
}

func (m *Monitor) evaluate(ctx context.Context) Update {
	locateCtx, cancel := context.WithTimeout(ctx, m.locateTimeout)
	fix := m.locator.Locate(locateCtx)
	cancel()

	u := Update{Fix: fix.Kind}
	if fix.Kind == FixPermissionDenied {
		// Never fall back to network origin when the user refused location.
		u.State = StatePermissionDenied
		return u
	}

	var resp admission.Response
	var err error
	if fix.Kind == FixCoordinates {
		coords := fix.Coordinates
		resp, err = m.checker.Check(ctx, &coords)
	} else {
		resp, err = m.checker.Check(ctx, nil)
	}
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("admission check failed", slog.Any("error", err))
		}
		u.State = StateOffline
		return u
	}

	u.Response = &resp
	switch {
	case resp.Connected:
		u.State = StatePresent
	case resp.Status == string(admission.StatusIndeterminate):
		u.State = StateOffline
	default:
		u.State = StateOutOfRange
	}
	return u
}
