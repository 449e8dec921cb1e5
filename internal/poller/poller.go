// Package poller keeps a periodically refreshed snapshot of the backend's
// status endpoint.
//
// A Poller never lets a failed poll erase the last good snapshot, never
// runs two probes at once, and discards results that land after Stop.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/station-console/station/internal/dispatch"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 3 * time.Second

// Phase is the poller's lifecycle position.
type Phase int

const (
	Idle Phase = iota
	Polling
	Updated
	Failed
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Snapshot is one successful status read. It is replaced, never mutated.
type Snapshot struct {
	Status StatusPayload
	Raw    map[string]any
	At     time.Time
}

// State is a copy of the poller's observable state.
type State struct {
	Phase       Phase
	Snapshot    *Snapshot
	LastError   string
	LastErrorAt time.Time
	LastAttempt time.Time
	Polls       int
	Failures    int
}

// Stale reports whether the newest snapshot predates the last failure.
func (s State) Stale() bool {
	return s.LastError != "" && s.Snapshot != nil
}

// Prober fetches the raw status payload.
type Prober interface {
	Probe(ctx context.Context) (map[string]any, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) (map[string]any, error)

func (f ProberFunc) Probe(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Caller is the slice of dispatch.Session the status prober needs.
type Caller interface {
	Call(ctx context.Context, action string, params dispatch.Params) dispatch.Result
}

// StatusProber probes via the dispatcher's status action.
func StatusProber(c Caller) Prober {
	return ProberFunc(func(ctx context.Context) (map[string]any, error) {
		res := c.Call(ctx, "status", nil)
		if err := res.Err(); err != nil {
			return nil, err
		}
		body := res.BodyMap()
		if body == nil {
			return nil, errors.New("status response is not an object")
		}
		return body, nil
	})
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Poller) { p.log = log.WithField("component", "poller") }
}

// WithOnChange registers a callback run after every state change. It is
// called without the poller's lock held.
func WithOnChange(fn func(State)) Option {
	return func(p *Poller) { p.onChange = fn }
}

// Poller owns the status snapshot.
type Poller struct {
	prober   Prober
	interval time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
	onChange func(State)

	mu         sync.Mutex
	state      State
	inflight   bool
	generation uint64
	running    bool
	refresh    chan struct{}
	stop       chan struct{}
}

func New(prober Prober, opts ...Option) *Poller {
	p := &Poller{
		prober:   prober,
		interval: DefaultInterval,
		now:      time.Now,
		log:      logrus.StandardLogger().WithField("component", "poller"),
		refresh:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Interval() time.Duration { return p.interval }

// State returns a copy of the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Inflight reports whether a probe is running.
func (p *Poller) Inflight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// Poll probes once. It returns false without probing when another probe
// is in flight or the poller is stopped.
func (p *Poller) Poll(ctx context.Context) bool {
	p.mu.Lock()
	if p.inflight || p.state.Phase == Stopped {
		p.mu.Unlock()
		return false
	}
	p.inflight = true
	gen := p.generation
	p.state.Phase = Polling
	p.state.LastAttempt = p.now()
	snapshot := p.state
	p.mu.Unlock()
	p.notify(snapshot)

	raw, err := p.probe(ctx)
	var payload StatusPayload
	if err == nil {
		err = decodeStatus(raw, &payload)
	}

	p.mu.Lock()
	p.inflight = false
	if gen != p.generation {
		p.mu.Unlock()
		p.log.Debug("discarding status result after stop")
		return true
	}
	now := p.now()
	p.state.Polls++
	if err != nil {
		p.state.Phase = Failed
		p.state.LastError = err.Error()
		p.state.LastErrorAt = now
		p.state.Failures++
		p.log.WithError(err).Debug("status poll failed")
	} else {
		at := now
		if prev := p.state.Snapshot; prev != nil && at.Before(prev.At) {
			at = prev.At
		}
		p.state.Snapshot = &Snapshot{Status: payload, Raw: raw, At: at}
		p.state.Phase = Updated
		p.state.LastError = ""
		p.state.LastErrorAt = time.Time{}
	}
	snapshot = p.state
	p.mu.Unlock()
	p.notify(snapshot)
	return true
}

func (p *Poller) probe(ctx context.Context) (raw map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("status probe panic: %v", recovered)
		}
	}()
	return p.prober.Probe(ctx)
}

func decodeStatus(raw map[string]any, out *StatusPayload) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode status payload: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("unexpected status payload: %w", err)
	}
	return nil
}

// Run polls immediately and then on the interval until ctx is done or
// Stop is called. Ticks that land while a probe is in flight are skipped.
func (p *Poller) Run(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.state.Phase == Stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	go p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if p.Inflight() {
				p.log.Debug("status tick skipped, poll in flight")
				continue
			}
			go p.Poll(ctx)
		case <-p.refresh:
			ticker.Reset(p.interval)
			go p.Poll(ctx)
		}
	}
}

// Refresh requests an out-of-cadence poll. With a Run loop active the
// request is handed to the loop, which also restarts its interval;
// otherwise the poll runs inline.
func (p *Poller) Refresh(ctx context.Context) bool {
	p.mu.Lock()
	running := p.running
	stopped := p.state.Phase == Stopped
	p.mu.Unlock()
	if stopped {
		return false
	}
	if !running {
		return p.Poll(ctx)
	}
	select {
	case p.refresh <- struct{}{}:
	default:
	}
	return true
}

// Stop ends polling for good. Probes still in flight are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state.Phase == Stopped {
		p.mu.Unlock()
		return
	}
	p.generation++
	p.inflight = false
	p.state.Phase = Stopped
	close(p.stop)
	snapshot := p.state
	p.mu.Unlock()
	p.notify(snapshot)
}

func (p *Poller) notify(s State) {
	if p.onChange != nil {
		p.onChange(s)
	}
}
