// Package hub implements the engine instance that drives lip sync: it owns
// the subscriber registry, the single attached source and the animation
// clock task that samples it.
//
// A [Hub] is either Idle or Running. Attaching an audio source or an
// utterance starts a session (performing an implicit stop of any previous
// one) and publishes silence as the initial state; every tick then samples
// the source, classifies, feeds the transition scheduler and notifies all
// subscribers. Stop, Reset and natural completion return the hub to Idle and
// publish silence.
//
// Each session carries a generation number. Stopping bumps the generation
// before the pending tick is cancelled, so a tick that raced the stop can
// never publish: its state is dropped at the delivery boundary.
//
// Notifications are delivered sequentially in publication order. Subscriber
// callbacks may call any Hub method, including Subscribe, Unsubscribe, Stop
// and the attach operations.
package hub

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/visemesync/internal/classify"
	"github.com/MrWong99/visemesync/internal/clock"
	"github.com/MrWong99/visemesync/internal/feature"
	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/internal/timeline"
	"github.com/MrWong99/visemesync/internal/transition"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// ErrUnsupportedEnvironment is returned when an audio source cannot provide
// the data the audio path needs.
var ErrUnsupportedEnvironment = errors.New("hub: unsupported environment")

const (
	// DefaultTickInterval is the animation frame period.
	DefaultTickInterval = 20 * time.Millisecond

	// DefaultErrorBuffer is the capacity of the [Hub.Errors] channel.
	DefaultErrorBuffer = 16
)

// Config holds the engine tunables. Zero values select the defaults of each
// component.
type Config struct {
	// TickInterval is the period of the animation clock.
	TickInterval time.Duration

	// TransitionDuration is the cross-fade length between visemes.
	TransitionDuration time.Duration

	// FallbackText is spoken in text mode when an audio source is
	// unsupported. Empty disables the fallback.
	FallbackText string

	Feature    feature.Config
	Thresholds classify.Thresholds
	Timeline   timeline.Options
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		TickInterval:       DefaultTickInterval,
		TransitionDuration: transition.DefaultDuration,
		Feature:            feature.DefaultConfig(),
		Thresholds:         classify.DefaultThresholds(),
		Timeline:           timeline.DefaultOptions(),
	}
}

func (c Config) normalised() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = transition.DefaultDuration
	}
	if c.Thresholds == (classify.Thresholds{}) {
		c.Thresholds = classify.DefaultThresholds()
	}
	return c
}

// State is the hub lifecycle state.
type State int

const (
	// Idle means no source is attached.
	Idle State = iota

	// Running means a session is ticking.
	Running
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a consistent snapshot of the hub.
type Status struct {
	State     State              `json:"state"`
	Mode      viseme.Mode        `json:"mode"`
	SessionID string             `json:"session_id,omitempty"`
	Render    viseme.RenderState `json:"render"`
}

// Option is a functional option for [New].
type Option func(*Hub)

// WithClock replaces the wall clock, typically with a [clock.Manual] in tests.
func WithClock(c clock.Source) Option {
	return func(h *Hub) { h.clock = c }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithErrorBuffer sets the capacity of the [Hub.Errors] channel.
func WithErrorBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.errBuf = n
		}
	}
}

// delivery is a queued publication tagged with the generation it belongs to.
type delivery struct {
	gen   uint64
	state viseme.RenderState
}

// Hub is a caller-owned lip-sync engine. All methods are safe for concurrent
// use.
type Hub struct {
	clock   clock.Source
	metrics *observe.Metrics
	errBuf  int
	errs    chan error

	mu       sync.Mutex
	cfg      Config
	gen      uint64
	session  *session
	subs     *list.List
	current  viseme.RenderState
	outbox   []delivery
	flushing bool
}

// New creates an idle Hub.
func New(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		clock:   clock.Real{},
		errBuf:  DefaultErrorBuffer,
		cfg:     cfg.normalised(),
		subs:    list.New(),
		current: viseme.SilentState(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	h.errs = make(chan error, h.errBuf)
	return h
}

// Config returns the configuration new sessions will use.
func (h *Hub) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// SetConfig replaces the configuration. The running session keeps the
// configuration it was attached with; the next session uses cfg.
func (h *Hub) SetConfig(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg.normalised()
}

// State returns Idle or Running.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return Idle
	}
	return Running
}

// Mode returns the driving mode of the running session, or [viseme.ModeNone].
func (h *Hub) Mode() viseme.Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return viseme.ModeNone
	}
	return h.session.mode
}

// Current returns the last published render state.
func (h *Hub) Current() viseme.RenderState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Status returns a consistent snapshot of state, mode, session and the last
// published render state.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{State: Idle, Mode: viseme.ModeNone, Render: h.current}
	if s := h.session; s != nil {
		st.State = Running
		st.Mode = s.mode
		st.SessionID = s.id
	}
	return st
}

// Errors returns the side channel on which session failures are reported.
// Sends never block; errors are dropped when the buffer is full.
func (h *Hub) Errors() <-chan error { return h.errs }

func (h *Hub) report(ctx context.Context, err error) {
	select {
	case h.errs <- err:
	default:
		observe.Logger(ctx).Debug("hub: error channel full, dropping error", "err", err)
	}
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Subscription is the handle returned by [Hub.Subscribe].
type Subscription struct {
	h    *Hub
	fn   func(viseme.RenderState)
	elem *list.Element // nil once unsubscribed; guarded by h.mu
}

// Unsubscribe removes the subscription in O(1). It is idempotent and safe to
// call from inside a notification callback; a removed subscriber receives no
// further states, including the remainder of an in-progress notification.
func (s *Subscription) Unsubscribe() {
	h := s.h
	h.mu.Lock()
	if s.elem == nil {
		h.mu.Unlock()
		return
	}
	h.subs.Remove(s.elem)
	s.elem = nil
	h.mu.Unlock()
	h.metrics.Subscribers.Add(context.Background(), -1)
}

// Subscribe registers fn to receive every published render state. States
// published before the call are not replayed; use [Hub.Current] to sync.
func (h *Hub) Subscribe(fn func(viseme.RenderState)) *Subscription {
	s := &Subscription{h: h, fn: fn}
	h.mu.Lock()
	s.elem = h.subs.PushBack(s)
	h.mu.Unlock()
	h.metrics.Subscribers.Add(context.Background(), 1)
	return s
}

// SubscribeViseme registers a legacy listener that only receives the current
// viseme, collapsed to the base vocabulary, whenever it changes.
func (h *Hub) SubscribeViseme(fn func(viseme.Viseme)) *Subscription {
	var (
		last   viseme.Viseme
		primed bool
	)
	return h.Subscribe(func(st viseme.RenderState) {
		v := viseme.Collapse(st.Current)
		if primed && v == last {
			return
		}
		primed, last = true, v
		fn(v)
	})
}

// Subscribers returns the number of registered subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs.Len()
}

// ─── Delivery ─────────────────────────────────────────────────────────────────

// publishLocked queues st for delivery under generation gen. Callers must
// hold h.mu and call flush after releasing it.
func (h *Hub) publishLocked(gen uint64, st viseme.RenderState) {
	h.outbox = append(h.outbox, delivery{gen: gen, state: st})
}

// flush delivers queued states in order. Only one goroutine flushes at a
// time; a publication made while another goroutine is flushing, including one
// made from inside a callback, is delivered by that goroutine after the
// current callback returns. Deliveries from a superseded generation are
// dropped, also between two callbacks of the same delivery.
func (h *Hub) flush() {
	h.mu.Lock()
	if h.flushing {
		h.mu.Unlock()
		return
	}
	h.flushing = true

	for len(h.outbox) > 0 {
		d := h.outbox[0]
		h.outbox[0] = delivery{}
		h.outbox = h.outbox[1:]
		if d.gen != h.gen {
			continue
		}
		h.current = d.state

		snapshot := make([]*Subscription, 0, h.subs.Len())
		for e := h.subs.Front(); e != nil; e = e.Next() {
			snapshot = append(snapshot, e.Value.(*Subscription))
		}
		h.mu.Unlock()

		for _, s := range snapshot {
			h.mu.Lock()
			live := s.elem != nil && d.gen == h.gen
			h.mu.Unlock()
			if !live {
				continue
			}
			h.notify(s, d.state)
		}

		h.mu.Lock()
	}
	h.outbox = nil
	h.flushing = false
	h.mu.Unlock()
}

// notify invokes one callback, containing panics so a faulty renderer cannot
// stop delivery to the others.
func (h *Hub) notify(s *Subscription, st viseme.RenderState) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("hub: subscriber panicked", "panic", r)
		}
	}()
	s.fn(st)
}
