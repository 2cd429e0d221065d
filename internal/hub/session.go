package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/visemesync/internal/classify"
	"github.com/MrWong99/visemesync/internal/clock"
	"github.com/MrWong99/visemesync/internal/feature"
	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/internal/timeline"
	"github.com/MrWong99/visemesync/internal/transition"
	"github.com/MrWong99/visemesync/pkg/audio"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// Tick error kinds reported through metrics.
const (
	kindStaleSource = "stale_source"
	kindSource      = "source_error"
	kindMalformed   = "malformed_timeline"
	kindPanic       = "panic"
	kindUtterance   = "utterance_error"
)

// session is one attached source. Fields below the task are owned by the
// tick goroutine.
type session struct {
	id    string
	gen   uint64
	mode  viseme.Mode
	ctx   context.Context
	cfg   Config
	start time.Time
	life  Lifecycle

	task      clock.Handle
	stopWatch func() bool

	done       chan struct{}
	finishOnce sync.Once

	sched *transition.Scheduler
	src   audio.Source
	snap  audio.Analysis
	tl    *timeline.Timeline
}

func (h *Hub) newSession(ctx context.Context, mode viseme.Mode, life Lifecycle) *session {
	h.mu.Lock()
	cfg := h.cfg
	h.mu.Unlock()

	id := uuid.NewString()
	return &session{
		id:    id,
		mode:  mode,
		ctx:   observe.WithSession(ctx, id),
		cfg:   cfg,
		life:  life,
		done:  make(chan struct{}),
		sched: transition.New(cfg.TransitionDuration),
	}
}

// finish runs the lifecycle hooks exactly once. It must be called without
// h.mu held.
func (s *session) finish(err error) {
	s.finishOnce.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}
		close(s.done)
		if err != nil {
			if s.life.OnError != nil {
				s.life.OnError(err)
			}
			return
		}
		if s.life.OnEnded != nil {
			s.life.OnEnded()
		}
	})
}

// silenceFor is the initial state of a session in mode m.
func silenceFor(m viseme.Mode) viseme.RenderState {
	st := viseme.SilentState()
	st.Mode = m
	return st
}

// ─── Attach ───────────────────────────────────────────────────────────────────

// AttachAudio starts an audio-driven session on src. ctx bounds the session:
// when it is cancelled the session stops as if [Hub.Stop] had been called.
//
// A nil source or one reporting a non-positive sample rate yields an error
// wrapping [ErrUnsupportedEnvironment], which is also sent to [Hub.Errors].
// If the configuration has fallback text the hub then speaks it in text
// mode; otherwise it stays Idle and publishes silence.
func (h *Hub) AttachAudio(ctx context.Context, src audio.Source) error {
	ctx, span := observe.StartSpan(ctx, "hub.AttachAudio")
	defer span.End()

	if src == nil || src.SampleRate() <= 0 {
		rate := 0
		if src != nil {
			rate = src.SampleRate()
		}
		err := fmt.Errorf("attach audio: sample rate %d: %w", rate, ErrUnsupportedEnvironment)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported environment")
		h.metrics.RecordAttach(ctx, viseme.ModeAudio.String(), "unsupported")
		h.report(ctx, err)

		fallback := h.Config().FallbackText
		if fallback == "" {
			observe.Logger(ctx).Warn("hub: audio source unsupported, staying idle", "err", err)
			h.halt(true)
			return err
		}
		observe.Logger(ctx).Warn("hub: audio source unsupported, falling back to text", "err", err)
		if _, ferr := h.AttachUtterance(ctx, fallback, Lifecycle{}); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}

	sess := h.newSession(ctx, viseme.ModeAudio, Lifecycle{})
	sess.src = src
	span.SetAttributes(
		attribute.String("session.id", sess.id),
		attribute.Int("audio.sample_rate", src.SampleRate()),
	)
	h.begin(sess)
	h.metrics.RecordAttach(ctx, viseme.ModeAudio.String(), "ok")
	return nil
}

// AttachUtterance starts a text-driven session speaking text with the
// configured timeline variant. The returned handle lets the synthesiser
// report the end of the utterance early or an error.
func (h *Hub) AttachUtterance(ctx context.Context, text string, life Lifecycle) (*UtteranceHandle, error) {
	tl := timeline.Build(text, timeline.WithOptions(h.Config().Timeline))
	return h.AttachTimeline(ctx, tl, life)
}

// AttachTimeline starts a text-driven session on a prebuilt timeline. A
// timeline that fails validation is reported as wrapping
// [timeline.ErrMalformed]; the hub stays Idle and publishes silence.
func (h *Hub) AttachTimeline(ctx context.Context, tl *timeline.Timeline, life Lifecycle) (*UtteranceHandle, error) {
	ctx, span := observe.StartSpan(ctx, "hub.AttachUtterance")
	defer span.End()

	var err error
	if tl == nil {
		err = fmt.Errorf("attach utterance: nil timeline: %w", timeline.ErrMalformed)
	} else {
		err = tl.Validate()
	}
	if err != nil {
		err = fmt.Errorf("attach utterance: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed timeline")
		h.metrics.RecordAttach(ctx, viseme.ModeText.String(), "malformed")
		h.metrics.RecordTickError(ctx, kindMalformed)
		observe.Logger(ctx).Error("hub: rejecting malformed timeline", "err", err)
		h.report(ctx, err)
		h.halt(true)
		if life.OnError != nil {
			life.OnError(err)
		}
		return nil, err
	}

	sess := h.newSession(ctx, viseme.ModeText, life)
	sess.tl = tl
	span.SetAttributes(
		attribute.String("session.id", sess.id),
		attribute.Int("timeline.entries", tl.Len()),
		attribute.Int64("timeline.total_ms", tl.Total().Milliseconds()),
	)
	h.begin(sess)
	h.metrics.RecordAttach(ctx, viseme.ModeText.String(), "ok")
	return &UtteranceHandle{h: h, s: sess}, nil
}

// begin installs sess as the running session, stopping the previous one
// without a separate silence publication: the initial silence of sess
// follows immediately.
func (h *Hub) begin(sess *session) {
	h.mu.Lock()
	old := h.detachLocked()
	h.gen++
	sess.gen = h.gen
	sess.start = h.clock.Now()
	h.session = sess
	h.publishLocked(sess.gen, silenceFor(sess.mode))
	sess.task = h.clock.Every(sess.cfg.TickInterval, func() { h.tick(sess) })
	sess.stopWatch = context.AfterFunc(sess.ctx, func() {
		h.end(sess, nil, "context done")
	})
	h.metrics.ActiveSessions.Add(sess.ctx, 1)
	h.mu.Unlock()

	h.flush()
	if old != nil {
		old.finish(nil)
	}
	observe.Logger(sess.ctx).Info("hub: session started",
		"mode", sess.mode.String(),
		"tick", sess.cfg.TickInterval,
	)
	if sess.life.OnStarted != nil {
		sess.life.OnStarted()
	}
}

// ─── Stop ─────────────────────────────────────────────────────────────────────

// detachLocked removes the running session, invalidates its generation and
// cancels its pending tick. It returns the removed session, or nil.
func (h *Hub) detachLocked() *session {
	s := h.session
	if s == nil {
		return nil
	}
	h.session = nil
	h.gen++
	s.task.Cancel()
	h.metrics.ActiveSessions.Add(context.Background(), -1)
	return s
}

// halt detaches any session and, if force is set or a session was running,
// publishes silence.
func (h *Hub) halt(force bool) *session {
	h.mu.Lock()
	s := h.detachLocked()
	if s != nil || force {
		h.gen++
		h.publishLocked(h.gen, viseme.SilentState())
	}
	h.mu.Unlock()
	h.flush()
	if s != nil {
		s.finish(nil)
		observe.Logger(s.ctx).Info("hub: session stopped")
	}
	return s
}

// Stop ends the running session and publishes silence. The pending tick is
// invalidated before Stop returns. Stop on an idle hub does nothing.
func (h *Hub) Stop() {
	h.halt(false)
}

// Reset forces the hub Idle from any state, discards the attached source and
// all transition state and publishes silence. Calling it repeatedly leaves
// the hub in the same state.
func (h *Hub) Reset() {
	h.halt(true)
}

// Close stops the running session and waits for its clock task to exit. It
// must not be called from a subscriber callback.
func (h *Hub) Close() error {
	h.mu.Lock()
	var task clock.Handle
	if h.session != nil {
		task = h.session.task
	}
	h.mu.Unlock()

	h.Stop()
	if task != nil {
		<-task.Done()
	}
	return nil
}

// end stops sess if it is still running. A nil err is a natural end; a
// non-nil err is reported on the error channel and to the lifecycle hooks.
func (h *Hub) end(sess *session, err error, reason string) bool {
	h.mu.Lock()
	if h.session != sess {
		h.mu.Unlock()
		return false
	}
	h.detachLocked()
	h.publishLocked(h.gen, viseme.SilentState())
	h.mu.Unlock()
	h.flush()

	log := observe.Logger(sess.ctx)
	if err != nil {
		err = fmt.Errorf("session %s: %w", sess.id, err)
		log.Error("hub: session failed", "reason", reason, "err", err)
		h.report(sess.ctx, err)
	} else {
		log.Info("hub: session ended", "reason", reason)
	}
	sess.finish(err)
	return true
}

// ─── Tick ─────────────────────────────────────────────────────────────────────

// tick runs one animation frame of sess. It computes outside the hub lock;
// only the tick goroutine touches the scheduler and analysis buffers.
func (h *Hub) tick(sess *session) {
	h.mu.Lock()
	live := h.session == sess
	h.mu.Unlock()
	if !live {
		return
	}

	began := time.Now()
	st, changed, done, kind, err := h.safeStep(sess)
	switch {
	case err != nil && kind == kindStaleSource:
		if h.end(sess, nil, "source closed") {
			h.metrics.RecordTickError(sess.ctx, kind)
		}
		return
	case err != nil:
		if h.end(sess, err, kind) {
			h.metrics.RecordTickError(sess.ctx, kind)
		}
		return
	case done:
		h.end(sess, nil, "utterance complete")
		return
	}

	h.mu.Lock()
	if h.session != sess {
		h.mu.Unlock()
		return
	}
	h.publishLocked(sess.gen, st)
	h.mu.Unlock()
	h.flush()

	if changed {
		h.metrics.RecordVisemeChange(sess.ctx, st.Current.String())
	}
	h.metrics.RecordTick(sess.ctx, sess.mode.String(), time.Since(began))
}

// safeStep converts a panicking step into an error.
func (h *Hub) safeStep(sess *session) (st viseme.RenderState, changed, done bool, kind string, err error) {
	defer func() {
		if r := recover(); r != nil {
			kind = kindPanic
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	elapsed := h.clock.Now().Sub(sess.start)
	switch sess.mode {
	case viseme.ModeAudio:
		st, changed, kind, err = sess.stepAudio(elapsed)
	case viseme.ModeText:
		st, changed, done, kind, err = sess.stepText(elapsed)
	default:
		kind, err = kindPanic, fmt.Errorf("session in mode %s", sess.mode)
	}
	return st, changed, done, kind, err
}

func (s *session) stepAudio(elapsed time.Duration) (viseme.RenderState, bool, string, error) {
	select {
	case <-s.src.Done():
		return viseme.RenderState{}, false, kindStaleSource, audio.ErrSourceClosed
	default:
	}
	if err := s.src.Analyse(&s.snap); err != nil {
		if errors.Is(err, audio.ErrSourceClosed) {
			return viseme.RenderState{}, false, kindStaleSource, err
		}
		return viseme.RenderState{}, false, kindSource, fmt.Errorf("analyse: %w", err)
	}

	sample := feature.Extract(feature.Frame{
		TimeDomain: s.snap.TimeDomain,
		Magnitudes: s.snap.Magnitudes,
		SampleRate: s.snap.SampleRate,
	}, s.cfg.Feature)
	v := classify.Audio(sample, s.cfg.Thresholds)
	changed := s.sched.OnClassification(v, elapsed)
	smp := s.sched.Sample(elapsed)
	return viseme.RenderState{
		Current:  smp.Current,
		Previous: smp.Previous,
		Phase:    viseme.Hold,
		Progress: smp.Progress,
		At:       elapsed,
		Mode:     viseme.ModeAudio,
	}, changed, "", nil
}

func (s *session) stepText(elapsed time.Duration) (viseme.RenderState, bool, bool, string, error) {
	if s.tl.Len() == 0 {
		return viseme.RenderState{}, false, false, kindMalformed, timeline.ErrMalformed
	}
	if elapsed >= s.tl.Total() {
		return viseme.RenderState{}, false, true, "", nil
	}
	pose := s.tl.At(elapsed)
	changed := s.sched.OnClassification(pose.Viseme, elapsed)
	smp := s.sched.Sample(elapsed)
	return viseme.RenderState{
		Current:  smp.Current,
		Previous: smp.Previous,
		Phase:    pose.Phase,
		Progress: smp.Progress,
		At:       elapsed,
		Mode:     viseme.ModeText,
	}, changed, false, "", nil
}
