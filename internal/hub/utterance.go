package hub

import (
	"errors"
	"fmt"
)

// Lifecycle hooks observe a text-driven session. Every hook is optional and
// runs at most once, never while the hub lock is held.
type Lifecycle struct {
	// OnStarted runs after the initial silence has been published.
	OnStarted func()

	// OnEnded runs when the session ends without error: the timeline
	// elapsed, [UtteranceHandle.Ended] was called, or the session was
	// stopped or replaced.
	OnEnded func()

	// OnError runs instead of OnEnded when the session fails.
	OnError func(error)
}

// errUtterance is wrapped around errors reported by the synthesiser.
var errUtterance = errors.New("utterance errored")

// UtteranceHandle lets the speech synthesiser report the fate of the
// utterance it is playing.
type UtteranceHandle struct {
	h *Hub
	s *session
}

// ID returns the session ID.
func (u *UtteranceHandle) ID() string { return u.s.id }

// Ended signals that playback finished. The session stops immediately even if
// the timeline has not elapsed. Calling Ended on a finished session is a
// no-op.
func (u *UtteranceHandle) Ended() {
	u.h.end(u.s, nil, "utterance ended")
}

// Errored signals that synthesis or playback failed. The session stops, the
// error is sent to [Hub.Errors] and OnError runs.
func (u *UtteranceHandle) Errored(err error) {
	if err == nil {
		err = errUtterance
	} else {
		err = fmt.Errorf("%w: %w", errUtterance, err)
	}
	if u.h.end(u.s, err, kindUtterance) {
		u.h.metrics.RecordTickError(u.s.ctx, kindUtterance)
	}
}

// Done is closed once the session has ended for any reason.
func (u *UtteranceHandle) Done() <-chan struct{} { return u.s.done }
