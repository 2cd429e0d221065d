package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/visemesync/internal/hub"
	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/internal/timeline"
)

// UtteranceRequest is the body of POST /utterance.
type UtteranceRequest struct {
	Text string `json:"text"`

	// Variant overrides the configured timeline variant: "simple" or
	// "three_phase". Empty keeps the configuration.
	Variant string `json:"variant,omitempty"`
}

// UtteranceResponse describes the started session.
type UtteranceResponse struct {
	SessionID  string `json:"session_id"`
	Entries    int    `json:"entries"`
	DurationMS int64  `json:"duration_ms"`
}

// EndRequest is the optional body of POST /utterance/end. A non-empty Error
// reports the utterance as failed.
type EndRequest struct {
	Error string `json:"error,omitempty"`
}

// TimelineEntry is one entry of a GET /timeline response.
type TimelineEntry struct {
	Pose       string `json:"pose"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
}

// TimelineResponse is the body of GET /timeline.
type TimelineResponse struct {
	Entries []TimelineEntry `json:"entries"`
	TotalMS int64           `json:"total_ms"`
}

func (s *Server) timelineOptions(variant string) (timeline.Options, error) {
	opts := s.hub.Config().Timeline
	switch variant {
	case "":
	case timeline.Simple.String():
		opts.Variant = timeline.Simple
	case timeline.ThreePhase.String():
		opts.Variant = timeline.ThreePhase
	default:
		return opts, fmt.Errorf("variant %q is invalid; valid values: simple, three_phase", variant)
	}
	return opts, nil
}

// handleUtterance starts a text-driven session. The session outlives the
// request; it ends when the timeline elapses, on POST /utterance/end or when
// another source is attached.
// POST /utterance
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req UtteranceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	opts, err := s.timelineOptions(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tl := timeline.Build(req.Text, timeline.WithOptions(opts))
	ctx := context.WithoutCancel(r.Context())
	log := observe.Logger(ctx)

	p := &playing{}
	ended := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		p.ended = true
		if s.utterance == p {
			s.utterance = nil
		}
	}
	handle, err := s.hub.AttachTimeline(ctx, tl, hub.Lifecycle{
		OnEnded: ended,
		OnError: func(err error) {
			log.Warn("bridge: utterance failed", "err", err)
			ended()
		},
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Hooks may already have run; an ended utterance is never recorded.
	s.mu.Lock()
	p.handle = handle
	if !p.ended {
		s.utterance = p
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, UtteranceResponse{
		SessionID:  handle.ID(),
		Entries:    tl.Len(),
		DurationMS: tl.Total().Milliseconds(),
	})
}

// playing tracks the utterance POST /utterance/end applies to.
type playing struct {
	handle *hub.UtteranceHandle
	ended  bool
}

// handleUtteranceEnd signals the end, or failure, of the current utterance.
// POST /utterance/end
func (s *Server) handleUtteranceEnd(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	s.mu.Lock()
	p := s.utterance
	s.utterance = nil
	s.mu.Unlock()

	if p == nil {
		writeError(w, http.StatusConflict, "no utterance is playing")
		return
	}
	if req.Error != "" {
		p.handle.Errored(errors.New(req.Error))
	} else {
		p.handle.Ended()
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /stop
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.hub.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// POST /reset
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.hub.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// GET /state
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.hub.Status()
	writeJSON(w, http.StatusOK, struct {
		hub.Status
		Render RenderMessage `json:"render"`
	}{Status: st, Render: newRenderMessage(st.Render)})
}

// handleTimeline previews the timeline for a text without attaching it.
// GET /timeline?text=hello&variant=three_phase
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.timelineOptions(q.Get("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tl := timeline.Build(q.Get("text"), timeline.WithOptions(opts))

	res := TimelineResponse{
		Entries: make([]TimelineEntry, 0, tl.Len()),
		TotalMS: tl.Total().Milliseconds(),
	}
	for _, e := range tl.Entries() {
		res.Entries = append(res.Entries, TimelineEntry{
			Pose:       e.Pose.Key(),
			StartMS:    e.Start.Milliseconds(),
			DurationMS: e.Duration.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, res)
}
