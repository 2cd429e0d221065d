// Package bridge exposes a [hub.Hub] over HTTP.
//
// Endpoints:
//
//   - GET  /ws/render          websocket; the server streams render states as JSON
//   - GET  /ws/audio           websocket; the client streams int16 LE PCM frames
//   - POST /utterance          {"text": "..."} starts a text-driven session
//   - POST /utterance/end      {"error": "..."} ends the current utterance early
//   - POST /stop, POST /reset  stop the engine
//   - GET  /state              hub status snapshot
//   - GET  /timeline?text=...  previews the timeline for a text without attaching
//
// Render clients that fall behind lose intermediate states: each connection
// buffers only the latest state.
package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/visemesync/internal/hub"
	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/pkg/audio"
	"golang.org/x/time/rate"
)

const (
	// writeTimeout bounds a single websocket write.
	writeTimeout = 5 * time.Second

	// maxFrameBytes is the read limit for one PCM message.
	maxFrameBytes = 1 << 20

	// ingestQueue is the number of PCM frames buffered between the
	// websocket reader and the stream analyser.
	ingestQueue = 64

	// maxTextBytes bounds the body of POST /utterance.
	maxTextBytes = 64 << 10
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAnalyserConfig supplies the stream analyser settings for an ingest
// connection at the given sample rate.
func WithAnalyserConfig(fn func(sampleRate int) audio.AnalyserConfig) Option {
	return func(s *Server) { s.analyserConfig = fn }
}

// WithOriginPatterns sets the host patterns websocket clients may connect
// from. By default only same-origin requests are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// Server serves the bridge endpoints for one hub.
type Server struct {
	hub            *hub.Hub
	metrics        *observe.Metrics
	analyserConfig func(sampleRate int) audio.AnalyserConfig
	origins        []string

	// warn throttles per-frame warnings from ingest connections.
	warn rate.Sometimes

	mu        sync.Mutex
	utterance *playing
}

// New creates a Server for h.
func New(h *hub.Hub, opts ...Option) *Server {
	s := &Server{
		hub:  h,
		warn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		analyserConfig: func(sampleRate int) audio.AnalyserConfig {
			return audio.AnalyserConfig{SampleRate: sampleRate}
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds the bridge routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/render", s.handleRender)
	mux.HandleFunc("GET /ws/audio", s.handleAudio)
	mux.HandleFunc("POST /utterance", s.handleUtterance)
	mux.HandleFunc("POST /utterance/end", s.handleUtteranceEnd)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /timeline", s.handleTimeline)
}

// apiError is the JSON body of every error response.
type apiError struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
