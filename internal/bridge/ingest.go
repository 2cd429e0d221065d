package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/pkg/audio"
	"github.com/coder/websocket"
)

const (
	defaultIngestRate     = 48000
	defaultIngestChannels = 1
)

// ingestFormat parses the rate and channels query parameters.
func ingestFormat(r *http.Request) (audio.Format, error) {
	f := audio.Format{SampleRate: defaultIngestRate, Channels: defaultIngestChannels}
	q := r.URL.Query()
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("rate %q is not an integer", v)
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("channels %q is not an integer", v)
		}
		f.Channels = n
	}
	return f, f.Validate()
}

// handleAudio attaches the connection's PCM stream as the hub's audio source
// for as long as the connection stays open. Each binary message is one frame
// of interleaved int16 little-endian samples.
// GET /ws/audio?rate=48000&channels=2
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	format, err := ingestFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("bridge: audio accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx).With("format", format.String())

	frames := make(chan audio.AudioFrame, ingestQueue)
	analyser := audio.NewStreamAnalyser(frames, s.analyserConfig(format.SampleRate))
	defer analyser.Close()

	if err := s.hub.AttachAudio(ctx, analyser); err != nil {
		log.Error("bridge: attach audio failed", "err", err)
		conn.Close(websocket.StatusInternalError, "attach failed")
		return
	}
	log.Info("bridge: audio ingest connected", "remote", r.RemoteAddr)

	start := time.Now()
	err = s.readFrames(ctx, conn, format, start, frames)
	close(frames)

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("bridge: audio ingest closed", "duration", time.Since(start))
	case errors.Is(err, context.Canceled):
		log.Info("bridge: audio ingest cancelled", "duration", time.Since(start))
	default:
		log.Warn("bridge: audio ingest ended", "err", err, "duration", time.Since(start))
	}
}

// readFrames forwards binary messages to frames until the connection fails.
// Frames that do not fit the queue are dropped.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, format audio.Format, start time.Time, frames chan<- audio.AudioFrame) error {
	log := observe.Logger(ctx)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			s.metrics.RecordIngestFrame(ctx, "rejected")
			s.warn.Do(func() {
				log.Warn("bridge: ignoring non-binary ingest message", "bytes", len(data))
			})
			continue
		}

		frame := audio.AudioFrame{
			Data:       data,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Timestamp:  time.Since(start),
		}
		select {
		case frames <- frame:
			s.metrics.RecordIngestFrame(ctx, "ok")
		default:
			s.metrics.RecordIngestFrame(ctx, "dropped")
			s.warn.Do(func() {
				log.Warn("bridge: analyser falling behind, dropping PCM frame", "queue", cap(frames))
			})
		}
	}
}
