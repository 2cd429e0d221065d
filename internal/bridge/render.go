package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/pkg/viseme"
	"github.com/coder/websocket"
)

// RenderMessage is the JSON frame sent to render clients.
type RenderMessage struct {
	viseme.RenderState

	// AtMS is the elapsed session time in milliseconds.
	AtMS int64 `json:"at_ms"`
}

func newRenderMessage(st viseme.RenderState) RenderMessage {
	return RenderMessage{RenderState: st, AtMS: st.At.Milliseconds()}
}

// latest is a one-slot mailbox that keeps only the newest state. put never
// blocks, so it is safe to call from a hub subscriber.
type latest struct {
	ch chan viseme.RenderState
}

func newLatest() *latest {
	return &latest{ch: make(chan viseme.RenderState, 1)}
}

func (l *latest) put(st viseme.RenderState) {
	for {
		select {
		case l.ch <- st:
			return
		default:
		}
		// Full: discard the stale state and retry.
		select {
		case <-l.ch:
		default:
		}
	}
}

// handleRender streams render states to one websocket client until it
// disconnects. The client receives the current state first.
// GET /ws/render
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("bridge: render accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the connection goes away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx)

	s.metrics.RenderClients.Add(ctx, 1)
	defer s.metrics.RenderClients.Add(context.WithoutCancel(ctx), -1)

	box := newLatest()
	sub := s.hub.Subscribe(box.put)
	defer sub.Unsubscribe()

	log.Info("bridge: render client connected", "remote", r.RemoteAddr)
	defer log.Info("bridge: render client disconnected", "remote", r.RemoteAddr)

	if err := s.sendState(ctx, conn, s.hub.Current()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case st := <-box.ch:
			if err := s.sendState(ctx, conn, st); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("bridge: render write failed", "err", err)
				}
				return
			}
		}
	}
}

func (s *Server) sendState(ctx context.Context, conn *websocket.Conn, st viseme.RenderState) error {
	data, err := json.Marshal(newRenderMessage(st))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
