package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/audio/textcodec"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

const (
	// eventBuffer is the per-connection subscription buffer. A client that
	// falls further behind misses events.
	eventBuffer = 32

	eventWriteTimeout = 5 * time.Second
)

// eventMessage is one websocket text frame of GET /v1/events.
type eventMessage struct {
	Session    string            `json:"session"`
	State      pipeline.State    `json:"state"`
	At         time.Time         `json:"at"`
	Transcript string            `json:"transcript,omitempty"`
	Reply      string            `json:"reply,omitempty"`
	Failure    *pipeline.Failure `json:"failure,omitempty"`

	// Audio is the reply as base64 WAV. Only set on Playing.
	Audio string `json:"audio,omitempty"`
}

func newEventMessage(ev pipeline.Event, withAudio bool) eventMessage {
	msg := eventMessage{
		Session:    ev.Session,
		State:      ev.State,
		At:         ev.At,
		Transcript: ev.Transcript,
		Reply:      ev.Reply,
		Failure:    ev.Failure,
	}
	if withAudio && ev.Audio != nil {
		msg.Audio = textcodec.ToText(wav.Encode(*ev.Audio))
	}
	return msg
}

// handleEvents streams every state change as JSON until the client goes away
// or the orchestrator closes. The first frame reports the state at subscribe
// time. Pass audio=false to leave out reply audio.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	withAudio := r.URL.Query().Get("audio") != "false"

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("events: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := a.orch.Subscribe(eventBuffer)
	defer unsubscribe()

	// Clients never send anything; CloseRead handles control frames and
	// cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	hello := eventMessage{State: a.orch.State(), At: time.Now()}
	if sess := a.orch.Current(); sess != nil {
		hello.Session = sess.ID
	}
	if err := writeEvent(ctx, conn, hello); err != nil {
		slog.Debug("events: write failed", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeEvent(ctx, conn, newEventMessage(ev, withAudio)); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("events: write failed", "err", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg eventMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
