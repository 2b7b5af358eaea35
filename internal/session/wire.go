package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdhillon/promptdeck/internal/prompt"
)

// outFrame is the JSON wire form of an OutMessage. Every prompt in the set
// is framed exactly once per update, zero weights included, so the service
// can release a style it previously applied.
type outFrame struct {
	Type     string        `json:"type"`
	Prompts  []promptFrame `json:"prompts,omitempty"`
	TempoBPM int           `json:"tempoBpm,omitempty"`
}

type promptFrame struct {
	ID         string  `json:"promptId"`
	Text       string  `json:"text"`
	Weight     float64 `json:"weight"`
	Density    float64 `json:"density"`
	Instrument string  `json:"instrument,omitempty"`
}

// inFrame is the JSON wire form of service messages. Audio arrives base64
// encoded; encoding/json decodes it into the byte slice directly.
type inFrame struct {
	Type   string `json:"type"`
	Audio  []byte `json:"audio,omitempty"`
	Format string `json:"format,omitempty"`
	Text   string `json:"text,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wsTransport speaks the JSON protocol over a websocket. Writes are
// serialized with a mutex because gorilla allows one concurrent writer.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialWebSocket opens a websocket transport to the generation service.
// It performs no retries.
func DialWebSocket(ctx context.Context, url, key string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := http.Header{}
	if key != "" {
		header.Set("Authorization", "Bearer "+key)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(msg OutMessage) error {
	frame := outFrame{Type: msg.Type, TempoBPM: msg.TempoBPM}
	if msg.Prompts != nil {
		frame.Prompts = framePrompts(msg.Prompts)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(frame)
}

func (t *wsTransport) Receive() (InMessage, error) {
	var frame inFrame
	if err := t.conn.ReadJSON(&frame); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return InMessage{}, io.EOF
		}
		return InMessage{}, err
	}
	return InMessage{
		Type:   frame.Type,
		Audio:  frame.Audio,
		Format: frame.Format,
		Text:   frame.Text,
		Reason: frame.Reason,
		Error:  frame.Error,
	}, nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.mu.Unlock()
	return t.conn.Close()
}

// framePrompts flattens a set into wire frames in stable ID order.
func framePrompts(set prompt.Set) []promptFrame {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	frames := make([]promptFrame, 0, len(ids))
	for _, id := range ids {
		p := set[id]
		frames = append(frames, promptFrame{
			ID:         p.ID,
			Text:       p.Text,
			Weight:     p.Weight,
			Density:    p.Density,
			Instrument: p.SelectedInstrument,
		})
	}
	return frames
}
