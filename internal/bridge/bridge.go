// Package bridge runs the local websocket endpoint the browser extension
// connects to. Extension frames flow onto the message bus; commands flow
// back over the same socket.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/quillworks/voxpilot/internal/bus"
	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/notify"
)

// ErrNoClients is returned when a command has no connected extension to go to.
var ErrNoClients = errors.New("bridge: no connected clients")

const writeTimeout = 5 * time.Second

// frame is the wire format in both directions.
type frame struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation,omitempty"`

	URL     string `json:"url,omitempty"`
	Markup  string `json:"markup,omitempty"`
	Persona string `json:"persona,omitempty"`
	Model   string `json:"model,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Level   string `json:"level,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

type Bridge struct {
	host       string
	port       int
	bus        *bus.MessageBus
	server     *http.Server
	clients    sync.Map
	nextID     atomic.Int64
	ackTimeout time.Duration

	// StatusFunc, when set, serves GET /status for the CLI.
	StatusFunc func() any

	ackMu   sync.Mutex
	pending chan bool
}

func New(host string, port int, ackTimeout time.Duration, b *bus.MessageBus) *Bridge {
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &Bridge{host: host, port: port, ackTimeout: ackTimeout, bus: b}
}

func (b *Bridge) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	mux.HandleFunc("/status", b.handleStatus)

	b.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", b.host, b.port),
		Handler: mux,
	}

	go func() {
		log.Printf("[bridge] listening on %s", b.server.Addr)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[bridge] server error: %v", err)
		}
	}()

	return nil
}

func (b *Bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var status any = map[string]any{"clients": b.clientCount()}
	if b.StatusFunc != nil {
		status = b.StatusFunc()
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[bridge] websocket accept error: %v", err)
		return
	}
	// DOM snapshots of long threads run well past the 32KiB default.
	conn.SetReadLimit(4 << 20)

	clientID := fmt.Sprintf("ext-%d", b.nextID.Add(1))
	b.clients.Store(clientID, &wsClient{conn: conn, id: clientID})
	log.Printf("[bridge] client connected: %s", clientID)

	defer func() {
		b.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[bridge] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("[bridge] bad frame from %s: %v", clientID, err)
			continue
		}
		b.handleFrame(clientID, f)
	}
}

func (b *Bridge) handleFrame(clientID string, f frame) {
	switch f.Type {
	case bus.EventPosted:
		b.resolveAck(f.OK)
		return
	case bus.EventError:
		b.bus.Inbound <- bus.InboundEvent{
			Type:      bus.EventError,
			ClientID:  clientID,
			Message:   f.Message,
			Timestamp: time.Now(),
		}
		return
	case bus.EventSnapshot, bus.EventActivate, bus.EventDeactivate, bus.EventChoice:
		id, ok := conversation.IDFromURL(f.URL)
		if !ok {
			log.Printf("[bridge] dropping %s frame with no conversation id: %q", f.Type, f.URL)
			return
		}
		b.bus.Inbound <- bus.InboundEvent{
			Type:           f.Type,
			ClientID:       clientID,
			ConversationID: id,
			URL:            f.URL,
			Markup:         f.Markup,
			Persona:        f.Persona,
			Model:          f.Model,
			Timestamp:      time.Now(),
		}
	default:
		log.Printf("[bridge] unknown frame type %q from %s", f.Type, clientID)
	}
}

// Send broadcasts a command to every connected client.
func (b *Bridge) Send(cmd bus.Command) error {
	data, err := json.Marshal(frame{
		Type:         cmd.Type,
		Conversation: cmd.ConversationID,
		Text:         cmd.Text,
		Level:        cmd.Level,
	})
	if err != nil {
		return err
	}

	sent := false
	b.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			log.Printf("[bridge] write to %s failed: %v", c.id, err)
		} else {
			sent = true
		}
		cancel()
		return true
	})
	if !sent {
		return ErrNoClients
	}
	return nil
}

// Post sends a post command and waits for the extension to acknowledge that
// the text landed in the page. Only one post may be in flight at a time
// across all conversations: the extension injects into a single focused
// thread, so a posted ack cannot be attributed to a conversation and a
// second simultaneous post is rejected rather than queued. The loser's
// trigger stays unanswered, same as any other failed injection.
func (b *Bridge) Post(ctx context.Context, text string) bool {
	b.ackMu.Lock()
	if b.pending != nil {
		b.ackMu.Unlock()
		log.Printf("[bridge] post rejected: another post in flight")
		return false
	}
	ch := make(chan bool, 1)
	b.pending = ch
	b.ackMu.Unlock()

	defer func() {
		b.ackMu.Lock()
		b.pending = nil
		b.ackMu.Unlock()
	}()

	if err := b.Send(bus.Command{Type: bus.CommandPost, Text: text}); err != nil {
		log.Printf("[bridge] post send failed: %v", err)
		return false
	}

	select {
	case ok := <-ch:
		return ok
	case <-time.After(b.ackTimeout):
		log.Printf("[bridge] post ack timeout after %s", b.ackTimeout)
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *Bridge) resolveAck(ok bool) {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	if b.pending == nil {
		log.Printf("[bridge] unexpected posted ack")
		return
	}
	select {
	case b.pending <- ok:
	default:
	}
}

// Notify implements notify.Sink: severity-classed toasts shown in the page.
func (b *Bridge) Notify(level notify.Level, message string) {
	if err := b.Send(bus.Command{Type: bus.CommandNotice, Text: message, Level: string(level)}); err != nil {
		log.Printf("[bridge] notice dropped: %v", err)
	}
}

func (b *Bridge) clientCount() int {
	n := 0
	b.clients.Range(func(any, any) bool { n++; return true })
	return n
}

func (b *Bridge) Stop() error {
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			log.Printf("[bridge] shutdown error: %v", err)
		}
	}
	b.clients.Range(func(key, value any) bool {
		value.(*wsClient).conn.CloseNow()
		return true
	})
	log.Printf("[bridge] stopped")
	return nil
}
