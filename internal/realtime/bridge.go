// Package realtime keeps the phone's single socket to the event relay and
// fans incoming events out to in-app subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/stream"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Message is one event pushed by the relay. Data is left raw so each
// subscriber decodes the payload type it expects.
type Message struct {
	Event stream.EventName `json:"event"`
	Room  string           `json:"room"`
	Data  json.RawMessage  `json:"data"`
}

type Handler func(Message)

type Bridge struct {
	url    string
	dialer *websocket.Dialer
	log    *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	writeMu sync.Mutex

	subMu    sync.RWMutex
	handlers map[stream.EventName]map[uint64]Handler
	nextID   uint64
}

// NewBridge prepares a bridge for the relay at wsURL, e.g.
// "ws://host/stream/ws". Nothing is dialed until Connect.
func NewBridge(wsURL string, log *logger.Logger) *Bridge {
	return &Bridge{
		url:      wsURL,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      logger.OrNop(log).With("component", "realtime.Bridge"),
		handlers: map[stream.EventName]map[uint64]Handler{},
	}
}

// Connect dials the relay with token. It is a no-op when already connected.
func (b *Bridge) Connect(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := b.dialer.DialContext(ctx, b.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	done := make(chan struct{})
	b.conn = conn
	b.done = done
	go b.readLoop(conn, done)
	return nil
}

func (b *Bridge) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
				b.log.Warn("relay connection lost", "error", err)
			}
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			b.log.Debug("ignoring malformed frame", "error", err)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg Message) {
	b.subMu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[msg.Event]))
	for _, h := range b.handlers[msg.Event] {
		handlers = append(handlers, h)
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, msg)
	}
}

func (b *Bridge) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("realtime handler panicked", "event", msg.Event, "panic", r)
		}
	}()
	h(msg)
}

// Subscribe registers h for event and returns a func that removes it.
// Handlers run on the bridge's read goroutine and must not call Close.
func (b *Bridge) Subscribe(event stream.EventName, h Handler) (unsubscribe func()) {
	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[event] == nil {
		b.handlers[event] = map[uint64]Handler{}
	}
	b.handlers[event][id] = h
	b.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.handlers[event], id)
			if len(b.handlers[event]) == 0 {
				delete(b.handlers, event)
			}
			b.subMu.Unlock()
		})
	}
}

func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// JoinConversation asks the relay for a conversation's events. While
// disconnected the request is dropped, not queued.
func (b *Bridge) JoinConversation(conversationID string) {
	b.send(stream.ClientFrame{Type: stream.FrameJoinConversation, ConversationID: conversationID})
}

func (b *Bridge) LeaveConversation(conversationID string) {
	b.send(stream.ClientFrame{Type: stream.FrameLeaveConversation, ConversationID: conversationID})
}

// WatchRunner asks for runnerID's live-location events. The relay ignores the
// request unless the signed-in user may watch that runner.
func (b *Bridge) WatchRunner(runnerID string) {
	b.send(stream.ClientFrame{Type: stream.FrameJoinLive, UserID: runnerID})
}

func (b *Bridge) UnwatchRunner(runnerID string) {
	b.send(stream.ClientFrame{Type: stream.FrameLeaveLive, UserID: runnerID})
}

func (b *Bridge) send(frame stream.ClientFrame) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.log.Debug("dropping frame while disconnected", "type", frame.Type)
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		b.log.Warn("frame not sent", "type", frame.Type, "error", err)
	}
}

// Close disconnects and waits for the read goroutine to exit. Subscriptions
// survive, so a later Connect resumes delivery.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn, done := b.conn, b.done
	b.conn, b.done = nil, nil
	b.mu.Unlock()
	if conn == nil {
		if done != nil {
			<-done
		}
		return nil
	}

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	b.writeMu.Unlock()
	err := conn.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
