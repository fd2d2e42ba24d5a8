package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"backend-runbarbie/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultChannelPrefix = "stream"
	clientBuffer         = 64
)

type Hub struct {
	redis    *redis.Client
	prefix   string
	instance string
	log      *logger.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	UserID string
	Send   chan []byte

	rooms  map[string]struct{}
	closed bool
}

// envelope carries a room payload between instances over redis.
type envelope struct {
	Origin  string `json:"origin"`
	Room    string `json:"room"`
	Payload []byte `json:"payload"`
}

// NewHub creates a hub. With a non-nil redis client every broadcast is also
// published on "<prefix>:<room>" and messages from other instances are
// relayed to local clients.
func NewHub(redisClient *redis.Client, prefix string, log *logger.Logger) *Hub {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	h := &Hub{
		redis:    redisClient,
		prefix:   prefix,
		instance: uuid.NewString(),
		log:      logger.OrNop(log).With("component", "stream.Hub"),
		rooms:    map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.startRelay()
	}
	return h
}

// Register creates a client for userID and joins it to its private room and
// the shared feed.
func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, clientBuffer),
		rooms:  map[string]struct{}{},
	}
	h.Join(client, UserRoom(userID))
	h.Join(client, FeedRoom)
	return client
}

func (h *Hub) Join(client *Client, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = map[*Client]struct{}{}
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Unregister removes the client from every room and closes Send. Calling it
// twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	client.closed = true
	close(client.Send)
}

// Members returns how many local clients are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers payload to local members of room and, when redis is
// configured, to other instances.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.deliver(room, payload)

	if h.redis == nil {
		return
	}
	raw, err := json.Marshal(envelope{Origin: h.instance, Room: room, Payload: payload})
	if err != nil {
		h.log.Error("encode relay envelope", "room", room, "error", err)
		return
	}
	if err := h.redis.Publish(context.Background(), h.channel(room), raw).Err(); err != nil {
		h.log.Warn("redis publish error", "room", room, "error", err)
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, events ...Event) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("encode event", "event", ev.Name, "room", ev.Room, "error", err)
			continue
		}
		h.Broadcast(ev.Room, payload)
	}
}

func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		select {
		case client.Send <- payload:
		default:
			h.log.Warn("dropping realtime message; client buffer full", "room", room, "user_id", client.UserID)
		}
	}
}

func (h *Hub) startRelay() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := h.redis.PSubscribe(ctx, h.prefix+":*")

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	if _, err := pubsub.Receive(recvCtx); err != nil {
		h.log.Warn("redis subscribe failed; running single-instance", "error", err)
		_ = pubsub.Close()
		cancel()
		return
	}

	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.relay(msg)
			}
		}
	}()
}

func (h *Hub) relay(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		h.log.Warn("bad relay payload", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == h.instance {
		return
	}
	room := env.Room
	if room == "" {
		room = h.roomFromChannel(msg.Channel)
	}
	h.deliver(room, env.Payload)
}

// Close stops the redis relay.
func (h *Hub) Close() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func (h *Hub) channel(room string) string {
	return h.prefix + ":" + room
}

func (h *Hub) roomFromChannel(ch string) string {
	// <prefix>:<room>
	p := h.prefix + ":"
	if len(ch) <= len(p) || !strings.HasPrefix(ch, p) {
		return ""
	}
	return ch[len(p):]
}
