package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	ValidateAccessToken(token string) (string, error)
}

const liveCheckTimeout = 3 * time.Second

// RegisterRoutes mounts the websocket endpoint. live may be nil, in which
// case a connection can only watch its own live room.
func RegisterRoutes(r fiber.Router, hub *Hub, verifier TokenVerifier, live LiveAccess) {
	r.Get("/ws", Handshake(verifier), websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		client := hub.Register(userID)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			var frame ClientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			handleFrame(hub, client, frame, live)
		}

		hub.Unregister(client)
		<-done
	}))
}

// Handshake authenticates the connection before the upgrade. The token comes
// from the Authorization header or, for clients that cannot set headers on a
// websocket dial, the token query parameter.
func Handshake(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" || verifier == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}
		userID, err := verifier.ValidateAccessToken(token)
		if err != nil || userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// handleFrame applies join/leave requests. Conversation membership is not
// checked here; who may write to a conversation is decided by the chat
// service. Live rooms require live access.
func handleFrame(hub *Hub, client *Client, frame ClientFrame, live LiveAccess) {
	switch frame.Type {
	case FrameJoinConversation, FrameLeaveConversation:
		if !validID(frame.ConversationID) {
			return
		}
		room := ConversationRoom(strings.TrimSpace(frame.ConversationID))
		if frame.Type == FrameJoinConversation {
			hub.Join(client, room)
		} else {
			hub.Leave(client, room)
		}
	case FrameJoinLive:
		runnerID := strings.TrimSpace(frame.UserID)
		if validID(runnerID) && canWatch(live, client.UserID, runnerID) {
			hub.Join(client, LiveRoom(runnerID))
		}
	case FrameLeaveLive:
		if validID(frame.UserID) {
			hub.Leave(client, LiveRoom(strings.TrimSpace(frame.UserID)))
		}
	}
}

func canWatch(live LiveAccess, viewerID, runnerID string) bool {
	if viewerID == runnerID {
		return true
	}
	if live == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), liveCheckTimeout)
	defer cancel()
	ok, err := live.CanWatch(ctx, viewerID, runnerID)
	return err == nil && ok
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
