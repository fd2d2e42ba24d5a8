package stream

import (
	"context"
	"strings"
)

type EventName string

const (
	EventNewPost             EventName = "new-post"
	EventNewStory            EventName = "new-story"
	EventNewReel             EventName = "new-reel"
	EventNewMessage          EventName = "new-message"
	EventNewNotification     EventName = "new-notification"
	EventConversationUpdated EventName = "conversation-updated"
	EventLiveLocation        EventName = "live-location"
	EventSOSTriggered        EventName = "sos-triggered"
)

// FeedRoom is shared by every authenticated connection.
const FeedRoom = "feed"

func UserRoom(userID string) string { return "user:" + userID }

func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }

func LiveRoom(userID string) string { return "live:" + userID }

// Event is the frame pushed to clients in Room.
type Event struct {
	Name EventName `json:"event"`
	Room string    `json:"room"`
	Data any       `json:"data,omitempty"`
}

// Publisher delivers events after the write that produced them succeeded.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// WriteThrough runs persist and publishes the events it reports only when
// it returns no error. Domain write paths go through here instead of calling
// the hub, so a successful write cannot skip its notification.
func WriteThrough[T any](ctx context.Context, pub Publisher, persist func(context.Context) (T, []Event, error)) (T, error) {
	result, events, err := persist(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if pub != nil && len(events) > 0 {
		pub.Publish(ctx, events...)
	}
	return result, nil
}

// ClientFrame is what a connected client may send. Conversation frames carry
// ConversationID, live frames carry the runner's UserID.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

const (
	FrameJoinConversation  = "join-conversation"
	FrameLeaveConversation = "leave-conversation"
	FrameJoinLive          = "join-live"
	FrameLeaveLive         = "leave-live"
)

// LiveAccess decides whether viewerID may follow runnerID's live location.
type LiveAccess interface {
	CanWatch(ctx context.Context, viewerID, runnerID string) (bool, error)
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= 128
}
