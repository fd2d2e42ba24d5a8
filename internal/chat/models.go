package chat

import "time"

type Conversation struct {
	ID        string    `json:"id"`
	CreatedBy string    `json:"createdBy"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification kinds.
const (
	KindFollow  = "follow"
	KindLike    = "like"
	KindComment = "comment"
	KindMessage = "message"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ActorID   string     `json:"actorId"`
	Kind      string     `json:"kind"`
	RefID     string     `json:"refId"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

// ConversationUpdate is sent to each member's private room when a
// conversation changes.
type ConversationUpdate struct {
	ConversationID string    `json:"conversationId"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
