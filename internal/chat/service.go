package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"backend-runbarbie/internal/db"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotMember is returned for conversations the caller does not belong
	// to, including ones that do not exist.
	ErrNotMember      = errors.New("not a conversation member")
	ErrNoParticipants = errors.New("conversation needs another participant")
	ErrEmptyMessage   = errors.New("message body required")
)

const (
	defaultLimit = 50
	maxLimit     = 100
	maxBodyLen   = 4000
)

type Service struct {
	db  db.Querier
	pub stream.Publisher
	log *logger.Logger
	now func() time.Time
}

func NewService(q db.Querier, pub stream.Publisher, log *logger.Logger) *Service {
	return &Service{db: q, pub: pub, log: logger.OrNop(log).With("component", "chat"), now: time.Now}
}

func (s *Service) CreateConversation(ctx context.Context, creator string, participantIDs []string) (Conversation, error) {
	members := memberSet(creator, participantIDs)
	if len(members) < 2 {
		return Conversation{}, ErrNoParticipants
	}

	return stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (Conversation, []stream.Event, error) {
		now := s.now().UTC()
		conv := Conversation{ID: uuid.NewString(), CreatedBy: creator, MemberIDs: members, CreatedAt: now, UpdatedAt: now}

		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				INSERT INTO conversations (id, created_by, created_at, updated_at)
				VALUES ($1,$2,$3,$3)
			`, conv.ID, creator, now); err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
			for _, id := range members {
				if _, err := tx.Exec(ctx, `
					INSERT INTO conversation_members (conversation_id, user_id)
					VALUES ($1,$2)
				`, conv.ID, id); err != nil {
					return fmt.Errorf("insert member: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return Conversation{}, nil, err
		}

		events := make([]stream.Event, 0, len(members))
		for _, id := range members {
			events = append(events, stream.Event{
				Name: stream.EventConversationUpdated,
				Room: stream.UserRoom(id),
				Data: ConversationUpdate{ConversationID: conv.ID, UpdatedAt: now},
			})
		}
		return conv, events, nil
	})
}

// Conversations lists the conversations userID belongs to, most recently
// active first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.created_by, c.created_at, c.updated_at,
		       ARRAY(SELECT cm.user_id FROM conversation_members cm WHERE cm.conversation_id=c.id ORDER BY cm.user_id)
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id=c.id
		WHERE m.user_id=$1
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &c.MemberIDs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SendMessage stores a message from a member. Joining a conversation room is
// unrestricted, so membership is checked here.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxBodyLen {
		return Message{}, ErrEmptyMessage
	}

	return stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (Message, []stream.Event, error) {
		now := s.now().UTC()
		msg := Message{ID: uuid.NewString(), ConversationID: conversationID, SenderID: senderID, Body: body, CreatedAt: now}
		var events []stream.Event

		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			members, err := membersOf(ctx, tx, conversationID)
			if err != nil {
				return err
			}
			if !contains(members, senderID) {
				return ErrNotMember
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
				VALUES ($1,$2,$3,$4,$5)
			`, msg.ID, conversationID, senderID, body, now); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, conversationID, now); err != nil {
				return fmt.Errorf("touch conversation: %w", err)
			}

			events = append(events, stream.Event{Name: stream.EventNewMessage, Room: stream.ConversationRoom(conversationID), Data: msg})
			for _, id := range members {
				events = append(events, stream.Event{
					Name: stream.EventConversationUpdated,
					Room: stream.UserRoom(id),
					Data: ConversationUpdate{ConversationID: conversationID, LastMessage: &msg, UpdatedAt: now},
				})
				if id == senderID {
					continue
				}
				_, ev, err := RecordNotification(ctx, tx, id, senderID, KindMessage, conversationID, now)
				if err != nil {
					return err
				}
				events = append(events, ev)
			}
			return nil
		})
		if err != nil {
			return Message{}, nil, err
		}
		return msg, events, nil
	})
}

// Messages returns the newest messages of a conversation the caller
// belongs to.
func (s *Service) Messages(ctx context.Context, callerID, conversationID string, limit int) ([]Message, error) {
	var member bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id=$1 AND user_id=$2)
	`, conversationID, callerID).Scan(&member); err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func membersOf(ctx context.Context, tx pgx.Tx, conversationID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT user_id FROM conversation_members
		WHERE conversation_id=$1
		ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// memberSet returns the creator plus participants, deduplicated and sorted.
func memberSet(creator string, participants []string) []string {
	seen := map[string]struct{}{}
	for _, id := range append([]string{creator}, participants...) {
		id = strings.TrimSpace(id)
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
