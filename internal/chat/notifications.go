package chat

import (
	"context"
	"fmt"
	"time"

	"backend-runbarbie/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx and db.Querier, so notifications can be
// written inside the transaction of the write that caused them.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RecordNotification stores a notification for userID and returns the
// new-notification event to publish once the surrounding write commits.
func RecordNotification(ctx context.Context, q Execer, userID, actorID, kind, refID string, at time.Time) (Notification, stream.Event, error) {
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		ActorID:   actorID,
		Kind:      kind,
		RefID:     refID,
		CreatedAt: at,
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO notifications (id, user_id, actor_id, kind, ref_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, n.ID, n.UserID, n.ActorID, n.Kind, n.RefID, n.CreatedAt); err != nil {
		return Notification{}, stream.Event{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, stream.Event{Name: stream.EventNewNotification, Room: stream.UserRoom(userID), Data: n}, nil
}

func (s *Service) Notifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, actor_id, kind, ref_id, read_at, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ActorID, &n.Kind, &n.RefID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead stamps every unread notification of userID and
// reports how many changed.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read_at=$2
		WHERE user_id=$1 AND read_at IS NULL
	`, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
