package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-runbarbie/internal/chat"
	"backend-runbarbie/internal/db"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrSelfFollow   = errors.New("cannot follow yourself")
	ErrEmptyPost    = errors.New("caption or media required")
	ErrEmptyComment = errors.New("comment body required")
	ErrInvalidKind  = errors.New("invalid post kind")
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

type Service struct {
	db  db.Querier
	pub stream.Publisher
	log *logger.Logger
	now func() time.Time
}

func NewService(q db.Querier, pub stream.Publisher, log *logger.Logger) *Service {
	return &Service{db: q, pub: pub, log: logger.OrNop(log).With("component", "social"), now: time.Now}
}

var kindEvents = map[Kind]stream.EventName{
	KindPost:  stream.EventNewPost,
	KindStory: stream.EventNewStory,
	KindReel:  stream.EventNewReel,
}

// Create stores a post, story or reel by userID and announces it on the
// feed room.
func (s *Service) Create(ctx context.Context, userID string, kind Kind, req CreatePostRequest) (Post, error) {
	event, ok := kindEvents[kind]
	if !ok {
		return Post{}, ErrInvalidKind
	}
	req.Caption = strings.TrimSpace(req.Caption)
	req.MediaURL = strings.TrimSpace(req.MediaURL)
	if req.Caption == "" && req.MediaURL == "" {
		return Post{}, ErrEmptyPost
	}
	if kind != KindPost && req.MediaURL == "" {
		return Post{}, ErrEmptyPost
	}

	return stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (Post, []stream.Event, error) {
		post := Post{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      kind,
			Caption:   req.Caption,
			MediaURL:  req.MediaURL,
			Activity:  req.Activity,
			CreatedAt: s.now().UTC(),
		}
		if req.RunID != "" {
			runID := req.RunID
			post.RunID = &runID
		}
		if kind == KindStory {
			expires := post.CreatedAt.Add(StoryTTL)
			post.ExpiresAt = &expires
		}

		if _, err := s.db.Exec(ctx, `
			INSERT INTO posts (id, user_id, kind, caption, media_url, activity, run_id, expires_at, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, post.ID, post.UserID, string(post.Kind), post.Caption, post.MediaURL, post.Activity, post.RunID, post.ExpiresAt, post.CreatedAt); err != nil {
			return Post{}, nil, fmt.Errorf("insert %s: %w", kind, err)
		}
		return post, []stream.Event{{Name: event, Room: stream.FeedRoom, Data: post}}, nil
	})
}

func (s *Service) CreatePost(ctx context.Context, userID string, req CreatePostRequest) (Post, error) {
	return s.Create(ctx, userID, KindPost, req)
}

func (s *Service) CreateStory(ctx context.Context, userID string, req CreatePostRequest) (Post, error) {
	return s.Create(ctx, userID, KindStory, req)
}

func (s *Service) CreateReel(ctx context.Context, userID string, req CreatePostRequest) (Post, error) {
	return s.Create(ctx, userID, KindReel, req)
}

// Follow records followerID following followingID. Following someone twice
// is a no-op and does not notify again.
func (s *Service) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return ErrSelfFollow
	}
	_, err := stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (struct{}, []stream.Event, error) {
		var events []stream.Event
		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO user_follows (follower_id, following_id, created_at)
				VALUES ($1,$2,$3)
				ON CONFLICT DO NOTHING
			`, followerID, followingID, s.now().UTC())
			if err != nil {
				return fmt.Errorf("insert follow: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			_, ev, err := chat.RecordNotification(ctx, tx, followingID, followerID, chat.KindFollow, followerID, s.now().UTC())
			if err != nil {
				return err
			}
			events = append(events, ev)
			return nil
		})
		return struct{}{}, events, err
	})
	return err
}

// CanWatch reports whether viewerID may follow runnerID's live location:
// runners see themselves, everyone else must follow the runner.
func (s *Service) CanWatch(ctx context.Context, viewerID, runnerID string) (bool, error) {
	if viewerID == runnerID {
		return true, nil
	}
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_follows WHERE follower_id=$1 AND following_id=$2)
	`, viewerID, runnerID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return ok, nil
}

func (s *Service) Unfollow(ctx context.Context, followerID, followingID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM user_follows WHERE follower_id=$1 AND following_id=$2`, followerID, followingID)
	return err
}

// LikePost is idempotent. The owner is notified on the first like by
// someone else.
func (s *Service) LikePost(ctx context.Context, userID, postID string) error {
	_, err := stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (struct{}, []stream.Event, error) {
		var events []stream.Event
		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			owner, err := postOwner(ctx, tx, postID)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO post_likes (post_id, user_id, created_at)
				VALUES ($1,$2,$3)
				ON CONFLICT DO NOTHING
			`, postID, userID, s.now().UTC())
			if err != nil {
				return fmt.Errorf("insert like: %w", err)
			}
			if tag.RowsAffected() == 0 || owner == userID {
				return nil
			}
			_, ev, err := chat.RecordNotification(ctx, tx, owner, userID, chat.KindLike, postID, s.now().UTC())
			if err != nil {
				return err
			}
			events = append(events, ev)
			return nil
		})
		return struct{}{}, events, err
	})
	return err
}

func (s *Service) CommentPost(ctx context.Context, userID, postID, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, ErrEmptyComment
	}

	return stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (Comment, []stream.Event, error) {
		comment := Comment{ID: uuid.NewString(), PostID: postID, UserID: userID, Body: body, CreatedAt: s.now().UTC()}
		var events []stream.Event

		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			owner, err := postOwner(ctx, tx, postID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO post_comments (id, post_id, user_id, body, created_at)
				VALUES ($1,$2,$3,$4,$5)
			`, comment.ID, postID, userID, body, comment.CreatedAt); err != nil {
				return fmt.Errorf("insert comment: %w", err)
			}
			if owner == userID {
				return nil
			}
			_, ev, err := chat.RecordNotification(ctx, tx, owner, userID, chat.KindComment, postID, comment.CreatedAt)
			if err != nil {
				return err
			}
			events = append(events, ev)
			return nil
		})
		if err != nil {
			return Comment{}, nil, err
		}
		return comment, events, nil
	})
}

// Feed returns posts and reels by userID and the users they follow, newest
// first. Stories are served by ActiveStories.
func (s *Service) Feed(ctx context.Context, userID string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	return s.queryPosts(ctx, `
		SELECT p.id, p.user_id, p.kind, p.caption, p.media_url, p.activity, p.run_id, p.expires_at, p.created_at,
		       (SELECT COUNT(*) FROM post_likes l WHERE l.post_id=p.id),
		       (SELECT COUNT(*) FROM post_comments c WHERE c.post_id=p.id)
		FROM posts p
		WHERE p.kind <> 'story'
		  AND (p.user_id=$1 OR p.user_id IN (SELECT following_id FROM user_follows WHERE follower_id=$1))
		ORDER BY p.created_at DESC
		LIMIT $2
	`, userID, limit)
}

// ActiveStories returns unexpired stories of userID and followed users.
func (s *Service) ActiveStories(ctx context.Context, userID string) ([]Post, error) {
	return s.queryPosts(ctx, `
		SELECT p.id, p.user_id, p.kind, p.caption, p.media_url, p.activity, p.run_id, p.expires_at, p.created_at,
		       0::bigint, 0::bigint
		FROM posts p
		WHERE p.kind = 'story' AND p.expires_at > $2
		  AND (p.user_id=$1 OR p.user_id IN (SELECT following_id FROM user_follows WHERE follower_id=$1))
		ORDER BY p.created_at DESC
	`, userID, s.now().UTC())
}

func (s *Service) queryPosts(ctx context.Context, sql string, args ...any) ([]Post, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		var (
			p    Post
			kind string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &kind, &p.Caption, &p.MediaURL, &p.Activity, &p.RunID, &p.ExpiresAt, &p.CreatedAt, &p.LikeCount, &p.CommentCount); err != nil {
			return nil, err
		}
		p.Kind = Kind(kind)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func postOwner(ctx context.Context, tx pgx.Tx, postID string) (string, error) {
	var owner string
	err := tx.QueryRow(ctx, `SELECT user_id FROM posts WHERE id=$1`, postID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPostNotFound
	}
	return owner, err
}
