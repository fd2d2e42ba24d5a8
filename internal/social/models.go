package social

import "time"

type Kind string

const (
	KindPost  Kind = "post"
	KindStory Kind = "story"
	KindReel  Kind = "reel"
)

// StoryTTL is how long a story stays visible after it is created.
const StoryTTL = 24 * time.Hour

type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Kind         Kind       `json:"kind"`
	Caption      string     `json:"caption"`
	MediaURL     string     `json:"mediaUrl"`
	Activity     string     `json:"activity,omitempty"`
	RunID        *string    `json:"runId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	LikeCount    int64      `json:"likeCount"`
	CommentCount int64      `json:"commentCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreatePostRequest is shared by posts, stories and reels. The author is
// always the authenticated caller.
type CreatePostRequest struct {
	Caption  string `json:"caption"`
	MediaURL string `json:"mediaUrl"`
	Activity string `json:"activity"`
	RunID    string `json:"runId"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type CommentRequest struct {
	Body string `json:"body"`
}
