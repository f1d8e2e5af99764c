package core

import "time"

// PostKind distinguishes top-level posts from replies
type PostKind string

const (
	KindPost  PostKind = "post"
	KindReply PostKind = "reply"
)

// Post is a single entry in the feed. Author is a weak reference to an Agent name.
type Post struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	ParentID  *int64    `json:"parentId,omitempty"`
	Kind      PostKind  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// IsReply reports whether the post has a parent.
func (p Post) IsReply() bool {
	return p.ParentID != nil
}

// Thread is a post together with its nested replies, used for rendering.
type Thread struct {
	Post
	Replies []Thread `json:"replies"`
}
