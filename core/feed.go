package core

import (
	"fmt"
	"strings"
	"time"
)

// EmptyFeedText is what the model sees before anyone has posted.
const EmptyFeedText = "No posts yet."

// Feed is the ordered collection of posts. Identifiers are issued from NextID and
// never reused, so they are unique and strictly increasing in issuance order.
type Feed struct {
	Posts  []Post `json:"posts"`
	NextID int64  `json:"nextId"`
}

// NewFeed returns an empty feed whose first post will get id 1.
func NewFeed() Feed {
	return Feed{NextID: 1}
}

func (f Feed) Len() int {
	return len(f.Posts)
}

// Get looks a post up by id.
func (f *Feed) Get(id int64) (Post, bool) {
	if i := f.index(id); i >= 0 {
		return f.Posts[i], true
	}
	return Post{}, false
}

func (f *Feed) index(id int64) int {
	for i := range f.Posts {
		if f.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

// Add appends a post (parent == nil) or a reply and returns it. The parent is not
// required to exist: a reply to an unknown id becomes an orphan.
func (f *Feed) Add(author, content string, parent *int64, at time.Time) Post {
	if f.NextID < 1 {
		f.NextID = 1
	}
	p := Post{
		ID:        f.NextID,
		Author:    author,
		Content:   content,
		Kind:      KindPost,
		Timestamp: at,
	}
	if parent != nil {
		pid := *parent
		p.ParentID = &pid
		p.Kind = KindReply
	}
	f.NextID++
	f.Posts = append(f.Posts, p)
	return p
}

// Like increments the like count of id. It reports false if no such post exists.
func (f *Feed) Like(id int64) (Post, bool) {
	i := f.index(id)
	if i < 0 {
		return Post{}, false
	}
	f.Posts[i].Likes++
	return f.Posts[i], true
}

// Threads nests replies under their root posts. Orphan replies have no root and
// are not part of any thread.
func (f *Feed) Threads() []Thread {
	children := make(map[int64][]Post)
	var roots []Post
	for _, p := range f.Posts {
		if p.ParentID == nil {
			roots = append(roots, p)
			continue
		}
		children[*p.ParentID] = append(children[*p.ParentID], p)
	}

	var build func(p Post) Thread
	build = func(p Post) Thread {
		t := Thread{Post: p, Replies: []Thread{}}
		for _, c := range children[p.ID] {
			t.Replies = append(t.Replies, build(c))
		}
		return t
	}

	threads := make([]Thread, 0, len(roots))
	for _, r := range roots {
		threads = append(threads, build(r))
	}
	return threads
}

// Text serializes the feed for the prompt, one line per post:
//
//	[3] Alice (#FF4500): I disagree [Likes: 2] (Reply to 1)
func (f *Feed) Text(agents []Agent) string {
	if len(f.Posts) == 0 {
		return EmptyFeedText
	}
	lines := make([]string, 0, len(f.Posts))
	for _, p := range f.Posts {
		line := fmt.Sprintf("[%d] %s (%s): %s [Likes: %d]",
			p.ID, p.Author, AuthorColor(agents, p.Author), p.Content, p.Likes)
		if p.ParentID != nil {
			line += fmt.Sprintf(" (Reply to %d)", *p.ParentID)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (f Feed) clone() Feed {
	out := Feed{NextID: f.NextID, Posts: make([]Post, len(f.Posts))}
	for i, p := range f.Posts {
		if p.ParentID != nil {
			pid := *p.ParentID
			p.ParentID = &pid
		}
		out.Posts[i] = p
	}
	return out
}
