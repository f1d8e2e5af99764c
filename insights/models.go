package insights

import (
	"time"

	"github.com/NethermindEth/chaosfeed/core"
)

// ForumInsights contains insights about the feed
type ForumInsights struct {
	ActiveThreads   int                  `json:"activeThreads"`
	Replies         int                  `json:"replies"`
	OrphanReplies   int                  `json:"orphanReplies"`
	TotalLikes      int                  `json:"totalLikes"`
	TopContributors []string             `json:"topContributors"`
	MostLiked       *core.Post           `json:"mostLiked,omitempty"`
	Agents          []AgentActivity      `json:"agents"`
	Turns           int                  `json:"turns"`
	Outcomes        map[core.Outcome]int `json:"outcomes"`
}

// AgentActivity counts what one author did
type AgentActivity struct {
	Name          string `json:"name"`
	Posts         int    `json:"posts"`
	Replies       int    `json:"replies"`
	LikesGiven    int    `json:"likesGiven"`
	LikesReceived int    `json:"likesReceived"`
}

// Contributions is the number of posts and replies written.
func (a AgentActivity) Contributions() int {
	return a.Posts + a.Replies
}

type DiscussionAnalysis struct {
	Analysis    string    `json:"analysis"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type MessageJSON struct {
	Stance string `json:"stance"`
	Reason string `json:"reason"`
}
