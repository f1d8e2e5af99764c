package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/parser"
)

// TopN is how many names TopContributors holds.
const TopN = 3

// Summarize computes feed statistics from a state snapshot.
func Summarize(s core.State) ForumInsights {
	out := ForumInsights{
		TopContributors: []string{},
		Agents:          []AgentActivity{},
		Turns:           len(s.Iterations),
		Outcomes:        map[core.Outcome]int{},
	}

	activity := map[string]*AgentActivity{}
	get := func(name string) *AgentActivity {
		a, ok := activity[name]
		if !ok {
			a = &AgentActivity{Name: name}
			activity[name] = a
		}
		return a
	}
	for _, a := range s.Agents {
		get(a.Name)
	}

	for i, p := range s.Feed.Posts {
		a := get(p.Author)
		if p.IsReply() {
			a.Replies++
			out.Replies++
			if _, ok := s.Feed.Get(*p.ParentID); !ok {
				out.OrphanReplies++
			}
		} else {
			a.Posts++
			out.ActiveThreads++
		}
		a.LikesReceived += p.Likes
		out.TotalLikes += p.Likes
		if p.Likes > 0 && (out.MostLiked == nil || p.Likes > out.MostLiked.Likes) {
			post := s.Feed.Posts[i]
			out.MostLiked = &post
		}
	}

	for _, rec := range s.Iterations {
		out.Outcomes[rec.Outcome]++
		if rec.Outcome != core.OutcomeApplied {
			continue
		}
		if res := parser.Parse(rec.Action.Response); res.OK() && res.Action.Kind == core.ActionLike {
			get(rec.Action.Agent).LikesGiven++
		}
	}

	for _, a := range activity {
		out.Agents = append(out.Agents, *a)
	}
	sort.Slice(out.Agents, func(i, j int) bool {
		ai, aj := out.Agents[i], out.Agents[j]
		if ai.Contributions() != aj.Contributions() {
			return ai.Contributions() > aj.Contributions()
		}
		return ai.Name < aj.Name
	})
	for _, a := range out.Agents {
		if len(out.TopContributors) == TopN || a.Contributions() == 0 {
			break
		}
		out.TopContributors = append(out.TopContributors, a.Name)
	}
	return out
}

// StatusLine is a one-line summary for narrow displays.
func (f ForumInsights) StatusLine() string {
	parts := []string{
		fmt.Sprintf("threads %d", f.ActiveThreads),
		fmt.Sprintf("replies %d", f.Replies),
		fmt.Sprintf("likes %d", f.TotalLikes),
		fmt.Sprintf("turns %d", f.Turns),
	}
	if len(f.TopContributors) > 0 {
		parts = append(parts, "top "+strings.Join(f.TopContributors, ", "))
	}
	return strings.Join(parts, " · ")
}
