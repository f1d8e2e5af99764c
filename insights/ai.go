package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/core"
)

// ErrEmptyFeed is returned when there is nothing to analyze yet.
var ErrEmptyFeed = errors.New("no posts to analyze")

// Extractor asks the model for a written analysis of the discussion
type Extractor struct {
	backend ai.Backend
	now     func() time.Time
}

func NewExtractor(backend ai.Backend) *Extractor {
	return &Extractor{backend: backend, now: time.Now}
}

// AnalyzeDiscussion summarizes the feed of s as markdown.
func (e *Extractor) AnalyzeDiscussion(ctx context.Context, s core.State) (*DiscussionAnalysis, error) {
	if s.Feed.Len() == 0 {
		return nil, ErrEmptyFeed
	}

	prompt := fmt.Sprintf(`Analyze this online discussion about %q and provide a JSON response with markdown analysis:

%s

Your response must be a JSON object in this format:
{
  "stance": "the overall mood of the discussion in one word",
  "reason": "## Main Threads\n- (what the discussion is about)\n\n## Agreement Patterns\n- Areas of agreement: (list)\n- Points of contention: (list)\n\n## Participant Dynamics\n- Key influencers: (who drives the conversation)\n- Alliances and rivalries: (who backs or opposes whom)"
}

The markdown content should be properly escaped as a string in the JSON.`, s.Topic, s.FeedText())

	resp, err := e.backend.Complete(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	analysis := resp
	var msg MessageJSON
	if err := json.Unmarshal([]byte(resp), &msg); err == nil && strings.TrimSpace(msg.Reason) != "" {
		analysis = msg.Reason
	}

	return &DiscussionAnalysis{
		Analysis:    analysis,
		LastUpdated: e.now(),
	}, nil
}
