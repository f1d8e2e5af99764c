package insights

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/core"
)

var t0 = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func buildState(t *testing.T) core.State {
	t.Helper()
	s := core.NewState("cats")
	steps := []core.Msg{
		core.AddAgent{ID: "1", Name: "Ada", Bio: "x"},
		core.AddAgent{ID: "2", Name: "Alan", Bio: "y"},
		core.AddAgent{ID: "3", Name: "Grace", Bio: "z"},
		core.OpeningPost{Author: "Ada", Content: "Starting", At: t0},
		core.ApplyAction{Agent: "Alan", Action: core.Action{Kind: core.ActionReply, Content: "no", TargetID: 1}, At: t0},
		core.ApplyAction{Agent: "Ada", Action: core.Action{Kind: core.ActionReply, Content: "yes", TargetID: 2}, At: t0},
		core.ApplyAction{Agent: "Alan", Action: core.Action{Kind: core.ActionPost, Content: "new"}, At: t0},
		core.ApplyAction{Agent: "Grace", Action: core.Action{Kind: core.ActionLike, TargetID: 2}, At: t0},
		core.ApplyAction{Agent: "Ada", Action: core.Action{Kind: core.ActionLike, TargetID: 2}, At: t0},
		core.ApplyAction{Agent: "Alan", Action: core.Action{Kind: core.ActionReply, Content: "lost", TargetID: 99}, At: t0},
		core.RecordIteration{Record: core.IterationRecord{Outcome: core.OutcomeApplied, Action: core.ActionExchange{Agent: "Grace", Response: `{"action":"like","targetId":2}`}}},
		core.RecordIteration{Record: core.IterationRecord{Outcome: core.OutcomeApplied, Action: core.ActionExchange{Agent: "Ada", Response: `{"action":"like","targetId":2}`}}},
		core.RecordIteration{Record: core.IterationRecord{Outcome: core.OutcomeUnparseable, Action: core.ActionExchange{Agent: "Grace", Response: "nope"}}},
	}
	for _, m := range steps {
		var err error
		s, _, err = core.Reduce(s, m)
		require.NoError(t, err)
	}
	return s
}

func TestSummarize(t *testing.T) {
	got := Summarize(buildState(t))

	assert.Equal(t, 2, got.ActiveThreads)
	assert.Equal(t, 3, got.Replies)
	assert.Equal(t, 1, got.OrphanReplies)
	assert.Equal(t, 2, got.TotalLikes)
	require.NotNil(t, got.MostLiked)
	assert.Equal(t, int64(2), got.MostLiked.ID)
	assert.Equal(t, []string{"Alan", "Ada"}, got.TopContributors)
	assert.Equal(t, 3, got.Turns)
	assert.Equal(t, 2, got.Outcomes[core.OutcomeApplied])

	byName := map[string]AgentActivity{}
	for _, a := range got.Agents {
		byName[a.Name] = a
	}
	assert.Equal(t, AgentActivity{Name: "Alan", Posts: 1, Replies: 2, LikesReceived: 2}, byName["Alan"])
	assert.Equal(t, 1, byName["Grace"].LikesGiven)
	assert.Equal(t, 0, byName["Grace"].Contributions())
	assert.Contains(t, got.StatusLine(), "top Alan, Ada")
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(core.NewState(""))
	assert.Zero(t, got.ActiveThreads)
	assert.Nil(t, got.MostLiked)
	assert.Empty(t, got.TopContributors)
	assert.Equal(t, "threads 0 · replies 0 · likes 0 · turns 0", got.StatusLine())
}

type cannedBackend struct {
	resp string
	err  error
}

func (b cannedBackend) Complete(context.Context, string, bool) (string, error) {
	return b.resp, b.err
}

func TestAnalyzeDiscussion(t *testing.T) {
	e := NewExtractor(cannedBackend{resp: `{"stance":"heated","reason":"## Main Threads\n- cats"}`})
	e.now = func() time.Time { return t0 }

	got, err := e.AnalyzeDiscussion(context.Background(), buildState(t))
	require.NoError(t, err)
	assert.Equal(t, "## Main Threads\n- cats", got.Analysis)
	assert.Equal(t, t0, got.LastUpdated)

	_, err = e.AnalyzeDiscussion(context.Background(), core.NewState("cats"))
	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := core.NewStore(buildState(t))

	r := gin.New()
	h := NewHandler(store, NewExtractor(cannedBackend{err: ai.ErrMissingCredential}))
	r.GET("/insights", h.GetInsights)
	r.GET("/insights/analysis", h.GetDiscussionAnalysis)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/insights", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body ForumInsights
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.ActiveThreads)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/insights/analysis", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
