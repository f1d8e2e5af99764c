package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/export"
)

// scriptBackend answers prompts from a function and counts calls.
type scriptBackend struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, prompt string) (string, error)
}

func (b *scriptBackend) Complete(_ context.Context, prompt string, _ bool) (string, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	return b.fn(n, prompt)
}

func (b *scriptBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func answer(s string) *scriptBackend {
	return &scriptBackend{fn: func(int, string) (string, error) { return s, nil }}
}

// memorySink keeps the last exported log.
type memorySink struct {
	mu      sync.Mutex
	last    []core.IterationRecord
	exports int
}

func (m *memorySink) Export(_ context.Context, records []core.IterationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append([]core.IterationRecord(nil), records...)
	m.exports++
	return nil
}

// badger, imported through export, starts glog's flush daemon at package init
var ignoreGlog = goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon")

func newStore(t *testing.T, topic string, names ...string) *core.Store {
	t.Helper()
	st := core.NewStore(core.NewState(topic))
	for _, n := range names {
		_, err := st.AddAgent(n, n+" has opinions")
		require.NoError(t, err)
	}
	return st
}

func newEngine(st *core.Store, backend ai.Backend, cfg Config, seed int64) *Engine {
	n := 0
	return NewEngine(st, backend, cfg, nil,
		WithRand(rand.New(rand.NewSource(seed))),
		WithSleep(func(context.Context, time.Duration) {}),
		WithIDs(func() string { n++; return fmt.Sprint(n) }),
	)
}

func TestStartRejections(t *testing.T) {
	t.Run("no agents", func(t *testing.T) {
		st := newStore(t, "cats")
		before := st.Snapshot()

		err := newEngine(st, answer("{}"), Config{}, 1).Start(context.Background())
		assert.ErrorIs(t, err, ErrNoAgents)
		assert.Equal(t, before, st.Snapshot())
	})

	for name, topic := range map[string]string{"empty topic": "", "blank topic": "  \t "} {
		t.Run(name, func(t *testing.T) {
			st := newStore(t, topic, "Ada", "Alan")
			before := st.Snapshot()

			e := newEngine(st, answer("{}"), Config{}, 1)
			assert.ErrorIs(t, e.Start(context.Background()), core.ErrEmptyTopic)
			assert.Equal(t, before, st.Snapshot())
			assert.False(t, e.Running())
		})
	}

	t.Run("blank topic after idle edit", func(t *testing.T) {
		st := newStore(t, "cats", "Ada")
		require.NoError(t, st.Dispatch(core.SetTopic{Topic: "   "}))

		err := newEngine(st, answer("{}"), Config{}, 1).Start(context.Background())
		assert.ErrorIs(t, err, core.ErrEmptyTopic)
	})
}

func TestOpeningPostIsNotAnIteration(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan")
	e := newEngine(st, answer(`{"action":"post","content":"x"}`), Config{}, 1)

	require.NoError(t, e.Step(context.Background()))

	s := st.Snapshot()
	require.Equal(t, 1, s.Feed.Len())
	assert.Equal(t, `Starting the discussion about "cats"...`, s.Feed.Posts[0].Content)
	assert.Equal(t, s.Feed.Posts[0].Author, s.LastActor)
	assert.Empty(t, s.Iterations)
}

func TestNoAgentActsTwiceInARow(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan", "Grace")
	backend := &scriptBackend{fn: func(call int, _ string) (string, error) {
		switch call % 4 {
		case 0:
			return `{"action":"like","targetId":1}`, nil
		case 1:
			return `{"action":"reply","content":"hmm","targetId":1}`, nil
		case 2:
			return "I refuse to answer in JSON", nil
		default:
			return `{"action":"post","content":"new thought"}`, nil
		}
	}}
	e := newEngine(st, backend, Config{}, 42)

	for i := 0; i < 201; i++ {
		require.NoError(t, e.Step(context.Background()))
	}

	s := st.Snapshot()
	require.Len(t, s.Iterations, 200)
	prev := s.Feed.Posts[0].Author
	for _, rec := range s.Iterations {
		assert.NotEqual(t, prev, rec.Action.Agent, "iteration %d", rec.Iteration)
		prev = rec.Action.Agent
	}
}

func TestSingleAgentMayRepeat(t *testing.T) {
	st := newStore(t, "cats", "Ada")
	e := newEngine(st, answer(`{"action":"like","targetId":1}`), Config{}, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Step(context.Background()))
	}
	s := st.Snapshot()
	require.Len(t, s.Iterations, 2)
	assert.Equal(t, "Ada", s.Iterations[1].Action.Agent)
	root, _ := s.Feed.Get(1)
	assert.Equal(t, 2, root.Likes)
}

func TestExportAfterNTurns(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan")
	sink := &memorySink{}
	e := newEngine(st, answer(`{"action":"post","content":"more"}`), Config{Sink: sink}, 7)

	const turns = 9
	for i := 0; i < turns+1; i++ {
		require.NoError(t, e.Step(context.Background()))
	}

	require.Len(t, sink.last, turns)
	assert.Equal(t, turns, sink.exports)
	for i, rec := range sink.last {
		assert.Equal(t, i+1, rec.Iteration)
		assert.Equal(t, core.OutcomeApplied, rec.Outcome)
		assert.Equal(t, core.SelectRandom, rec.Selector.Method)
		assert.Equal(t, rec.Selector.SelectedAgent, rec.Action.Agent)
		assert.Contains(t, rec.Action.Prompt, rec.Action.Agent)
	}

	var last int64
	for _, p := range st.Snapshot().Feed.Posts {
		assert.Greater(t, p.ID, last)
		last = p.ID
	}
	assert.Equal(t, int64(turns+1), last)
}

func TestParseFailuresAreRecordedNotApplied(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan")
	backend := &scriptBackend{fn: func(call int, _ string) (string, error) {
		if call == 1 {
			return "no json here", nil
		}
		return `{"action":"reply","content":"missing target"}`, nil
	}}
	e := newEngine(st, backend, Config{}, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Step(context.Background()))
	}

	s := st.Snapshot()
	assert.Equal(t, 1, s.Feed.Len())
	require.Len(t, s.Iterations, 2)
	assert.Equal(t, core.OutcomeUnparseable, s.Iterations[0].Outcome)
	assert.Equal(t, "no json here", s.Iterations[0].Action.Response)
	assert.Equal(t, core.OutcomeInvalid, s.Iterations[1].Outcome)
	assert.Equal(t, s.Iterations[1].Action.Agent, s.LastActor)
	assert.Empty(t, s.Notifications)
}

func TestMissingCredentialSurfacedOnce(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan")
	backend := &scriptBackend{fn: func(int, string) (string, error) { return "", ai.ErrMissingCredential }}
	e := newEngine(st, backend, Config{}, 5)

	require.NoError(t, e.Step(context.Background()))
	opener := st.Snapshot().LastActor
	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, e.Step(context.Background()), ai.ErrMissingCredential)
	}

	s := st.Snapshot()
	require.Len(t, s.Iterations, 4)
	for _, rec := range s.Iterations {
		assert.Equal(t, core.OutcomeBackendError, rec.Outcome)
		assert.NotEmpty(t, rec.Error)
	}
	assert.Equal(t, opener, s.LastActor)

	var surfaced int
	for _, l := range s.Logs {
		if strings.Contains(l.Message, "API key") {
			surfaced++
		}
	}
	assert.Equal(t, 1, surfaced)
}

func TestModelSelection(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan", "Grace")
	backend := &scriptBackend{fn: func(_ int, prompt string) (string, error) {
		if strings.Contains(prompt, "speak next") {
			return `{"agent":"grace"}`, nil
		}
		return `{"action":"post","content":"hello"}`, nil
	}}
	e := newEngine(st, backend, Config{Selection: SelectModel}, 9)
	require.NoError(t, st.Dispatch(core.OpeningPost{Author: "Ada", Content: "hi"}))

	require.NoError(t, e.Step(context.Background()))
	require.NoError(t, e.Step(context.Background()))

	s := st.Snapshot()
	require.Len(t, s.Iterations, 2)
	first := s.Iterations[0]
	assert.Equal(t, core.SelectModel, first.Selector.Method)
	assert.Equal(t, "Grace", first.Selector.SelectedAgent)
	assert.Contains(t, first.Selector.Prompt, "speak next")

	// Grace just acted, so the same answer is no longer eligible
	second := s.Iterations[1]
	assert.Equal(t, core.SelectRandom, second.Selector.Method)
	assert.NotEqual(t, "Grace", second.Action.Agent)
	assert.Equal(t, `{"agent":"grace"}`, second.Selector.Response)
}

func TestEligible(t *testing.T) {
	agents := []core.Agent{{Name: "Ada"}, {Name: "Alan"}}

	assert.Equal(t, agents, Eligible(agents, ""))
	assert.Equal(t, []core.Agent{{Name: "Alan"}}, Eligible(agents, "Ada"))
	assert.Equal(t, agents[:1], Eligible(agents[:1], "Ada"))
	assert.Equal(t, agents, Eligible(agents, "ghost"))
}

func TestLoopLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	st := newStore(t, "cats", "Ada", "Alan")
	backend := answer(`{"action":"post","content":"tick"}`)
	e := newEngine(st, backend, Config{TurnDelay: time.Millisecond}, 11)
	e.sleep = sleepCtx

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return len(st.Snapshot().Iterations) >= 3
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	e.Wait()
	assert.False(t, e.Running())

	calls := backend.Calls()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, backend.Calls(), "no turns after the loop exited")

	// restarting clears the iteration log and keeps the feed
	posts := st.Snapshot().Feed.Len()
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())
	e.Wait()
	assert.GreaterOrEqual(t, st.Snapshot().Feed.Len(), posts)
	assert.LessOrEqual(t, len(st.Snapshot().Iterations), 1)
}

func TestLoopStopsWhenContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	st := newStore(t, "cats", "Ada")
	blocked := make(chan struct{})
	backend := &scriptBackend{fn: func(int, string) (string, error) {
		<-blocked
		return "", errors.New("connection reset")
	}}
	e := newEngine(st, backend, Config{TurnDelay: time.Hour}, 1)
	e.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	require.Eventually(t, func() bool { return st.Snapshot().Feed.Len() == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	close(blocked)
	e.Wait()
	assert.False(t, e.Running())
}

func TestSinkIsOptionalAndErrorsIgnored(t *testing.T) {
	st := newStore(t, "cats", "Ada", "Alan")
	failing := export.SinkFunc(func(context.Context, []core.IterationRecord) error {
		return errors.New("disk full")
	})
	e := newEngine(st, answer(`{"action":"post","content":"x"}`), Config{Sink: failing}, 2)

	require.NoError(t, e.Step(context.Background()))
	require.NoError(t, e.Step(context.Background()))
	assert.Len(t, st.Snapshot().Iterations, 1)
}

func TestRestartAfterCancelledLoopRunsAgain(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	st := newStore(t, "cats", "Ada", "Alan")
	require.NoError(t, st.Dispatch(core.OpeningPost{Author: "Ada", Content: "hi"}))

	entered := make(chan struct{})
	release := make(chan struct{})
	backend := &scriptBackend{fn: func(call int, _ string) (string, error) {
		if call == 1 {
			close(entered)
			<-release
		}
		return `{"action":"post","content":"again"}`, nil
	}}
	e := newEngine(st, backend, Config{TurnDelay: time.Millisecond}, 4)
	e.sleep = sleepCtx

	ctx1, cancel1 := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx1))
	<-entered

	require.NoError(t, e.Stop())
	cancel1()

	started := make(chan error, 1)
	go func() { started <- e.Start(context.Background()) }()
	close(release)
	require.NoError(t, <-started)
	assert.True(t, e.Running())

	// the new loop keeps taking turns after the old one has gone
	require.Eventually(t, func() bool { return backend.Calls() >= 4 }, 5*time.Second, time.Millisecond)
	assert.True(t, e.Running())

	require.NoError(t, e.Stop())
	e.Wait()
	assert.False(t, e.Running())
}
