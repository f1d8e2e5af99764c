package tui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/profiles"
)

type fakeEngine struct {
	store    *core.Store
	startErr error
	started  int
}

func (f *fakeEngine) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return f.store.Dispatch(core.SetRunning{Running: true})
}

func (f *fakeEngine) Stop() error {
	return f.store.Dispatch(core.SetRunning{Running: false})
}

func (f *fakeEngine) Running() bool {
	return f.store.Snapshot().Running
}

func newTestModel(t *testing.T) (Model, *core.Store, *fakeEngine) {
	t.Helper()
	store := core.NewStore(core.NewState("cats"))
	eng := &fakeEngine{store: store}
	m := NewModel(context.Background(), store, eng, nil, filepath.Join(t.TempDir(), "profiles.json"))
	return m, store, eng
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestWindowSize(t *testing.T) {
	m, _, _ := newTestModel(t)

	m = send(t, m, tea.WindowSizeMsg{Width: 160, Height: 50})
	assert.Equal(t, 160, m.width)
	assert.Equal(t, 50, m.height)

	// tiny terminals are clamped instead of producing negative panel sizes
	m = send(t, m, tea.WindowSizeMsg{Width: 0, Height: 0})
	assert.NotPanics(t, func() { _ = m.View() })
}

func TestEmptyView(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.View()
	assert.Contains(t, view, "chaosfeed")
	assert.Contains(t, view, "cats")
	assert.Contains(t, view, core.EmptyFeedText)
	assert.Contains(t, view, "No agents yet")
}

func TestAddAgentFlow(t *testing.T) {
	m, store, _ := newTestModel(t)

	m = send(t, m, key("a"))
	assert.Equal(t, modeName, m.mode)

	// an empty name keeps the prompt open
	m = send(t, m, key("enter"))
	assert.Equal(t, modeName, m.mode)
	assert.True(t, m.statusErr)

	m = send(t, m, key("Ada"), key("enter"))
	assert.Equal(t, modeBio, m.mode)
	m = send(t, m, key("enter"))
	assert.Equal(t, modeBio, m.mode, "bio is required")

	m = send(t, m, key("math"), key("enter"))
	assert.Equal(t, modeNormal, m.mode)
	require.Len(t, store.Snapshot().Agents, 1)
	assert.Equal(t, "Ada", store.Snapshot().Agents[0].Name)
	assert.Contains(t, m.View(), "Ada")
}

func TestEscCancelsInput(t *testing.T) {
	m, store, _ := newTestModel(t)
	m = send(t, m, key("a"), key("Ada"), key("esc"))
	assert.Equal(t, modeNormal, m.mode)
	assert.Empty(t, store.Snapshot().Agents)

	// keys go back to the normal bindings
	next, cmd := m.Update(key("q"))
	assert.True(t, next.(Model).Quitting())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTopicEntry(t *testing.T) {
	m, store, eng := newTestModel(t)

	m = send(t, m, key("t"), key("dogs"), key("enter"))
	assert.Equal(t, "dogs", store.Snapshot().Topic)

	m = send(t, m, key("t"), key("enter"))
	assert.Equal(t, "dogs", store.Snapshot().Topic, "empty entry keeps the topic")

	_, err := store.AddAgent("Ada", "math")
	require.NoError(t, err)
	m = send(t, m, key("s"))
	require.Equal(t, 1, eng.started)

	m = send(t, m, key("t"), key("birds"), key("enter"))
	assert.Equal(t, "dogs", store.Snapshot().Topic)
	assert.True(t, m.statusErr)
	assert.Equal(t, core.ErrTopicLocked.Error(), m.status)
}

func TestStartStopToggle(t *testing.T) {
	m, store, eng := newTestModel(t)

	eng.startErr = errors.New("at least one agent is required")
	m = send(t, m, key("s"))
	assert.True(t, m.statusErr)
	assert.False(t, store.Snapshot().Running)

	eng.startErr = nil
	m = send(t, m, key("s"))
	assert.True(t, store.Snapshot().Running)
	assert.Contains(t, m.View(), "running")

	m = send(t, m, key("s"))
	assert.False(t, store.Snapshot().Running)
	assert.Contains(t, m.View(), "idle")
}

func TestLoadDefaultsAndDelete(t *testing.T) {
	m, store, _ := newTestModel(t)

	m = send(t, m, key("d"))
	agents := store.Snapshot().Agents
	require.Len(t, agents, len(profiles.Defaults()))

	m = send(t, m, key("j"), key("x"))
	after := store.Snapshot().Agents
	require.Len(t, after, len(agents)-1)
	for _, a := range after {
		assert.NotEqual(t, agents[1].ID, a.ID)
	}
	assert.Contains(t, m.status, agents[1].Name)
}

func TestEventsRefreshTheView(t *testing.T) {
	store := core.NewStore(core.NewState("cats"))
	events, cancel := store.Subscribe(16)
	m := NewModel(context.Background(), store, &fakeEngine{store: store}, events, "")

	cmd := m.Init()
	require.NotNil(t, cmd)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Dispatch(core.AddAgent{ID: "1", Name: "Ada", Bio: "x"}))
	require.NoError(t, store.Dispatch(core.OpeningPost{Author: "Ada", Content: "hello world", At: at}))
	require.NoError(t, store.Dispatch(core.ApplyAction{
		Agent: "Ada", NotificationID: "n", At: at,
		Action: core.Action{Kind: core.ActionReply, Content: "a reply", TargetID: 1},
	}))

	msg := cmd()
	require.IsType(t, eventMsg{}, msg)
	next, nextCmd := m.Update(msg)
	m = next.(Model)
	assert.NotNil(t, nextCmd, "keeps listening")

	view := m.View()
	assert.Contains(t, view, "hello world")
	assert.Contains(t, view, "a reply")
	assert.Contains(t, view, "replied")
	assert.Contains(t, view, "threads 1")

	cancel()
	for {
		msg := nextCmd()
		if _, ok := msg.(eventsClosedMsg); ok {
			_, last := m.Update(msg)
			assert.Nil(t, last)
			break
		}
		_, nextCmd = m.Update(msg)
	}
}

func TestMonitorShowsLatestLines(t *testing.T) {
	m, store, _ := newTestModel(t)
	for i := 0; i < 80; i++ {
		store.Log(core.LevelInfo, "🔹", "old line")
	}
	store.Log(core.LevelError, "❌", "newest failure")

	m = send(t, m, eventMsg{})
	assert.Contains(t, m.View(), "newest failure")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "hel..", truncate("hello!", 5))
	assert.Equal(t, "", truncate("hello", 0))
}
