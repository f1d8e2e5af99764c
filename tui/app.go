// Package tui is the terminal rendition of the feed page: roster on the left,
// threads in the middle, recent activity and the system monitor on the right.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/insights"
	"github.com/NethermindEth/chaosfeed/profiles"
)

// Engine is the part of the turn loop the UI drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

type mode int

const (
	modeNormal mode = iota
	modeTopic
	modeName
	modeBio
)

// eventMsg wraps a store event; the model re-reads a snapshot on each one.
type eventMsg core.Event

type eventsClosedMsg struct{}

type Model struct {
	ctx          context.Context
	store        *core.Store
	engine       Engine
	events       <-chan core.Event
	profilesPath string

	state    core.State
	insights insights.ForumInsights

	cursor     int // selected agent
	feedOffset int // scroll offset in feed lines
	width      int
	height     int

	mode      mode
	input     textinput.Model
	draftName string
	status    string
	statusErr bool
	quitting  bool
}

// NewModel builds the UI. Loops are started with ctx; events is usually a
// store subscription and may be nil.
func NewModel(ctx context.Context, store *core.Store, engine Engine, events <-chan core.Event, profilesPath string) Model {
	in := textinput.New()
	in.CharLimit = 500

	m := Model{
		ctx:          ctx,
		store:        store,
		engine:       engine,
		events:       events,
		profilesPath: profilesPath,
		input:        in,
		width:        120,
		height:       30,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan core.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) refresh() {
	m.state = m.store.Snapshot()
	m.insights = insights.Summarize(m.state)
	if m.cursor >= len(m.state.Agents) {
		m.cursor = max(0, len(m.state.Agents)-1)
	}
}

func (m *Model) setStatus(msg string) {
	m.status, m.statusErr = msg, false
}

func (m *Model) setError(err error) {
	m.status, m.statusErr = err.Error(), true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 40)
		m.height = max(msg.Height, 10)
		return m, nil

	case eventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeNormal {
			return m.updateNormal(msg)
		}
		return m.updateInput(msg)
	}
	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s":
		if m.engine.Running() {
			if err := m.engine.Stop(); err != nil {
				m.setError(err)
			} else {
				m.setStatus("Stopping after the current turn")
			}
		} else if err := m.engine.Start(m.ctx); err != nil {
			m.setError(err)
		} else {
			m.setStatus("Simulation started")
		}

	case "t":
		return m.beginInput(modeTopic, m.state.Topic)

	case "a":
		return m.beginInput(modeName, "Agent name")

	case "d":
		seeds, source, err := profiles.LoadOrDefaults(m.profilesPath)
		if err == nil {
			err = m.store.LoadAgents(seeds, source)
		}
		if err != nil {
			m.setError(err)
		} else {
			m.setStatus(fmt.Sprintf("Loaded %d agents", len(seeds)))
		}

	case "x", "delete":
		if len(m.state.Agents) == 0 {
			break
		}
		a := m.state.Agents[m.cursor]
		if err := m.store.DeleteAgent(a.ID); err != nil {
			m.setError(err)
		} else {
			m.setStatus(fmt.Sprintf("Deleted %s", a.Name))
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.state.Agents)-1 {
			m.cursor++
		}

	case "pgup":
		m.feedOffset = max(0, m.feedOffset-m.bodyHeight()/2)

	case "pgdown":
		m.feedOffset += m.bodyHeight() / 2

	case "home", "g":
		m.feedOffset = 0
	}

	m.refresh()
	return m, nil
}

func (m Model) beginInput(md mode, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.input.Reset()
	m.input.Placeholder = placeholder
	return m, m.input.Focus()
}

func (m Model) endInput() Model {
	m.mode = modeNormal
	m.input.Blur()
	m.input.Reset()
	return m
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.draftName = ""
		return m.endInput(), nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.mode {
		case modeTopic:
			// an empty entry keeps the current topic
			if value != "" {
				if err := m.store.SetTopic(value); err != nil {
					m.setError(err)
				} else {
					m.setStatus("Topic set")
				}
			}
			m = m.endInput()

		case modeName:
			if value == "" {
				m.setError(core.ErrEmptyName)
				return m, nil
			}
			m.draftName = value
			m.input.Reset()
			m.input.Placeholder = "Bio for " + value
			m.mode = modeBio
			return m, nil

		case modeBio:
			a, err := m.store.AddAgent(m.draftName, value)
			if errors.Is(err, core.ErrEmptyBio) {
				m.setError(err)
				return m, nil
			}
			if err != nil {
				m.setError(err)
			} else {
				m.setStatus(fmt.Sprintf("Added %s", a.Name))
			}
			m.draftName = ""
			m = m.endInput()
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Quitting reports whether the user asked to leave.
func (m Model) Quitting() bool {
	return m.quitting
}
