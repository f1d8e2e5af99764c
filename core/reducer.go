package core

import (
	"fmt"
	"time"
)

// EventType names a change that subscribers can react to
type EventType string

const (
	EventAgentsChanged     EventType = "AGENTS_CHANGED"
	EventFeedUpdated       EventType = "FEED_UPDATED"
	EventPostLiked         EventType = "POST_LIKED"
	EventLogAppended       EventType = "LOG_APPENDED"
	EventNotification      EventType = "NOTIFICATION"
	EventStateChanged      EventType = "STATE_CHANGED"
	EventIterationRecorded EventType = "ITERATION_RECORDED"
)

// Event is emitted by Reduce for every observable change.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Msg is a state transition request. The set of messages is closed.
type Msg interface {
	isMsg()
}

type (
	// AddAgent appends an agent; its color is picked from the palette.
	AddAgent struct {
		ID   string
		Name string
		Bio  string
		At   time.Time
	}

	// DeleteAgent removes an agent. Posts keep the name as a dangling author.
	DeleteAgent struct {
		ID string
		At time.Time
	}

	// LoadAgents replaces the roster, e.g. with the default profiles.
	LoadAgents struct {
		IDs    []string
		Seeds  []AgentSeed
		Source string
		At     time.Time
	}

	SetTopic struct {
		Topic string
	}

	// SetRunning flips the loop state. Starting clears the iteration log.
	SetRunning struct {
		Running bool
		At      time.Time
	}

	// OpeningPost seeds an empty feed on behalf of Author.
	OpeningPost struct {
		Author  string
		Content string
		At      time.Time
	}

	// ApplyAction applies a validated action for Agent.
	ApplyAction struct {
		Agent          string
		Action         Action
		NotificationID string
		At             time.Time
	}

	AppendLog struct {
		Entry LogEntry
	}

	RecordIteration struct {
		Record IterationRecord
	}

	// SetLastActor marks who acted last, so the next turn can exclude them.
	SetLastActor struct {
		Name string
	}
)

func (AddAgent) isMsg()        {}
func (DeleteAgent) isMsg()     {}
func (LoadAgents) isMsg()      {}
func (SetTopic) isMsg()        {}
func (SetRunning) isMsg()      {}
func (OpeningPost) isMsg()     {}
func (ApplyAction) isMsg()     {}
func (AppendLog) isMsg()       {}
func (RecordIteration) isMsg() {}
func (SetLastActor) isMsg()    {}

// Reduce computes the next state. It never modifies s; on error the returned
// state is s itself and no events are produced.
func Reduce(s State, msg Msg) (State, []Event, error) {
	next := s.Clone()
	r := reduction{state: &next}

	switch m := msg.(type) {
	case AddAgent:
		if err := ValidateSeed(m.Name, m.Bio); err != nil {
			return s, nil, err
		}
		next.Agents = append(next.Agents, Agent{
			ID:    m.ID,
			Name:  m.Name,
			Bio:   m.Bio,
			Color: PaletteColor(len(s.Agents)),
		})
		r.emit(EventAgentsChanged, next.Agents)
		r.log(m.At, LevelInfo, "✨", fmt.Sprintf("Agent %q created", m.Name))

	case DeleteAgent:
		idx := -1
		for i, a := range next.Agents {
			if a.ID == m.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return s, nil, fmt.Errorf("%w: %s", ErrAgentNotFound, m.ID)
		}
		next.Agents = append(next.Agents[:idx], next.Agents[idx+1:]...)
		r.emit(EventAgentsChanged, next.Agents)
		r.log(m.At, LevelInfo, "🗑️", "Agent deleted")

	case LoadAgents:
		if len(m.IDs) != len(m.Seeds) {
			return s, nil, fmt.Errorf("load agents: %d ids for %d seeds", len(m.IDs), len(m.Seeds))
		}
		agents := make([]Agent, 0, len(m.Seeds))
		for i, seed := range m.Seeds {
			if err := ValidateSeed(seed.Name, seed.Bio); err != nil {
				return s, nil, fmt.Errorf("profile %d: %w", i, err)
			}
			agents = append(agents, Agent{ID: m.IDs[i], Name: seed.Name, Bio: seed.Bio, Color: PaletteColor(i)})
		}
		next.Agents = agents
		r.emit(EventAgentsChanged, next.Agents)
		r.log(m.At, LevelInfo, "📥", fmt.Sprintf("Loaded %d default agents from %s", len(agents), m.Source))

	case SetTopic:
		if s.Running {
			return s, nil, ErrTopicLocked
		}
		next.Topic = m.Topic
		r.emit(EventStateChanged, summary(next))

	case SetRunning:
		if s.Running == m.Running {
			return s, nil, nil
		}
		next.Running = m.Running
		if m.Running {
			next.Iterations = []IterationRecord{}
			r.log(m.At, LevelInfo, "🚀", "Simulation started")
		} else {
			r.log(m.At, LevelInfo, "⏸️", "Simulation stopped")
		}
		r.emit(EventStateChanged, summary(next))

	case OpeningPost:
		if m.Content == "" {
			return s, nil, ErrEmptyContent
		}
		post := next.Feed.Add(m.Author, m.Content, nil, m.At)
		next.LastActor = m.Author
		r.emit(EventFeedUpdated, post)
		r.log(m.At, LevelInfo, "📮", fmt.Sprintf("%s made the first post", m.Author))

	case ApplyAction:
		if err := r.applyAction(m); err != nil {
			return s, nil, err
		}

	case AppendLog:
		r.appendLog(m.Entry)

	case RecordIteration:
		rec := m.Record
		rec.Iteration = len(next.Iterations) + 1
		next.Iterations = append(next.Iterations, rec)
		r.emit(EventIterationRecorded, rec)

	case SetLastActor:
		next.LastActor = m.Name

	default:
		return s, nil, fmt.Errorf("unhandled message %T", msg)
	}

	return next, r.events, nil
}

type reduction struct {
	state  *State
	events []Event
}

func (r *reduction) emit(t EventType, payload any) {
	r.events = append(r.events, Event{Type: t, Payload: payload})
}

func (r *reduction) log(at time.Time, level LogLevel, emoji, msg string) {
	r.appendLog(LogEntry{Timestamp: at, Level: level, Emoji: emoji, Message: msg})
}

func (r *reduction) appendLog(e LogEntry) {
	logs := append(r.state.Logs, e)
	if len(logs) > MaxLogs {
		logs = logs[len(logs)-MaxLogs:]
	}
	r.state.Logs = logs
	r.emit(EventLogAppended, e)
}

func (r *reduction) notify(id, agent, actionType string, at time.Time) {
	n := Notification{ID: id, AgentName: agent, ActionType: actionType, Timestamp: at}
	list := append([]Notification{n}, r.state.Notifications...)
	if len(list) > MaxNotifications {
		list = list[:MaxNotifications]
	}
	r.state.Notifications = list
	r.emit(EventNotification, n)
}

func (r *reduction) applyAction(m ApplyAction) error {
	s := r.state
	a := m.Action
	switch a.Kind {
	case ActionPost:
		if a.Content == "" {
			return ErrEmptyContent
		}
		post := s.Feed.Add(m.Agent, a.Content, nil, m.At)
		r.emit(EventFeedUpdated, post)
		r.log(m.At, LevelInfo, "📮", fmt.Sprintf("%s posted: %q", m.Agent, Truncate(a.Content, 50)))
		r.notify(m.NotificationID, m.Agent, "posted", m.At)

	case ActionReply:
		if a.Content == "" {
			return ErrEmptyContent
		}
		parent := a.TargetID
		post := s.Feed.Add(m.Agent, a.Content, &parent, m.At)
		r.emit(EventFeedUpdated, post)
		r.log(m.At, LevelInfo, "💬", fmt.Sprintf("%s replied to post %d", m.Agent, parent))
		r.notify(m.NotificationID, m.Agent, "replied", m.At)

	case ActionLike:
		post, ok := s.Feed.Like(a.TargetID)
		if !ok {
			r.log(m.At, LevelWarn, "👍", fmt.Sprintf("%s liked post %d, which does not exist", m.Agent, a.TargetID))
			break
		}
		r.emit(EventPostLiked, post)
		r.log(m.At, LevelInfo, "👍", fmt.Sprintf("%s liked post %d", m.Agent, a.TargetID))

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	s.LastActor = m.Agent
	return nil
}

// StateSummary is the payload of STATE_CHANGED events.
type StateSummary struct {
	Topic     string `json:"topic"`
	Running   bool   `json:"running"`
	Posts     int    `json:"posts"`
	Agents    int    `json:"agents"`
	LastActor string `json:"lastActor,omitempty"`
}

func summary(s State) StateSummary {
	return StateSummary{
		Topic:     s.Topic,
		Running:   s.Running,
		Posts:     s.Feed.Len(),
		Agents:    len(s.Agents),
		LastActor: s.LastActor,
	}
}
