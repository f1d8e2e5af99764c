package core

import "strings"

// State is the whole application state. It is only changed through Reduce.
type State struct {
	Agents        []Agent           `json:"agents"`
	Feed          Feed              `json:"feed"`
	Topic         string            `json:"topic"`
	Running       bool              `json:"running"`
	LastActor     string            `json:"lastActor,omitempty"`
	Logs          []LogEntry        `json:"logs"`
	Notifications []Notification    `json:"notifications"`
	Iterations    []IterationRecord `json:"iterations"`
}

// NewState returns the initial state for a topic. Surrounding blanks are trimmed.
func NewState(topic string) State {
	return State{
		Feed:          NewFeed(),
		Topic:         strings.TrimSpace(topic),
		Agents:        []Agent{},
		Logs:          []LogEntry{},
		Notifications: []Notification{},
		Iterations:    []IterationRecord{},
	}
}

// Clone returns a deep copy that shares no slices with s.
func (s State) Clone() State {
	out := s
	out.Agents = append([]Agent{}, s.Agents...)
	out.Feed = s.Feed.clone()
	out.Logs = append([]LogEntry{}, s.Logs...)
	out.Notifications = append([]Notification{}, s.Notifications...)
	out.Iterations = append([]IterationRecord{}, s.Iterations...)
	return out
}

// FeedText is the serialized feed handed to the model.
func (s State) FeedText() string {
	return s.Feed.Text(s.Agents)
}

// Agent looks an agent up by id.
func (s State) Agent(id string) (Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}
