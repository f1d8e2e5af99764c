package core

import "time"

// SelectionMethod records how the acting agent was chosen
type SelectionMethod string

const (
	SelectRandom SelectionMethod = "random"
	SelectModel  SelectionMethod = "model"
)

// Outcome is what happened to the model's answer in a turn
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeUnparseable  Outcome = "unparseable"
	OutcomeBackendError Outcome = "backend_error"
)

// SelectorExchange is the agent-selection half of a turn.
type SelectorExchange struct {
	Method        SelectionMethod `json:"method"`
	Prompt        string          `json:"prompt"`
	Response      string          `json:"response"`
	SelectedAgent string          `json:"selectedAgent"`
}

// ActionExchange is the prompt sent for the acting agent and the raw answer.
type ActionExchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Agent    string `json:"agent"`
}

// IterationRecord is the audit entry for one turn. The log is append-only and
// exported in turn order.
type IterationRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Iteration int              `json:"iteration"`
	Selector  SelectorExchange `json:"selector"`
	Action    ActionExchange   `json:"action"`
	Outcome   Outcome          `json:"outcome"`
	Error     string           `json:"error,omitempty"`
}
