package core

import "fmt"

// ActionKind is the verb an agent chose for its turn
type ActionKind string

const (
	ActionPost  ActionKind = "post"
	ActionReply ActionKind = "reply"
	ActionLike  ActionKind = "like"
)

// Action is a validated agent decision. TargetID is set for replies and likes.
type Action struct {
	Kind     ActionKind `json:"action"`
	Content  string     `json:"content,omitempty"`
	TargetID int64      `json:"targetId,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionPost:
		return fmt.Sprintf("post(%q)", Truncate(a.Content, 30))
	case ActionReply:
		return fmt.Sprintf("reply(%d, %q)", a.TargetID, Truncate(a.Content, 30))
	case ActionLike:
		return fmt.Sprintf("like(%d)", a.TargetID)
	default:
		return string(a.Kind)
	}
}

// Truncate shortens s to at most n runes, appending "..." when something was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
