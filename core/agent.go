package core

import (
	"strings"
)

// Agent represents a simulated persona that authors posts, replies and likes
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Bio   string `json:"bio"`
	Color string `json:"color"`
}

// UnknownAuthorColor is used for posts whose author no longer exists
const UnknownAuthorColor = "#D7DADC"

// Palette holds the display colors handed out to agents in creation order
var Palette = []string{
	"#FF4500", "#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2", "#F8B739",
}

// PaletteColor returns the color for the n-th created agent.
func PaletteColor(n int) string {
	if n < 0 {
		n = -n
	}
	return Palette[n%len(Palette)]
}

// AgentSeed is a name/bio pair used to create agents in bulk (e.g. from profiles.json).
type AgentSeed struct {
	Name string `json:"name" yaml:"name"`
	Bio  string `json:"bio" yaml:"bio"`
}

// ValidateSeed rejects empty names and bios. Content is otherwise unchecked.
func ValidateSeed(name, bio string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(bio) == "" {
		return ErrEmptyBio
	}
	return nil
}

// FindAgent returns the first agent with the given name.
func FindAgent(agents []Agent, name string) (Agent, bool) {
	for _, a := range agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// AuthorColor resolves the display color of an author name.
func AuthorColor(agents []Agent, name string) string {
	if a, ok := FindAgent(agents, name); ok {
		return a.Color
	}
	return UnknownAuthorColor
}
