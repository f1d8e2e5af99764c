package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/parser"
)

// ErrNoEligibleChoice means the selector answer did not name an eligible agent.
var ErrNoEligibleChoice = errors.New("selector did not name an eligible agent")

// Choice is the outcome of a model-driven selection. Prompt and Response are
// filled whenever the backend was asked, even if the answer was unusable.
type Choice struct {
	Agent    core.Agent
	Prompt   string
	Response string
}

// Selector asks the backend which agent should act next.
type Selector struct {
	backend Backend
}

func NewSelector(backend Backend) *Selector {
	return &Selector{backend: backend}
}

// Choose renders the selector template over eligible and matches the answer
// against the eligible names, case-insensitively.
func (s *Selector) Choose(ctx context.Context, tmpl Templates, eligible []core.Agent, topic, feed string) (Choice, error) {
	choice := Choice{Prompt: tmpl.RenderSelector(eligible, topic, feed)}
	if len(eligible) == 0 {
		return choice, ErrNoEligibleChoice
	}

	resp, err := s.backend.Complete(ctx, choice.Prompt, true)
	if err != nil {
		return choice, err
	}
	choice.Response = resp

	name := selectedName(resp)
	if name == "" {
		return choice, fmt.Errorf("%w: no agent field in %q", ErrNoEligibleChoice, core.Truncate(resp, 80))
	}
	for _, a := range eligible {
		if strings.EqualFold(strings.TrimSpace(a.Name), name) {
			choice.Agent = a
			return choice, nil
		}
	}
	return choice, fmt.Errorf("%w: %q", ErrNoEligibleChoice, name)
}

func selectedName(resp string) string {
	obj, err := parser.Extract(resp)
	if err != nil {
		// a bare name is an acceptable answer too
		return strings.Trim(strings.TrimSpace(resp), `"'.`)
	}
	for _, key := range []string{"agent", "name", "selectedAgent"} {
		if v, ok := parser.StringField(obj.Fields, key); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
