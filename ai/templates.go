package ai

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/NethermindEth/chaosfeed/core"
)

// DefaultTopic stands in for an empty discussion topic.
const DefaultTopic = "general discussion"

const defaultActionTemplate = `You are {name}, a user of an online discussion forum.
About you: {bio}

The forum is discussing: {topic}

Here is the current feed. Each line is [post id] author (color): content [Likes: n], and replies
say which post they answer.
{feed}

Stay in character and choose exactly one action:
- write a new post: {"action": "post", "content": "<your post>"}
- reply to a post: {"action": "reply", "content": "<your reply>", "targetId": <post id>}
- like a post: {"action": "like", "targetId": <post id>}

Keep posts short and conversational. Respond with the JSON object only.`

const defaultSelectorTemplate = `You are moderating an online discussion about: {topic}

These people are available to speak next:
{agents}

Here is the current feed:
{feed}

Pick the person whose voice would make the conversation most interesting right now.
Respond with a JSON object: {"agent": "<name exactly as listed>", "reason": "<one sentence>"}`

// Templates holds the two prompt templates.
type Templates struct {
	Action   string
	Selector string
}

// DefaultTemplates returns the built-in prompts.
func DefaultTemplates() Templates {
	return Templates{Action: defaultActionTemplate, Selector: defaultSelectorTemplate}
}

// TemplateFiles points at the template files on disk. Load reads them on every
// call, so edits take effect on the next turn.
type TemplateFiles struct {
	ActionPath   string
	SelectorPath string
}

// Load reads both templates. A missing or unset file falls back to the
// built-in default; any other read error is returned.
func (f TemplateFiles) Load() (Templates, error) {
	def := DefaultTemplates()
	action, err := readTemplate(f.ActionPath, def.Action)
	if err != nil {
		return def, err
	}
	selector, err := readTemplate(f.SelectorPath, def.Selector)
	if err != nil {
		return def, err
	}
	return Templates{Action: action, Selector: selector}, nil
}

func readTemplate(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fallback, nil
	}
	return string(data), nil
}

// WriteDefaults writes the built-in templates to the configured paths, leaving
// existing files alone.
func (f TemplateFiles) WriteDefaults() ([]string, error) {
	def := DefaultTemplates()
	var written []string
	for _, t := range []struct{ path, body string }{
		{f.ActionPath, def.Action},
		{f.SelectorPath, def.Selector},
	} {
		if t.path == "" {
			continue
		}
		if _, err := os.Stat(t.path); err == nil {
			continue
		}
		if err := os.WriteFile(t.path, []byte(t.body+"\n"), 0o644); err != nil {
			return written, fmt.Errorf("write template %s: %w", t.path, err)
		}
		written = append(written, t.path)
	}
	return written, nil
}

// RenderAction fills the action template for agent.
func (t Templates) RenderAction(agent core.Agent, topic, feed string) string {
	return strings.NewReplacer(
		"{name}", agent.Name,
		"{bio}", agent.Bio,
		"{topic}", topicOrDefault(topic),
		"{feed}", feed,
	).Replace(t.Action)
}

// RenderSelector fills the selector template with the eligible agents.
func (t Templates) RenderSelector(eligible []core.Agent, topic, feed string) string {
	return strings.NewReplacer(
		"{topic}", topicOrDefault(topic),
		"{agents}", Roster(eligible),
		"{feed}", feed,
	).Replace(t.Selector)
}

// Roster lists agents one per line as "- name: bio".
func Roster(agents []core.Agent) string {
	var b strings.Builder
	for i, a := range agents {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", a.Name, a.Bio)
	}
	return b.String()
}

func topicOrDefault(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return DefaultTopic
	}
	return topic
}
