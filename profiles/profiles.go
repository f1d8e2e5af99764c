// Package profiles manages the default-agents list loaded at startup.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/NethermindEth/chaosfeed/core"
)

// DefaultPath is the profiles file looked up next to the binary's working dir.
const DefaultPath = "profiles.json"

// Load reads a JSON array of {name, bio}. A missing file yields no profiles
// and no error. Entries with an empty name or bio are rejected.
func Load(path string) ([]core.AgentSeed, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var seeds []core.AgentSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, s := range seeds {
		if err := core.ValidateSeed(s.Name, s.Bio); err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", path, i, err)
		}
	}
	return seeds, nil
}

// BuiltinSource names the built-in personas in monitor lines.
const BuiltinSource = "built-in profiles"

// LoadOrDefaults reads path and falls back to the built-in personas when the
// file does not exist or is empty. It also returns where the seeds came from.
func LoadOrDefaults(path string) ([]core.AgentSeed, string, error) {
	seeds, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	if len(seeds) == 0 {
		return Defaults(), BuiltinSource, nil
	}
	return seeds, path, nil
}

// Write saves profiles as an indented JSON array.
func Write(path string, seeds []core.AgentSeed) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profiles dir: %w", err)
		}
	}
	if seeds == nil {
		seeds = []core.AgentSeed{}
	}
	data, err := json.MarshalIndent(seeds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Defaults returns the built-in personas written by `profiles init`.
func Defaults() []core.AgentSeed {
	return []core.AgentSeed{
		{
			Name: "Chaotic Carl",
			Bio:  "Unpredictable, emotional and dramatic. Changes his mind mid-sentence and loves a hot take.",
		},
		{
			Name: "Cautious Claire",
			Bio:  "Honest, diligent and careful. Asks for sources and distrusts anything that sounds too good.",
		},
		{
			Name: "Innovative Ivy",
			Bio:  "Creative risk-taker who pitches experimental ideas and gets bored by the status quo.",
		},
		{
			Name: "Dramatic Dante",
			Bio:  "Theatrical and passionate. Every small disagreement is an epic struggle worth narrating.",
		},
		{
			Name: "Skeptical Sam",
			Bio:  "Questions everything, analytical to a fault, and demands strong evidence before agreeing.",
		},
		{
			Name: "Efficient Eve",
			Bio:  "Organized and practical. Summarizes long threads and nudges people toward a conclusion.",
		},
	}
}
