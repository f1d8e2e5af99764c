// Package parser turns loosely structured model output into a validated action.
//
// Model answers arrive as bare JSON, JSON inside a markdown fence, or JSON buried
// in prose. Parse runs the extraction stages in that order and stops at the first
// stage that yields a JSON object; the object is then validated as an action.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/NethermindEth/chaosfeed/core"
)

// Stage names the extraction step that produced the JSON object
type Stage string

const (
	StageRaw      Stage = "raw"
	StageFenced   Stage = "fenced"
	StageEmbedded Stage = "embedded"
)

// Status tags the variant held by a Result
type Status int

const (
	// Parsed: a valid action was extracted.
	Parsed Status = iota
	// Invalid: a JSON object was found but it is not a usable action.
	Invalid
	// Unparseable: no stage produced a JSON object.
	Unparseable
)

func (s Status) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Invalid:
		return "invalid"
	case Unparseable:
		return "unparseable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the tagged outcome of Parse. Raw always holds the original text.
type Result struct {
	Status Status
	Action core.Action
	Stage  Stage
	JSON   string
	Reason string
	Raw    string
}

// OK reports whether the result carries an action to apply.
func (r Result) OK() bool {
	return r.Status == Parsed
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)\\s*```")

type stage struct {
	name    Stage
	extract func(string) (string, bool)
}

var stages = []stage{
	{StageRaw, func(s string) (string, bool) { return s, s != "" }},
	{StageFenced, extractFenced},
	{StageEmbedded, firstObject},
}

// ErrNoObject is reported when no extraction stage finds a JSON object.
var ErrNoObject = errors.New("no JSON object found")

// Object is a decoded JSON object together with the stage that found it.
type Object struct {
	Fields map[string]json.RawMessage
	JSON   string
	Stage  Stage
}

// Extract runs the extraction stages over raw and returns the first candidate
// that decodes to a JSON object. When every candidate fails to decode the last
// decode error is returned; ErrNoObject when there was no candidate at all.
func Extract(raw string) (Object, error) {
	text := strings.TrimSpace(raw)
	var lastErr error

	for _, st := range stages {
		candidate, ok := st.extract(text)
		if !ok {
			continue
		}
		fields, err := decodeObject(candidate)
		if err != nil {
			if st.name != StageRaw {
				lastErr = err
			}
			continue
		}
		return Object{Fields: fields, JSON: candidate, Stage: st.name}, nil
	}

	if lastErr != nil {
		return Object{}, lastErr
	}
	return Object{}, ErrNoObject
}

// Parse extracts and validates an action from raw model output.
func Parse(raw string) Result {
	obj, err := Extract(raw)
	if err != nil {
		return Result{Status: Unparseable, Reason: err.Error(), Raw: raw}
	}
	action, err := validate(obj.Fields)
	if err != nil {
		return Result{Status: Invalid, Stage: obj.Stage, JSON: obj.JSON, Reason: err.Error(), Raw: raw}
	}
	return Result{Status: Parsed, Action: action, Stage: obj.Stage, JSON: obj.JSON, Raw: raw}
}

func extractFenced(s string) (string, bool) {
	m := fencePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func decodeObject(s string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return obj, nil
}

func validate(obj map[string]json.RawMessage) (core.Action, error) {
	kind, _ := StringField(obj, "action")
	content, hasContent := StringField(obj, "content")
	target, hasTarget, err := targetField(obj)
	if err != nil {
		return core.Action{}, err
	}

	switch core.ActionKind(strings.ToLower(strings.TrimSpace(kind))) {
	case core.ActionPost:
		if !hasContent {
			return core.Action{}, fmt.Errorf("post requires content")
		}
		return core.Action{Kind: core.ActionPost, Content: content}, nil
	case core.ActionReply:
		if !hasContent || !hasTarget {
			return core.Action{}, fmt.Errorf("reply requires content and targetId")
		}
		return core.Action{Kind: core.ActionReply, Content: content, TargetID: target}, nil
	case core.ActionLike:
		if !hasTarget {
			return core.Action{}, fmt.Errorf("like requires targetId")
		}
		return core.Action{Kind: core.ActionLike, TargetID: target}, nil
	case "":
		return core.Action{}, fmt.Errorf("missing action field")
	default:
		return core.Action{}, fmt.Errorf("unknown action %q", kind)
	}
}

// StringField returns the non-blank string stored under key.
func StringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// targetField coerces targetId to a post id. Numbers and numeric strings are
// accepted; null, false, 0 and "" count as absent. Anything else that is not a
// positive integer is an error.
func targetField(obj map[string]json.RawMessage) (int64, bool, error) {
	raw, ok := obj["targetId"]
	if !ok {
		return 0, false, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, err
	}

	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case bool:
		if !t {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("targetId must be a number, got true")
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimPrefix(s, "#"), 64)
		if err != nil {
			return 0, false, fmt.Errorf("targetId %q is not a number", t)
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("targetId must be a number, got %s", string(raw))
	}

	if f == 0 {
		return 0, false, nil
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt64/2 {
		return 0, false, fmt.Errorf("targetId %v is not a post id", f)
	}
	return int64(f), true, nil
}
