package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/chaosfeed/core"
)

func TestParseFencedPost(t *testing.T) {
	res := Parse("```json\n{\"action\":\"post\",\"content\":\"hi\"}\n```")

	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, StageFenced, res.Stage)
	assert.Equal(t, core.Action{Kind: core.ActionPost, Content: "hi"}, res.Action)
}

func TestParseNoJSON(t *testing.T) {
	res := Parse("no json here")

	assert.False(t, res.OK())
	assert.Equal(t, Unparseable, res.Status)
	assert.Equal(t, "no json here", res.Raw)
	assert.Equal(t, "no JSON object found", res.Reason)
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		stage Stage
		want  core.Action
	}{
		{
			name:  "raw",
			input: `  {"action": "like", "targetId": 3}  `,
			stage: StageRaw,
			want:  core.Action{Kind: core.ActionLike, TargetID: 3},
		},
		{
			name:  "fence without language",
			input: "Here you go:\n```\n{\"action\":\"reply\",\"content\":\"nah\",\"targetId\":\"2\"}\n```\nthanks",
			stage: StageFenced,
			want:  core.Action{Kind: core.ActionReply, Content: "nah", TargetID: 2},
		},
		{
			name:  "embedded in prose",
			input: `I think I'll reply. {"action":"reply","content":"a {brace} inside","targetId":1} That's all.`,
			stage: StageEmbedded,
			want:  core.Action{Kind: core.ActionReply, Content: "a {brace} inside", TargetID: 1},
		},
		{
			name:  "nested object is kept whole",
			input: `prefix {"action":"post","content":"x","meta":{"mood":"angry"}} suffix`,
			stage: StageEmbedded,
			want:  core.Action{Kind: core.ActionPost, Content: "x"},
		},
		{
			name:  "action is case insensitive",
			input: `{"action":"POST","content":"loud"}`,
			stage: StageRaw,
			want:  core.Action{Kind: core.ActionPost, Content: "loud"},
		},
		{
			name:  "float target that is integral",
			input: `{"action":"like","targetId":4.0}`,
			stage: StageRaw,
			want:  core.Action{Kind: core.ActionLike, TargetID: 4},
		},
		{
			name:  "hash prefixed target",
			input: `{"action":"like","targetId":"#12"}`,
			stage: StageRaw,
			want:  core.Action{Kind: core.ActionLike, TargetID: 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.input)
			require.Equal(t, Parsed, res.Status, res.Reason)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, tt.want, res.Action)
		})
	}
}

func TestParseInvalidActions(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"missing action", `{"content":"hi"}`, "missing action field"},
		{"unknown action", `{"action":"dance"}`, `unknown action "dance"`},
		{"post without content", `{"action":"post"}`, "post requires content"},
		{"post with blank content", `{"action":"post","content":"   "}`, "post requires content"},
		{"reply without target", `{"action":"reply","content":"x"}`, "reply requires content and targetId"},
		{"reply without content", `{"action":"reply","targetId":1}`, "reply requires content and targetId"},
		{"like without target", `{"action":"like"}`, "like requires targetId"},
		{"like with zero target", `{"action":"like","targetId":0}`, "like requires targetId"},
		{"like with null target", `{"action":"like","targetId":null}`, "like requires targetId"},
		{"like with word target", `{"action":"like","targetId":"first"}`, `targetId "first" is not a number`},
		{"like with fractional target", `{"action":"like","targetId":1.5}`, "targetId 1.5 is not a post id"},
		{"like with negative target", `{"action":"like","targetId":-2}`, "targetId -2 is not a post id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.input)
			assert.Equal(t, Invalid, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.input, res.Raw)
		})
	}
}

func TestParseStopsAtFirstObject(t *testing.T) {
	// the fenced block is a JSON object, so a later valid object is not consulted
	res := Parse("```json\n{\"thought\":\"hmm\"}\n``` {\"action\":\"post\",\"content\":\"late\"}")
	assert.Equal(t, Invalid, res.Status)
	assert.Equal(t, StageFenced, res.Stage)
}

func TestParseBrokenJSONEverywhere(t *testing.T) {
	res := Parse("```json\n{\"action\": \"post\", \"content\": \n```")
	assert.Equal(t, Unparseable, res.Status)
	assert.NotEqual(t, "no JSON object found", res.Reason)
}

func TestParseNonObjectJSON(t *testing.T) {
	for _, input := range []string{`"post"`, `[1,2]`, `null`, `42`} {
		res := Parse(input)
		assert.Equal(t, Unparseable, res.Status, input)
	}
}

func TestFirstObject(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{`prefix {"key": "value"} suffix`, `{"key": "value"}`, true},
		{`{"a": {"b": "c"}} {"d": 1}`, `{"a": {"b": "c"}}`, true},
		{`{"key": "value with } inside"}`, `{"key": "value with } inside"}`, true},
		{`{"key": "escaped \" quote }"}`, `{"key": "escaped \" quote }"}`, true},
		{`} stray { "x": 1 }`, `{ "x": 1 }`, true},
		{`It's "quoted" prose {"a":1}`, `{"a":1}`, true},
		{`prefix { incomplete`, "", false},
		{`nothing`, "", false},
	}

	for _, tt := range tests {
		got, ok := firstObject(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestExtractReportsStage(t *testing.T) {
	obj, err := Extract("Sure! {\"agent\": \"Ada\"}")
	require.NoError(t, err)
	assert.Equal(t, StageEmbedded, obj.Stage)

	name, ok := StringField(obj.Fields, "agent")
	assert.True(t, ok)
	assert.Equal(t, "Ada", name)

	_, err = Extract("   ")
	assert.ErrorIs(t, err, ErrNoObject)
}
