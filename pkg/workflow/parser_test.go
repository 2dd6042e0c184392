package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/progrev/pkg/domain/workflow"
)

const sampleDefinition = `
version: "1"
initial: draft
states:
  - code: draft
    display_name: Draft
  - code: review
    display_name: In Review
  - code: done
    display_name: Done
    terminal: true
transitions:
  - from: draft
    to: review
  - from: review
    to: done
    requires_reason: true
    guard: role == "supervisor"
  - from: review
    to: draft
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition))
	require.NoError(t, err)

	assert.Equal(t, workflow.StateCode("draft"), def.Initial)
	assert.Len(t, def.States, 3)
	assert.Len(t, def.Transitions, 3)

	done, ok := def.State("done")
	require.True(t, ok)
	assert.True(t, done.Terminal)

	edge, ok := def.Find("review", "done")
	require.True(t, ok)
	assert.True(t, edge.RequiresReason)
	assert.Equal(t, `role == "supervisor"`, edge.Guard)
}

func TestParseDefaultsDisplayName(t *testing.T) {
	def, err := Parse([]byte("version: \"1\"\ninitial: a\nstates:\n  - code: a\n"))
	require.NoError(t, err)

	state, ok := def.State("a")
	require.True(t, ok)
	assert.Equal(t, "a", state.DisplayName)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty input", ""},
		{"not yaml", "{{{"},
		{"missing version", "initial: a\nstates:\n  - code: a\n"},
		{"missing initial", "version: \"1\"\nstates:\n  - code: a\n"},
		{"no states", "version: \"1\"\ninitial: a\n"},
		{"state without code", "version: \"1\"\ninitial: a\nstates:\n  - display_name: A\n"},
		{"transition missing endpoint", "version: \"1\"\ninitial: a\nstates:\n  - code: a\ntransitions:\n  - from: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinition), 0644))

	def, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCode("draft"), def.Initial)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateAgainstSchema(t *testing.T) {
	assert.NoError(t, ValidateAgainstSchema([]byte(sampleDefinition)))
}

func TestValidateAgainstSchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown top-level field", "version: \"1\"\ninitial: a\nstates:\n  - code: a\nextra: true\n"},
		{"bad state code", "version: \"1\"\ninitial: a\nstates:\n  - code: \"Not Valid\"\n"},
		{"unknown state field", "version: \"1\"\ninitial: a\nstates:\n  - code: a\n    color: red\n"},
		{"missing initial", "version: \"1\"\nstates:\n  - code: a\n"},
		{"empty states", "version: \"1\"\ninitial: a\nstates: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateAgainstSchema([]byte(tt.yaml)))
		})
	}
}

func TestNewDefinitionIntegrity(t *testing.T) {
	states := []workflow.State{
		{Code: "a", DisplayName: "A"},
		{Code: "b", DisplayName: "B"},
		{Code: "end", DisplayName: "End", Terminal: true},
	}

	tests := []struct {
		name        string
		initial     workflow.StateCode
		states      []workflow.State
		transitions []workflow.Transition
		wantErr     string
	}{
		{
			name:    "undeclared initial",
			initial: "ghost",
			states:  states,
			wantErr: "is not declared",
		},
		{
			name:    "duplicate state",
			initial: "a",
			states:  append(states, workflow.State{Code: "a"}),
			wantErr: "duplicate state",
		},
		{
			name:        "unknown from state",
			initial:     "a",
			states:      states,
			transitions: []workflow.Transition{{From: "ghost", To: "b"}},
			wantErr:     "unknown state",
		},
		{
			name:        "unknown to state",
			initial:     "a",
			states:      states,
			transitions: []workflow.Transition{{From: "a", To: "ghost"}},
			wantErr:     "unknown state",
		},
		{
			name:        "edge leaving terminal state",
			initial:     "a",
			states:      states,
			transitions: []workflow.Transition{{From: "end", To: "a"}},
			wantErr:     "terminal state",
		},
		{
			name:        "duplicate edge",
			initial:     "a",
			states:      states,
			transitions: []workflow.Transition{{From: "a", To: "b"}, {From: "a", To: "b", RequiresReason: true}},
			wantErr:     "duplicate transition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefinition(tt.initial, tt.states, tt.transitions)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultDefinition(t *testing.T) {
	def := Default()

	assert.Equal(t, workflow.StateCode("draft"), def.Initial)

	archived, ok := def.State("archived")
	require.True(t, ok)
	assert.True(t, archived.Terminal)
	assert.Empty(t, def.Outbound("archived"))

	edge, ok := def.Find("review", "rejected")
	require.True(t, ok)
	assert.True(t, edge.RequiresReason)
}
