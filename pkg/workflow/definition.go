// Package workflow implements the entity-agnostic workflow engine: a
// finite-state machine over (entityType, entityId) pairs validated against
// a configuration-loaded transition graph, with an append-only audit
// history.
package workflow

import (
	"fmt"

	"github.com/dshills/progrev/pkg/domain/workflow"
)

// Definition is the loaded workflow graph: the state catalog, the full set
// of legal transitions, and the initial state for new entities. Loaded once
// and read-only at runtime.
type Definition struct {
	Initial     workflow.StateCode
	States      []workflow.State
	Transitions []workflow.Transition

	byCode   map[workflow.StateCode]workflow.State
	outbound map[workflow.StateCode][]workflow.Transition
}

// NewDefinition builds a Definition and checks its referential integrity:
// no duplicate states or edges, every edge endpoint must name a known
// state, no edge may leave a terminal state, and the initial state must
// exist.
func NewDefinition(initial workflow.StateCode, states []workflow.State, transitions []workflow.Transition) (*Definition, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("definition must declare at least one state")
	}

	byCode := make(map[workflow.StateCode]workflow.State, len(states))
	for _, s := range states {
		if s.Code == "" {
			return nil, fmt.Errorf("state code cannot be empty")
		}
		if _, dup := byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate state: %s", s.Code)
		}
		byCode[s.Code] = s
	}

	if _, ok := byCode[initial]; !ok {
		return nil, fmt.Errorf("initial state %q is not declared", initial)
	}

	outbound := make(map[workflow.StateCode][]workflow.Transition)
	seen := make(map[[2]workflow.StateCode]bool, len(transitions))
	for _, t := range transitions {
		if _, ok := byCode[t.From]; !ok {
			return nil, fmt.Errorf("transition from unknown state: %s", t.From)
		}
		if _, ok := byCode[t.To]; !ok {
			return nil, fmt.Errorf("transition to unknown state: %s", t.To)
		}
		if byCode[t.From].Terminal {
			return nil, fmt.Errorf("transition from terminal state: %s", t.From)
		}
		key := [2]workflow.StateCode{t.From, t.To}
		if seen[key] {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.To)
		}
		seen[key] = true
		outbound[t.From] = append(outbound[t.From], t)
	}

	return &Definition{
		Initial:     initial,
		States:      states,
		Transitions: transitions,
		byCode:      byCode,
		outbound:    outbound,
	}, nil
}

// State returns the state with the given code.
func (d *Definition) State(code workflow.StateCode) (workflow.State, bool) {
	s, ok := d.byCode[code]
	return s, ok
}

// Outbound returns every configured edge leaving the given state.
func (d *Definition) Outbound(code workflow.StateCode) []workflow.Transition {
	return d.outbound[code]
}

// Find returns the configured edge between two states, if any.
func (d *Definition) Find(from, to workflow.StateCode) (workflow.Transition, bool) {
	for _, t := range d.outbound[from] {
		if t.To == to {
			return t, true
		}
	}
	return workflow.Transition{}, false
}

// Default returns the built-in approval lifecycle used when no definition
// file is configured: draft, review, approved, released, rejected, and
// archived, with reasons required on every edge into rejected or archived.
func Default() *Definition {
	states := []workflow.State{
		{Code: "draft", DisplayName: "Draft", Description: "Being edited; not yet submitted"},
		{Code: "review", DisplayName: "In Review", Description: "Awaiting approval"},
		{Code: "approved", DisplayName: "Approved", Description: "Approved for release"},
		{Code: "released", DisplayName: "Released", Description: "Active on the shop floor"},
		{Code: "rejected", DisplayName: "Rejected", Description: "Sent back with a reason"},
		{Code: "archived", DisplayName: "Archived", Description: "Retired from use", Terminal: true},
	}
	transitions := []workflow.Transition{
		{From: "draft", To: "review"},
		{From: "review", To: "approved"},
		{From: "review", To: "rejected", RequiresReason: true},
		{From: "approved", To: "released"},
		{From: "approved", To: "rejected", RequiresReason: true},
		{From: "released", To: "archived", RequiresReason: true},
		{From: "rejected", To: "draft"},
		{From: "draft", To: "archived", RequiresReason: true},
	}

	def, err := NewDefinition("draft", states, transitions)
	if err != nil {
		// The built-in definition is fixed; a failure here is a programming error.
		panic(fmt.Sprintf("invalid default workflow definition: %v", err))
	}
	return def
}
