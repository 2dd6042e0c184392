package workflow

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/progrev/pkg/domain/workflow"
	"gopkg.in/yaml.v3"
)

// yamlDefinition represents the YAML structure before conversion to domain
// objects
type yamlDefinition struct {
	Version     string           `yaml:"version"`
	Initial     string           `yaml:"initial"`
	States      []yamlState      `yaml:"states"`
	Transitions []yamlTransition `yaml:"transitions"`
}

// yamlState represents a workflow state in YAML
type yamlState struct {
	Code        string `yaml:"code"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description,omitempty"`
	Terminal    bool   `yaml:"terminal,omitempty"`
}

// yamlTransition represents a transition edge in YAML
type yamlTransition struct {
	From           string `yaml:"from"`
	To             string `yaml:"to"`
	RequiresReason bool   `yaml:"requires_reason,omitempty"`
	Guard          string `yaml:"guard,omitempty"`
}

// Parse parses a workflow definition from YAML bytes.
func Parse(yamlBytes []byte) (*Definition, error) {
	if len(yamlBytes) == 0 {
		return nil, errors.New("empty YAML input")
	}

	var yd yamlDefinition
	if err := yaml.Unmarshal(yamlBytes, &yd); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if yd.Version == "" {
		return nil, errors.New("missing required field: version")
	}
	if yd.Initial == "" {
		return nil, errors.New("missing required field: initial")
	}
	if len(yd.States) == 0 {
		return nil, errors.New("missing required field: states")
	}

	states := make([]workflow.State, 0, len(yd.States))
	for _, ys := range yd.States {
		if ys.Code == "" {
			return nil, errors.New("state missing required field: code")
		}
		displayName := ys.DisplayName
		if displayName == "" {
			displayName = ys.Code
		}
		states = append(states, workflow.State{
			Code:        workflow.StateCode(ys.Code),
			DisplayName: displayName,
			Description: ys.Description,
			Terminal:    ys.Terminal,
		})
	}

	transitions := make([]workflow.Transition, 0, len(yd.Transitions))
	for _, yt := range yd.Transitions {
		if yt.From == "" || yt.To == "" {
			return nil, errors.New("transition missing required field: from/to")
		}
		transitions = append(transitions, workflow.Transition{
			From:           workflow.StateCode(yt.From),
			To:             workflow.StateCode(yt.To),
			RequiresReason: yt.RequiresReason,
			Guard:          yt.Guard,
		})
	}

	return NewDefinition(workflow.StateCode(yd.Initial), states, transitions)
}

// ParseFile parses a workflow definition from a YAML file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return Parse(data)
}
