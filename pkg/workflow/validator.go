package workflow

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var definitionSchema []byte

// ValidateAgainstSchema validates definition YAML bytes against the
// embedded JSON schema. This catches structural problems (unknown fields,
// bad state codes) before NewDefinition checks graph semantics.
func ValidateAgainstSchema(yamlBytes []byte) error {
	if len(yamlBytes) == 0 {
		return errors.New("empty YAML input")
	}

	// gojsonschema can validate Go data structures directly, so parse the
	// YAML into a generic document first.
	var doc interface{}
	if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(definitionSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("definition failed schema validation:\n  %s", strings.Join(msgs, "\n  "))
	}

	return nil
}
