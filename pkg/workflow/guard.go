package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// GuardEvaluator evaluates transition guard expressions against a
// caller-supplied context map. Expressions are compiled once and cached;
// the expr runtime is sandboxed, so guards cannot perform side effects.
type GuardEvaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewGuardEvaluator creates a guard evaluator with an empty program cache.
func NewGuardEvaluator() *GuardEvaluator {
	return &GuardEvaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate returns the boolean result of a guard expression. An empty
// expression always passes. Guard context keys (e.g. "role", "entity_type")
// are available as top-level identifiers.
func (g *GuardEvaluator) Evaluate(expression string, guardCtx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}
	if guardCtx == nil {
		guardCtx = map[string]interface{}{}
	}

	program, err := g.compile(expression)
	if err != nil {
		return false, err
	}

	result, err := vm.Run(program, guardCtx)
	if err != nil {
		return false, fmt.Errorf("guard evaluation failed: %w", err)
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("guard %q did not evaluate to a boolean", expression)
	}
	return ok, nil
}

func (g *GuardEvaluator) compile(expression string) (*vm.Program, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if program, ok := g.cache[expression]; ok {
		return program, nil
	}

	// AllowUndefinedVariables keeps guards usable when a caller omits a
	// context key; comparisons against missing keys evaluate to false.
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid guard expression %q: %w", expression, err)
	}

	g.cache[expression] = program
	return program, nil
}
