package scripting

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

const defaultEvalTimeout = 1 * time.Second

// JSExpressionEvaluator evaluates JavaScript expressions with goja.
// The run context is exposed as `context` plus each top-level key as a
// global, so both `context.lead.status` and `lead.status` work.
type JSExpressionEvaluator struct {
	timeout time.Duration
}

// NewJSExpressionEvaluator creates a new evaluator
func NewJSExpressionEvaluator(opts EvaluatorOptions) *JSExpressionEvaluator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultEvalTimeout
	}
	return &JSExpressionEvaluator{timeout: timeout}
}

// Evaluate runs an expression with the given context
func (e *JSExpressionEvaluator) Evaluate(expression string, context map[string]interface{}) (interface{}, error) {
	vm := goja.New()

	if err := vm.Set("context", context); err != nil {
		return nil, fmt.Errorf("failed to set context: %w", err)
	}
	for key, value := range context {
		if err := vm.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	// Interrupt runaway expressions; goja has no preemption of its own
	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt("expression timed out")
	})
	defer timer.Stop()

	value, err := vm.RunString(expression)
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return nil, fmt.Errorf("expression timed out after %s", e.timeout)
		}
		return nil, fmt.Errorf("expression error: %w", err)
	}

	return value.Export(), nil
}

// EvaluateBool runs an expression and coerces the result to a boolean
// using JavaScript truthiness
func (e *JSExpressionEvaluator) EvaluateBool(expression string, context map[string]interface{}) (bool, error) {
	result, err := e.Evaluate(expression, context)
	if err != nil {
		return false, err
	}

	switch v := result.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case string:
		return v != "", nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return true, nil
	}
}
