// Package scripting provides JavaScript evaluation for condition expressions.
package scripting

import "time"

// ExpressionEvaluator evaluates a boolean-ish expression against a run context
type ExpressionEvaluator interface {
	// Evaluate runs an expression with the given context and returns its result
	Evaluate(expression string, context map[string]interface{}) (interface{}, error)

	// EvaluateBool runs an expression and coerces the result to a boolean
	EvaluateBool(expression string, context map[string]interface{}) (bool, error)
}

// EvaluatorOptions configures an evaluator
type EvaluatorOptions struct {
	// Timeout bounds a single evaluation; zero means the default (1s)
	Timeout time.Duration
}
