package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipeboard/automation/pkg/graph"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func conditionEngine(now time.Time) *executionEngine {
	return New(Options{Clock: fixedClock{now: now}}).(*executionEngine)
}

func TestEvalConditionOperators(t *testing.T) {
	runCtx := map[string]interface{}{
		"lead": map[string]interface{}{
			"source": "website",
			"score":  float64(72),
			"notes":  "asked about premium plan",
		},
		"client": map[string]interface{}{
			"name": "Ana",
		},
	}

	tests := []struct {
		name string
		cfg  graph.ConditionConfig
		want bool
	}{
		{"equals match", graph.ConditionConfig{Field: "lead.source", Operator: graph.OpEquals, Value: "website"}, true},
		{"equals mismatch", graph.ConditionConfig{Field: "lead.source", Operator: graph.OpEquals, Value: "referral"}, false},
		{"equals numeric across types", graph.ConditionConfig{Field: "lead.score", Operator: graph.OpEquals, Value: 72}, true},
		{"equals numeric string form", graph.ConditionConfig{Field: "lead.score", Operator: graph.OpEquals, Value: "72"}, true},
		{"not_equals", graph.ConditionConfig{Field: "lead.source", Operator: graph.OpNotEquals, Value: "referral"}, true},
		{"contains", graph.ConditionConfig{Field: "lead.notes", Operator: graph.OpContains, Value: "premium"}, true},
		{"not_contains", graph.ConditionConfig{Field: "lead.notes", Operator: graph.OpNotContains, Value: "refund"}, true},
		{"greater_than true", graph.ConditionConfig{Field: "lead.score", Operator: graph.OpGreaterThan, Value: 50}, true},
		{"greater_than false", graph.ConditionConfig{Field: "lead.score", Operator: graph.OpGreaterThan, Value: 90}, false},
		{"greater_than non-numeric", graph.ConditionConfig{Field: "lead.source", Operator: graph.OpGreaterThan, Value: 10}, false},
		{"less_than", graph.ConditionConfig{Field: "lead.score", Operator: graph.OpLessThan, Value: 100}, true},
		{"exists", graph.ConditionConfig{Field: "client.name", Operator: graph.OpExists}, true},
		{"exists missing", graph.ConditionConfig{Field: "client.email", Operator: graph.OpExists}, false},
		{"not_exists", graph.ConditionConfig{Field: "client.email", Operator: graph.OpNotExists}, true},
		{"comparison on missing field", graph.ConditionConfig{Field: "client.email", Operator: graph.OpEquals, Value: ""}, false},
		{"expression true", graph.ConditionConfig{Operator: graph.OpExpression, Expression: "lead.score > 50 && client.name === 'Ana'"}, true},
		{"expression false", graph.ConditionConfig{Operator: graph.OpExpression, Expression: "lead.score > 90"}, false},
		{"expression error is false", graph.ConditionConfig{Operator: graph.OpExpression, Expression: "lead.score >"}, false},
	}

	e := conditionEngine(time.Now())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.evalCondition(&tt.cfg, runCtx))
		})
	}
}

func TestEvalConditionBusinessHours(t *testing.T) {
	window := &graph.BusinessHours{Start: "09:00", End: "18:00"}
	cfg := &graph.ConditionConfig{Operator: graph.OpOutsideBusinessHours, BusinessHours: window}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		// 2025-03-10 is a Monday
		{"weekday inside window", time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC), false},
		{"weekday before opening", time.Date(2025, 3, 10, 8, 59, 0, 0, time.UTC), true},
		{"weekday at closing", time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2025, 3, 15, 11, 30, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := conditionEngine(tt.now)
			assert.Equal(t, tt.want, e.evalCondition(cfg, nil))
		})
	}
}

func TestEvalConditionBusinessHoursCustomDays(t *testing.T) {
	cfg := &graph.ConditionConfig{
		Operator: graph.OpOutsideBusinessHours,
		BusinessHours: &graph.BusinessHours{
			Start: "10:00",
			End:   "14:00",
			Days:  []int{6}, // Saturday only
		},
	}

	saturday := time.Date(2025, 3, 15, 11, 0, 0, 0, time.UTC)
	monday := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)

	assert.False(t, conditionEngine(saturday).evalCondition(cfg, nil))
	assert.True(t, conditionEngine(monday).evalCondition(cfg, nil))
}

func TestEvalConditionNilBusinessHours(t *testing.T) {
	cfg := &graph.ConditionConfig{Operator: graph.OpOutsideBusinessHours}
	assert.False(t, conditionEngine(time.Now()).evalCondition(cfg, nil))
}
