package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/utils"
)

// evalCondition decides which port a condition node takes. A field
// missing from the context counts as absent for the existence operators
// and fails every comparison; it never aborts the run.
func (e *executionEngine) evalCondition(cfg *graph.ConditionConfig, runCtx map[string]interface{}) bool {
	switch cfg.Operator {
	case graph.OpExists:
		return utils.HasNestedValue(runCtx, cfg.Field)
	case graph.OpNotExists:
		return !utils.HasNestedValue(runCtx, cfg.Field)
	case graph.OpOutsideBusinessHours:
		return outsideBusinessHours(cfg.BusinessHours, e.clock.Now())
	case graph.OpExpression:
		result, err := e.evaluator.EvaluateBool(cfg.Expression, runCtx)
		if err != nil {
			e.logger.Warn("condition expression failed, treating as false",
				logField("expression", cfg.Expression), logField("error", err.Error()))
			return false
		}
		return result
	}

	if !utils.HasNestedValue(runCtx, cfg.Field) {
		return false
	}
	actual := utils.GetNestedValue(runCtx, cfg.Field)

	switch cfg.Operator {
	case graph.OpEquals:
		return looseEquals(actual, cfg.Value)
	case graph.OpNotEquals:
		return !looseEquals(actual, cfg.Value)
	case graph.OpContains:
		return strings.Contains(stringify(actual), stringify(cfg.Value))
	case graph.OpNotContains:
		return !strings.Contains(stringify(actual), stringify(cfg.Value))
	case graph.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cfg.Value)
		return aok && bok && a > b
	case graph.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cfg.Value)
		return aok && bok && a < b
	}
	return false
}

// outsideBusinessHours reports whether now falls outside the window.
// The window defaults to Monday-Friday and UTC when days or timezone
// are unset.
func outsideBusinessHours(bh *graph.BusinessHours, now time.Time) bool {
	if bh == nil {
		return false
	}

	loc := time.UTC
	if bh.Timezone != "" {
		if l, err := time.LoadLocation(bh.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	days := bh.Days
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5}
	}
	dayOK := false
	for _, d := range days {
		if int(local.Weekday()) == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return true
	}

	start, err1 := parseClock(bh.Start)
	end, err2 := parseClock(bh.End)
	if err1 != nil || err2 != nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes < start || minutes >= end
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// looseEquals compares values the way JSON round trips them: numbers
// compare numerically, everything else by string form.
func looseEquals(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
