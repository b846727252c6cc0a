package verify

import (
	"encoding/json"
	"fmt"
	"strconv"

	"viewflow/pkg/models"
)

// EvaluateCondition applies one declared condition to a result row. A
// missing column is reported as a condition failure, never a crash. The
// returned message is the literal diagnostic an operator reads.
func EvaluateCondition(cond models.TestCondition, row map[string]interface{}) (bool, string) {
	actual, ok := row[cond.Column]
	if !ok {
		return false, fmt.Sprintf("Column '%s' not found in results", cond.Column)
	}

	var passed bool
	switch cond.Operator {
	case "=":
		passed = looseEqual(actual, cond.Value)
	case "!=":
		passed = !looseEqual(actual, cond.Value)
	case ">", ">=", "<", "<=":
		cmp, err := compareOrdered(actual, cond.Value)
		if err != nil {
			return false, fmt.Sprintf("Error evaluating condition: %v", err)
		}
		switch cond.Operator {
		case ">":
			passed = cmp > 0
		case ">=":
			passed = cmp >= 0
		case "<":
			passed = cmp < 0
		case "<=":
			passed = cmp <= 0
		}
	case "in":
		members, ok := cond.Value.([]interface{})
		if !ok {
			return false, fmt.Sprintf("Error evaluating condition: operator 'in' requires a collection value, got %T", cond.Value)
		}
		passed = contains(members, actual)
	case "not_in":
		members, ok := cond.Value.([]interface{})
		if !ok {
			return false, fmt.Sprintf("Error evaluating condition: operator 'not_in' requires a collection value, got %T", cond.Value)
		}
		passed = !contains(members, actual)
	default:
		return false, fmt.Sprintf("Unknown operator: %s", cond.Operator)
	}

	if !passed {
		return false, fmt.Sprintf("%s. Expected %s %s %v, got %v",
			cond.ErrorMessage, cond.Column, cond.Operator, cond.Value, actual)
	}
	return true, ""
}

func contains(members []interface{}, actual interface{}) bool {
	for _, member := range members {
		if looseEqual(actual, member) {
			return true
		}
	}
	return false
}

// looseEqual compares values the way result rows meet expectations in
// practice: JSON decodes expected numbers to float64 while the executor
// may hand back int64 or numeric strings, so numeric values compare
// numerically and everything else by string form.
func looseEqual(a, b interface{}) bool {
	fa, aOK := toFloat(a)
	fb, bOK := toFloat(b)
	if aOK && bOK {
		return fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b interface{}) (int, error) {
	fa, aOK := toFloat(a)
	fb, bOK := toFloat(b)
	if aOK && bOK {
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}

	sa, aIsString := a.(string)
	sb, bIsString := b.(string)
	if aIsString && bIsString {
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
