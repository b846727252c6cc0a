package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"viewflow/pkg/models"
)

func TestEvaluateConditionEquality(t *testing.T) {
	cond := models.TestCondition{
		Column:       "row_count",
		Operator:     "=",
		Value:        float64(3),
		ErrorMessage: "Row count mismatch",
	}

	passed, message := EvaluateCondition(cond, map[string]interface{}{"row_count": int64(3)})
	assert.True(t, passed)
	assert.Empty(t, message)

	passed, message = EvaluateCondition(cond, map[string]interface{}{"row_count": int64(5)})
	assert.False(t, passed)
	assert.Equal(t, "Row count mismatch. Expected row_count = 3, got 5", message)
}

func TestEvaluateConditionMissingColumn(t *testing.T) {
	cond := models.TestCondition{Column: "revenue", Operator: "=", Value: 1}

	passed, message := EvaluateCondition(cond, map[string]interface{}{"row_count": 1})
	assert.False(t, passed)
	assert.Equal(t, "Column 'revenue' not found in results", message)
}

func TestEvaluateConditionOrdering(t *testing.T) {
	row := map[string]interface{}{"total": int64(42)}

	cases := []struct {
		operator string
		value    interface{}
		want     bool
	}{
		{">", float64(41), true},
		{">", float64(42), false},
		{">=", float64(42), true},
		{"<", float64(43), true},
		{"<=", float64(41), false},
	}
	for _, tc := range cases {
		cond := models.TestCondition{Column: "total", Operator: tc.operator, Value: tc.value, ErrorMessage: "out of range"}
		passed, _ := EvaluateCondition(cond, row)
		assert.Equal(t, tc.want, passed, "total %s %v", tc.operator, tc.value)
	}
}

func TestEvaluateConditionNumericStringCoercion(t *testing.T) {
	// Direct adapters decode numeric columns to strings.
	cond := models.TestCondition{Column: "total", Operator: ">=", Value: float64(10)}

	passed, _ := EvaluateCondition(cond, map[string]interface{}{"total": "12.5"})
	assert.True(t, passed)
}

func TestEvaluateConditionStringOrdering(t *testing.T) {
	cond := models.TestCondition{Column: "region", Operator: "<", Value: "emea", ErrorMessage: "bad region"}

	passed, _ := EvaluateCondition(cond, map[string]interface{}{"region": "amer"})
	assert.True(t, passed)
}

func TestEvaluateConditionUnorderableTypes(t *testing.T) {
	cond := models.TestCondition{Column: "flag", Operator: ">", Value: "x"}

	passed, message := EvaluateCondition(cond, map[string]interface{}{"flag": true})
	assert.False(t, passed)
	assert.Contains(t, message, "Error evaluating condition")
}

func TestEvaluateConditionMembership(t *testing.T) {
	cond := models.TestCondition{
		Column:       "status",
		Operator:     "in",
		Value:        []interface{}{"active", "pending"},
		ErrorMessage: "unexpected status",
	}

	passed, _ := EvaluateCondition(cond, map[string]interface{}{"status": "active"})
	assert.True(t, passed)

	passed, message := EvaluateCondition(cond, map[string]interface{}{"status": "closed"})
	assert.False(t, passed)
	assert.Contains(t, message, "unexpected status. Expected status in")

	cond.Operator = "not_in"
	passed, _ = EvaluateCondition(cond, map[string]interface{}{"status": "closed"})
	assert.True(t, passed)
}

func TestEvaluateConditionMembershipRequiresCollection(t *testing.T) {
	cond := models.TestCondition{Column: "status", Operator: "in", Value: "active"}

	passed, message := EvaluateCondition(cond, map[string]interface{}{"status": "active"})
	assert.False(t, passed)
	assert.Contains(t, message, "requires a collection value")
}

func TestEvaluateConditionUnknownOperator(t *testing.T) {
	cond := models.TestCondition{Column: "total", Operator: "~=", Value: 1}

	passed, message := EvaluateCondition(cond, map[string]interface{}{"total": 1})
	assert.False(t, passed)
	assert.Equal(t, "Unknown operator: ~=", message)
}

func TestEvaluateConditionNotEqual(t *testing.T) {
	cond := models.TestCondition{Column: "total", Operator: "!=", Value: float64(0), ErrorMessage: "expected data"}

	passed, _ := EvaluateCondition(cond, map[string]interface{}{"total": int64(5)})
	assert.True(t, passed)

	passed, message := EvaluateCondition(cond, map[string]interface{}{"total": int64(0)})
	assert.False(t, passed)
	assert.Contains(t, message, "expected data")
}
