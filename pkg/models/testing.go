package models

// TestCondition is a single assertion on one column of a query result.
type TestCondition struct {
	Column       string      `json:"column"`
	Operator     string      `json:"operator"` // =, !=, >, >=, <, <=, in, not_in
	Value        interface{} `json:"value"`
	ErrorMessage string      `json:"error_message"`
}

// TestDefinition is a named assertion referencing one query by position
// and a set of conditions on its single-row result.
type TestDefinition struct {
	TestName           string          `json:"test_name"`
	Description        string          `json:"description"`
	QueryIndex         int             `json:"query_index"`
	ExpectedConditions []TestCondition `json:"expected_conditions"`
}

// TestResult is the terminal outcome of one test execution. Results are
// never mutated after construction.
type TestResult struct {
	TestName      string                 `json:"test_name"`
	Passed        bool                   `json:"passed"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	ActualValues  map[string]interface{} `json:"actual_values,omitempty"`
	ExecutionTime float64                `json:"execution_time,omitempty"`
}
