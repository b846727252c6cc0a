package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewflow/internal/env"
	"viewflow/internal/executor"
	"viewflow/pkg/models"
)

type fakeExecutor struct {
	responses []*executor.StatementResponse
	err       error
	requests  []executor.StatementRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req executor.StatementRequest) (*executor.StatementResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeExecutor) GetStatus(_ context.Context, id string) (*executor.StatementResponse, error) {
	return &executor.StatementResponse{StatementID: id, State: executor.StateSucceeded}, nil
}

func succeededWith(rows ...map[string]interface{}) *executor.StatementResponse {
	return &executor.StatementResponse{State: executor.StateSucceeded, Rows: rows}
}

func writeEnvConfig(t *testing.T, dir string) *env.Manager {
	t.Helper()
	path := filepath.Join(dir, "environments.yml")
	content := `global:
  catalog: main
dev:
  schema: analytics
  warehouse_id: "wh-dev"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return env.NewManager(path)
}

func newTestEngine(t *testing.T, exec executor.Executor) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	envs := writeEnvConfig(t, dir)
	engine := NewEngine(exec, envs, executor.Namespace{Catalog: "main", Schema: "analytics"}, "wh-dev")
	engine.SetTestsDir(filepath.Join(dir, "tests"))
	return engine, dir
}

func writeSuite(t *testing.T, dir, view, sqlBody, expectedJSON string) {
	t.Helper()
	testsDir := filepath.Join(dir, "tests")
	require.NoError(t, os.MkdirAll(filepath.Join(testsDir, "expected_results"), 0750))
	require.NoError(t, os.WriteFile(
		filepath.Join(testsDir, "test_"+view+".sql"), []byte(sqlBody), 0600))
	require.NoError(t, os.WriteFile(
		filepath.Join(testsDir, "expected_results", "test_"+view+".json"), []byte(expectedJSON), 0600))
}

func TestSplitQueries(t *testing.T) {
	text := `-- Test 1: basic count
SELECT COUNT(*) AS row_count
FROM main.analytics.orders;

-- Test 2: totals
-- spans two comment lines
SELECT SUM(amount) AS total
FROM main.analytics.orders;

;
`
	queries := SplitQueries(text)
	require.Len(t, queries, 2)
	assert.Equal(t, "SELECT COUNT(*) AS row_count FROM main.analytics.orders", queries[0])
	assert.Equal(t, "SELECT SUM(amount) AS total FROM main.analytics.orders", queries[1])
}

func TestLoadQueriesRendersEnvironment(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})
	writeSuite(t, dir, "orders",
		"SELECT COUNT(*) AS c FROM {{.catalog}}.{{.schema}}.orders;",
		`{"expected_results": []}`)

	queries, err := engine.LoadQueries(filepath.Join(dir, "tests", "test_orders.sql"), "dev")
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT COUNT(*) AS c FROM main.analytics.orders", queries[0])
}

func TestLoadQueriesFallsBackOnRenderFailure(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})
	writeSuite(t, dir, "orders",
		"SELECT COUNT(*) AS c FROM {{.no_such_key}}.orders;",
		`{"expected_results": []}`)

	var warned string
	engine.Warn = func(message string) { warned = message }

	queries, err := engine.LoadQueries(filepath.Join(dir, "tests", "test_orders.sql"), "dev")
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "{{.no_such_key}}")
	assert.Contains(t, warned, "using raw content")
}

func TestLoadQueriesMissingFile(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})

	_, err := engine.LoadQueries(filepath.Join(dir, "tests", "test_missing.sql"), "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Test file not found")
}

func TestLoadExpectations(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})
	writeSuite(t, dir, "orders", "SELECT 1;", `{
  "expected_results": [
    {
      "test_name": "has_rows",
      "description": "view returns data",
      "query_index": 0,
      "expected_conditions": [
        {"column": "c", "operator": ">", "value": 0, "error_message": "View is empty"}
      ]
    }
  ]
}`)

	defs, err := engine.LoadExpectations(filepath.Join(dir, "tests", "expected_results", "test_orders.json"))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "has_rows", defs[0].TestName)
	assert.Equal(t, 0, defs[0].QueryIndex)
	require.Len(t, defs[0].ExpectedConditions, 1)
	assert.Equal(t, ">", defs[0].ExpectedConditions[0].Operator)
}

func TestLoadExpectationsInvalidJSON(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})
	writeSuite(t, dir, "orders", "SELECT 1;", `{not json`)

	_, err := engine.LoadExpectations(filepath.Join(dir, "tests", "expected_results", "test_orders.json"))
	require.Error(t, err)
}

func TestRunTestPasses(t *testing.T) {
	exec := &fakeExecutor{responses: []*executor.StatementResponse{
		succeededWith(map[string]interface{}{"c": int64(7)}),
	}}
	engine, _ := newTestEngine(t, exec)

	def := models.TestDefinition{
		TestName:   "has_rows",
		QueryIndex: 0,
		ExpectedConditions: []models.TestCondition{
			{Column: "c", Operator: ">", Value: float64(0), ErrorMessage: "View is empty"},
		},
	}

	result := engine.RunTest(context.Background(), def, []string{"SELECT COUNT(*) AS c FROM t"})
	assert.True(t, result.Passed)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, int64(7), result.ActualValues["c"])
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "wh-dev", exec.requests[0].WarehouseID)
	assert.Equal(t, "main", exec.requests[0].Namespace.Catalog)
}

func TestRunTestCollectsAllFailures(t *testing.T) {
	exec := &fakeExecutor{responses: []*executor.StatementResponse{
		succeededWith(map[string]interface{}{"c": int64(0), "total": int64(-1)}),
	}}
	engine, _ := newTestEngine(t, exec)

	def := models.TestDefinition{
		TestName:   "sanity",
		QueryIndex: 0,
		ExpectedConditions: []models.TestCondition{
			{Column: "c", Operator: ">", Value: float64(0), ErrorMessage: "View is empty"},
			{Column: "total", Operator: ">=", Value: float64(0), ErrorMessage: "Negative total"},
		},
	}

	result := engine.RunTest(context.Background(), def, []string{"SELECT 1"})
	assert.False(t, result.Passed)
	assert.Contains(t, result.ErrorMessage, "View is empty")
	assert.Contains(t, result.ErrorMessage, "; ")
	assert.Contains(t, result.ErrorMessage, "Negative total")
}

func TestRunTestQueryIndexOutOfRange(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeExecutor{})

	def := models.TestDefinition{TestName: "oob", QueryIndex: 3}
	result := engine.RunTest(context.Background(), def, []string{"SELECT 1"})
	assert.False(t, result.Passed)
	assert.Equal(t, "Query index 3 out of range (have 1 queries)", result.ErrorMessage)
}

func TestRunTestNoResults(t *testing.T) {
	exec := &fakeExecutor{responses: []*executor.StatementResponse{succeededWith()}}
	engine, _ := newTestEngine(t, exec)

	def := models.TestDefinition{TestName: "empty", QueryIndex: 0}
	result := engine.RunTest(context.Background(), def, []string{"SELECT 1 WHERE 1=0"})
	assert.False(t, result.Passed)
	assert.Equal(t, "Query returned no results", result.ErrorMessage)
}

func TestRunTestStatementFailure(t *testing.T) {
	exec := &fakeExecutor{responses: []*executor.StatementResponse{
		{State: executor.StateFailed, Error: "TABLE_OR_VIEW_NOT_FOUND"},
	}}
	engine, _ := newTestEngine(t, exec)

	def := models.TestDefinition{TestName: "broken", QueryIndex: 0}
	result := engine.RunTest(context.Background(), def, []string{"SELECT * FROM nope"})
	assert.False(t, result.Passed)
	assert.Contains(t, result.ErrorMessage, "Test execution failed")
	assert.Contains(t, result.ErrorMessage, "TABLE_OR_VIEW_NOT_FOUND")
}

func TestRunForViewSetupError(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeExecutor{})

	results := engine.RunForView(context.Background(), "nonexistent", "dev")
	require.Len(t, results, 1)
	assert.Equal(t, "setup_error", results[0].TestName)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].ErrorMessage, "Test file not found")
}

func TestRunAllAggregates(t *testing.T) {
	exec := &fakeExecutor{responses: []*executor.StatementResponse{
		succeededWith(map[string]interface{}{"c": int64(5)}),
	}}
	engine, dir := newTestEngine(t, exec)
	writeSuite(t, dir, "orders",
		"SELECT COUNT(*) AS c FROM {{.catalog}}.{{.schema}}.orders;",
		`{
  "expected_results": [
    {"test_name": "has_rows", "description": "", "query_index": 0,
     "expected_conditions": [
       {"column": "c", "operator": ">", "value": 0, "error_message": "View is empty"},
       {"column": "c", "operator": "=", "value": 99, "error_message": "Unexpected count"}
     ]}
  ]
}`)

	all, summary, err := engine.RunAll(context.Background(), "dev", nil)
	require.NoError(t, err)
	require.Contains(t, all, "orders")
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, float64(0), summary.SuccessRate())
}

func TestRunAllNoSuites(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeExecutor{})

	all, summary, err := engine.RunAll(context.Background(), "dev", nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, summary.Total)
}

func TestDiscoverViews(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})
	writeSuite(t, dir, "orders", "SELECT 1;", `{"expected_results": []}`)
	writeSuite(t, dir, "customers", "SELECT 1;", `{"expected_results": []}`)

	views, err := engine.DiscoverViews()
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, views)
}

func TestDiscoverViewsSurfacesScanError(t *testing.T) {
	engine, dir := newTestEngine(t, &fakeExecutor{})

	// A "[" in the directory name makes the scan pattern malformed.
	bad := filepath.Join(dir, "suites[")
	require.NoError(t, os.MkdirAll(bad, 0750))
	engine.SetTestsDir(bad)

	_, err := engine.DiscoverViews()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan")
}

func TestSummarySuccessRate(t *testing.T) {
	assert.Equal(t, float64(0), Summary{}.SuccessRate())
	// Fraction, same convention as DeploymentSummary.SuccessRate.
	assert.InDelta(t, 2.0/3.0, Summary{Total: 3, Passed: 2, Failed: 1}.SuccessRate(), 0.001)
	assert.Equal(t, float64(1), Summary{Total: 4, Passed: 4}.SuccessRate())
}
