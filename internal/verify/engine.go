// Package verify runs declarative assertion suites against deployed
// metric views. Each view pairs a SQL file of probe queries with a JSON
// file of expected conditions; the engine executes the probes through a
// statement executor and checks every condition against the first row.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"viewflow/internal/common"
	"viewflow/internal/env"
	"viewflow/internal/executor"
	"viewflow/internal/render"
	"viewflow/pkg/errors"
	"viewflow/pkg/models"
)

const (
	// DefaultTestsDir is where test SQL files live by convention.
	DefaultTestsDir = "tests"
	// expectedSubdir holds the JSON expectations next to the SQL files.
	expectedSubdir = "expected_results"
	// testFilePrefix marks a SQL file as a test suite for one view.
	testFilePrefix = "test_"
)

// Summary aggregates a full run across views.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// SuccessRate returns the passed fraction, 0 for an empty run.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// Engine executes assertion suites. Warn, when set, receives non-fatal
// notices such as a template render falling back to raw SQL.
type Engine struct {
	exec        executor.Executor
	envs        *env.Manager
	renderer    *render.Renderer
	target      executor.Namespace
	warehouseID string
	testsDir    string

	Warn func(message string)
}

// NewEngine builds an engine bound to one target namespace and
// warehouse. The tests directory defaults to DefaultTestsDir.
func NewEngine(exec executor.Executor, envs *env.Manager, target executor.Namespace, warehouseID string) *Engine {
	return &Engine{
		exec:        exec,
		envs:        envs,
		renderer:    render.NewRenderer(envs),
		target:      target,
		warehouseID: warehouseID,
		testsDir:    DefaultTestsDir,
	}
}

// SetTestsDir overrides the directory searched for test files.
func (e *Engine) SetTestsDir(dir string) {
	e.testsDir = dir
}

func (e *Engine) warnf(format string, args ...interface{}) {
	if e.Warn != nil {
		e.Warn(fmt.Sprintf(format, args...))
	}
}

// LoadQueries reads a test SQL file, renders it against the environment
// configuration, and splits it into individual statements. Statements
// are separated by semicolons; comment-only lines are dropped and the
// remaining lines of each statement are joined with single spaces. A
// render failure is not fatal: the raw file content is used instead.
func (e *Engine) LoadQueries(testFile, environment string) ([]string, error) {
	path, found := common.FindFile(testFile)
	if !found {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("Test file not found: %s", testFile)).
			WithContext("file", testFile)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to read test file %s", path))
	}
	content := string(raw)

	config, err := e.envs.Resolve(environment)
	if err != nil {
		return nil, err
	}

	rendered, err := e.renderer.Render(content, config)
	if err != nil {
		e.warnf("template rendering failed for %s, using raw content: %v", filepath.Base(path), err)
		rendered = content
	}

	return SplitQueries(rendered), nil
}

// SplitQueries breaks rendered SQL into statements on semicolons,
// stripping blank and pure comment lines.
func SplitQueries(text string) []string {
	var queries []string
	for _, section := range strings.Split(text, ";") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		var sqlLines []string
		for _, line := range strings.Split(section, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			sqlLines = append(sqlLines, line)
		}
		if len(sqlLines) > 0 {
			queries = append(queries, strings.Join(sqlLines, " "))
		}
	}
	return queries
}

// expectationsFile mirrors the on-disk JSON shape.
type expectationsFile struct {
	ExpectedResults []models.TestDefinition `json:"expected_results"`
}

// LoadExpectations reads test definitions from a JSON expectations
// file.
func (e *Engine) LoadExpectations(expectedFile string) ([]models.TestDefinition, error) {
	path, found := common.FindFile(expectedFile)
	if !found {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("Expected results file not found: %s", expectedFile)).
			WithContext("file", expectedFile)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to read expected results %s", path))
	}

	var doc expectationsFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParseFailed,
			fmt.Sprintf("invalid expected results JSON in %s", path))
	}
	return doc.ExpectedResults, nil
}

// RunTest executes one test definition against the loaded queries.
// Every failure mode is folded into the TestResult; the method itself
// never errors.
func (e *Engine) RunTest(ctx context.Context, def models.TestDefinition, queries []string) models.TestResult {
	start := time.Now()

	if def.QueryIndex < 0 || def.QueryIndex >= len(queries) {
		return models.TestResult{
			TestName: def.TestName,
			Passed:   false,
			ErrorMessage: fmt.Sprintf("Query index %d out of range (have %d queries)",
				def.QueryIndex, len(queries)),
		}
	}

	rows, err := e.execute(ctx, queries[def.QueryIndex])
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return models.TestResult{
			TestName:      def.TestName,
			Passed:        false,
			ErrorMessage:  fmt.Sprintf("Test execution failed: %v", err),
			ExecutionTime: elapsed,
		}
	}

	if len(rows) == 0 {
		return models.TestResult{
			TestName:      def.TestName,
			Passed:        false,
			ErrorMessage:  "Query returned no results",
			ExecutionTime: elapsed,
		}
	}

	// Probe queries are written to return a single row; evaluate
	// every condition against the first.
	actual := rows[0]

	var failures []string
	for _, cond := range def.ExpectedConditions {
		passed, message := EvaluateCondition(cond, actual)
		if !passed {
			failures = append(failures, message)
		}
	}

	return models.TestResult{
		TestName:      def.TestName,
		Passed:        len(failures) == 0,
		ErrorMessage:  strings.Join(failures, "; "),
		ActualValues:  actual,
		ExecutionTime: elapsed,
	}
}

func (e *Engine) execute(ctx context.Context, query string) ([]map[string]interface{}, error) {
	resp, err := e.exec.Execute(ctx, executor.StatementRequest{
		Statement:   query,
		Namespace:   e.target,
		WarehouseID: e.warehouseID,
	})
	if err != nil {
		return nil, err
	}
	if resp.State != executor.StateSucceeded {
		return nil, errors.StatementError(
			fmt.Sprintf("statement finished %s: %s", resp.State, resp.Error), query, nil)
	}
	return resp.Rows, nil
}

// RunForView runs the whole suite for one view. When the suite cannot
// even be loaded, a single synthetic setup_error result carries the
// reason so aggregation still sees the view as failed.
func (e *Engine) RunForView(ctx context.Context, viewName, environment string) []models.TestResult {
	sqlFile := filepath.Join(e.testsDir, testFilePrefix+viewName+".sql")
	expectedFile := filepath.Join(e.testsDir, expectedSubdir, testFilePrefix+viewName+".json")

	queries, err := e.LoadQueries(sqlFile, environment)
	if err != nil {
		return []models.TestResult{{
			TestName:     "setup_error",
			Passed:       false,
			ErrorMessage: err.Error(),
		}}
	}

	definitions, err := e.LoadExpectations(expectedFile)
	if err != nil {
		return []models.TestResult{{
			TestName:     "setup_error",
			Passed:       false,
			ErrorMessage: err.Error(),
		}}
	}

	results := make([]models.TestResult, 0, len(definitions))
	for _, def := range definitions {
		results = append(results, e.RunTest(ctx, def, queries))
	}
	return results
}

// DiscoverViews lists the views that have a test suite, derived from
// test_<view>.sql file names in the first candidate directory that
// contains any.
func (e *Engine) DiscoverViews() ([]string, error) {
	dir, found := common.FindDir(e.testsDir)
	if !found {
		return nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, testFilePrefix+"*.sql"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to scan %s for test suites", dir))
	}
	if len(matches) == 0 {
		return nil, nil
	}

	views := make([]string, 0, len(matches))
	for _, match := range matches {
		base := strings.TrimSuffix(filepath.Base(match), ".sql")
		views = append(views, strings.TrimPrefix(base, testFilePrefix))
	}
	sort.Strings(views)
	return views, nil
}

// RunAll runs suites for the named views, or for every discovered view
// when none are given. The map is keyed by view name.
func (e *Engine) RunAll(ctx context.Context, environment string, viewNames []string) (map[string][]models.TestResult, Summary, error) {
	if len(viewNames) == 0 {
		discovered, err := e.DiscoverViews()
		if err != nil {
			return nil, Summary{}, err
		}
		viewNames = discovered
	}

	if len(viewNames) == 0 {
		return map[string][]models.TestResult{}, Summary{}, nil
	}

	all := make(map[string][]models.TestResult, len(viewNames))
	var summary Summary
	for _, view := range viewNames {
		results := e.RunForView(ctx, view, environment)
		all[view] = results
		for _, result := range results {
			summary.Total++
			if result.Passed {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}
	return all, summary, nil
}
