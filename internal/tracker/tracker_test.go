package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewflow/pkg/models"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := New(filepath.Join(t.TempDir(), "deployments"))
	require.NoError(t, err)
	return tr
}

func TestLifecycle(t *testing.T) {
	tr := newTestTracker(t)

	id := tr.Start("dev", 2)
	assert.Contains(t, id, "dev_")

	require.NoError(t, tr.Record("sales_summary", "view_definitions/sales_summary.yaml",
		models.StatusSuccess, 1200*time.Millisecond, "", "CREATE OR REPLACE VIEW ..."))
	require.NoError(t, tr.Record("orders", "view_definitions/orders.yaml",
		models.StatusFailed, 300*time.Millisecond, "table not found", ""))

	summary, err := tr.Finish()
	require.NoError(t, err)

	assert.Equal(t, id, summary.DeploymentID)
	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 1, summary.SuccessfulDeployments)
	assert.Equal(t, 1, summary.FailedDeployments)
	assert.InDelta(t, 0.5, summary.SuccessRate(), 1e-9)
	assert.NotEmpty(t, summary.EndTime)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, "table not found", summary.Records[1].ErrorMessage)
}

func TestRecordWithoutStart(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.Record("v", "f", models.StatusSuccess, 0, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployment in progress")
}

func TestFinishWithoutStart(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.Finish()
	require.Error(t, err)
}

func TestFinishIsTerminal(t *testing.T) {
	tr := newTestTracker(t)
	tr.Start("dev", 0)

	_, err := tr.Finish()
	require.NoError(t, err)

	// a second finish has nothing to finalize
	_, err = tr.Finish()
	require.Error(t, err)
}

func TestLatestRoundTrip(t *testing.T) {
	tr := newTestTracker(t)

	tr.Start("prod", 1)
	tr.SetGitCommit("abc1234")
	require.NoError(t, tr.Record("sales", "sales.yaml", models.StatusSuccess, time.Second, "", ""))
	finished, err := tr.Finish()
	require.NoError(t, err)

	latest, err := tr.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, finished.DeploymentID, latest.DeploymentID)
	assert.Equal(t, "abc1234", latest.GitCommit)
	require.Len(t, latest.Records, 1)
	assert.Equal(t, "sales", latest.Records[0].ViewName)
}

func TestLatestEmpty(t *testing.T) {
	tr := newTestTracker(t)
	latest, err := tr.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployments")
	tr, err := New(dir)
	require.NoError(t, err)

	for i, env := range []string{"dev", "staging", "prod"} {
		tr.Start(env, 1)
		require.NoError(t, tr.Record("v", "f", models.StatusSuccess, 0, "", ""))
		summary, err := tr.Finish()
		require.NoError(t, err)

		// run files share a second-granularity ID; push mtimes apart
		path := filepath.Join(dir, summary.DeploymentID+".json")
		stamp := time.Now().Add(time.Duration(i-3) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}

	history, err := tr.History(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "prod", history[0].TargetEnvironment)
	assert.Equal(t, "staging", history[1].TargetEnvironment)
}

func TestHistorySkipsLatestPointerAndGarbage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployments")
	tr, err := New(dir)
	require.NoError(t, err)

	tr.Start("dev", 0)
	_, err = tr.Finish()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{not json"), 0600))

	history, err := tr.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "dev", history[0].TargetEnvironment)
}

func TestGet(t *testing.T) {
	tr := newTestTracker(t)

	tr.Start("dev", 0)
	summary, err := tr.Finish()
	require.NoError(t, err)

	loaded, err := tr.Get(summary.DeploymentID)
	require.NoError(t, err)
	assert.Equal(t, summary.DeploymentID, loaded.DeploymentID)

	_, err = tr.Get("dev_0")
	require.Error(t, err)
}

func TestSuccessRateZeroTotal(t *testing.T) {
	s := models.DeploymentSummary{}
	assert.Zero(t, s.SuccessRate())
}

func TestReport(t *testing.T) {
	summary := &models.DeploymentSummary{
		DeploymentID:          "dev_123",
		TargetEnvironment:     "dev",
		TotalFiles:            2,
		SuccessfulDeployments: 1,
		FailedDeployments:     1,
		StartTime:             "2026-01-02T03:04:05Z",
		DurationSeconds:       4.2,
		Records: []models.DeploymentRecord{
			{ViewName: "sales", Status: models.StatusSuccess, DurationSeconds: 1.5},
			{ViewName: "orders", Status: models.StatusFailed, ErrorMessage: "boom"},
		},
	}

	report := Report(summary)
	assert.Contains(t, report, "dev_123")
	assert.Contains(t, report, "Success rate: 50.0%")
	assert.Contains(t, report, "[ok  ] sales")
	assert.Contains(t, report, "[FAIL] orders")
	assert.Contains(t, report, "boom")
}
