// Package tracker persists deployment run records as JSON on disk and
// folds per-view outcomes into a run summary.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"viewflow/pkg/errors"
	"viewflow/pkg/models"
)

// DefaultOutputDir is where run records are written.
const DefaultOutputDir = ".viewflow/deployments"

const latestFile = "latest.json"

// Tracker records one deployment run at a time. A run is started once,
// appended to per unit of work, and finished exactly once; the persisted
// summary is immutable afterwards.
type Tracker struct {
	outputDir string
	current   *models.DeploymentSummary
}

// New creates a Tracker writing under outputDir, creating it as needed.
func New(outputDir string) (*Tracker, error) {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to create deployment output directory %s", outputDir))
	}
	return &Tracker{outputDir: outputDir}, nil
}

// Start begins tracking a new deployment run and returns its ID.
func (t *Tracker) Start(environment string, totalFiles int) string {
	id := fmt.Sprintf("%s_%d", environment, time.Now().Unix())
	t.current = &models.DeploymentSummary{
		DeploymentID:      id,
		TargetEnvironment: environment,
		TotalFiles:        totalFiles,
		StartTime:         time.Now().UTC().Format(time.RFC3339),
		Records:           []models.DeploymentRecord{},
	}
	return id
}

// SetGitCommit records the source commit the run deployed from.
func (t *Tracker) SetGitCommit(sha string) {
	if t.current != nil {
		t.current.GitCommit = sha
	}
}

// Record appends the result of deploying a single metric view.
func (t *Tracker) Record(viewName, filePath, status string, duration time.Duration, errMsg, sqlGenerated string) error {
	if t.current == nil {
		return errors.New(errors.ErrCodeInvalidInput,
			"no deployment in progress; call Start first")
	}

	record := models.DeploymentRecord{
		ViewName:        viewName,
		FilePath:        filePath,
		Status:          status,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationSeconds: duration.Seconds(),
		ErrorMessage:    errMsg,
		SQLGenerated:    sqlGenerated,
	}
	t.current.Records = append(t.current.Records, record)

	switch status {
	case models.StatusSuccess:
		t.current.SuccessfulDeployments++
	case models.StatusFailed:
		t.current.FailedDeployments++
	}
	return nil
}

// Finish stamps the end time, persists the summary both under its run ID
// and as the latest pointer, and detaches it from the tracker.
func (t *Tracker) Finish() (*models.DeploymentSummary, error) {
	if t.current == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no deployment in progress")
	}

	end := time.Now().UTC()
	t.current.EndTime = end.Format(time.RFC3339)
	if start, err := time.Parse(time.RFC3339, t.current.StartTime); err == nil {
		t.current.DurationSeconds = end.Sub(start).Seconds()
	}

	data, err := json.MarshalIndent(t.current, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to serialize deployment summary")
	}

	runFile := filepath.Join(t.outputDir, t.current.DeploymentID+".json")
	if err := os.WriteFile(runFile, data, 0600); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to write deployment record %s", runFile))
	}
	if err := os.WriteFile(filepath.Join(t.outputDir, latestFile), data, 0600); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write latest deployment pointer")
	}

	summary := t.current
	t.current = nil
	return summary, nil
}

// History returns up to limit past run summaries, most recent first.
// Unreadable record files are skipped.
func (t *Tracker) History(limit int) ([]models.DeploymentSummary, error) {
	entries, err := os.ReadDir(t.outputDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to read deployment history")
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == latestFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(t.outputDir, name),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	var summaries []models.DeploymentSummary
	for _, c := range candidates {
		if limit > 0 && len(summaries) >= limit {
			break
		}
		summary, err := readSummary(c.path)
		if err != nil {
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// Latest returns the most recently finished run, or nil when no run has
// been recorded yet.
func (t *Tracker) Latest() (*models.DeploymentSummary, error) {
	path := filepath.Join(t.outputDir, latestFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readSummary(path)
}

// Get loads one run summary by deployment ID.
func (t *Tracker) Get(deploymentID string) (*models.DeploymentSummary, error) {
	path := filepath.Join(t.outputDir, deploymentID+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("deployment %s not found", deploymentID))
	}
	return readSummary(path)
}

func readSummary(path string) (*models.DeploymentSummary, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is derived from the output dir
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to read deployment record %s", path))
	}
	var summary models.DeploymentSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParseFailed,
			fmt.Sprintf("malformed deployment record %s", path))
	}
	return &summary, nil
}

// Report renders a human-readable report for one run.
func Report(s *models.DeploymentSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Deployment Report ===\n")
	fmt.Fprintf(&b, "Environment:  %s\n", s.TargetEnvironment)
	fmt.Fprintf(&b, "Deployment:   %s\n", s.DeploymentID)
	if s.GitCommit != "" {
		fmt.Fprintf(&b, "Commit:       %s\n", s.GitCommit)
	}
	fmt.Fprintf(&b, "Start time:   %s\n", s.StartTime)
	fmt.Fprintf(&b, "Duration:     %.2fs\n\n", s.DurationSeconds)

	fmt.Fprintf(&b, "Total files:  %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Successful:   %d\n", s.SuccessfulDeployments)
	fmt.Fprintf(&b, "Failed:       %d\n", s.FailedDeployments)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", s.SuccessRate()*100)

	if len(s.Records) > 0 {
		fmt.Fprintf(&b, "\nIndividual results:\n")
		for _, record := range s.Records {
			marker := "ok  "
			if record.Status == models.StatusFailed {
				marker = "FAIL"
			}
			fmt.Fprintf(&b, "  [%s] %s (%.2fs)\n", marker, record.ViewName, record.DurationSeconds)
			if record.ErrorMessage != "" {
				msg := record.ErrorMessage
				if len(msg) > 100 {
					msg = msg[:100] + "..."
				}
				fmt.Fprintf(&b, "         %s\n", msg)
			}
		}
	}
	return b.String()
}
