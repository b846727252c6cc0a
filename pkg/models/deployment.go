package models

// Deployment statuses recorded per unit of work.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// DeploymentRecord is the result of deploying a single metric view.
type DeploymentRecord struct {
	ViewName        string  `json:"view_name"`
	FilePath        string  `json:"file_path"`
	Status          string  `json:"status"`
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	SQLGenerated    string  `json:"sql_generated,omitempty"`
}

// DeploymentSummary is the append-only bookkeeping for one deployment run.
// It is created at run start, appended to per unit of work, finalized
// exactly once and immutable thereafter.
type DeploymentSummary struct {
	DeploymentID          string             `json:"deployment_id"`
	TargetEnvironment     string             `json:"target_environment"`
	GitCommit             string             `json:"git_commit,omitempty"`
	TotalFiles            int                `json:"total_files"`
	SuccessfulDeployments int                `json:"successful_deployments"`
	FailedDeployments     int                `json:"failed_deployments"`
	StartTime             string             `json:"start_time"`
	EndTime               string             `json:"end_time,omitempty"`
	DurationSeconds       float64            `json:"duration_seconds,omitempty"`
	Records               []DeploymentRecord `json:"records"`
}

// SuccessRate returns the fraction of successful deployments, defined as
// 0 when nothing was deployed.
func (s *DeploymentSummary) SuccessRate() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.SuccessfulDeployments) / float64(s.TotalFiles)
}
