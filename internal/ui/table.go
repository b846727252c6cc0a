package ui

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"viewflow/pkg/models"
)

// HistoryTable renders past deployment runs as a plain table.
func HistoryTable(summaries []models.DeploymentSummary) string {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Deployment ID", "Environment", "Commit", "OK", "Failed", "Rate", "Started", "Duration"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, s := range summaries {
		table.Append([]string{
			s.DeploymentID,
			s.TargetEnvironment,
			shortCommit(s.GitCommit),
			fmt.Sprintf("%d", s.SuccessfulDeployments),
			fmt.Sprintf("%d", s.FailedDeployments),
			fmt.Sprintf("%.0f%%", s.SuccessRate()*100),
			s.StartTime,
			fmt.Sprintf("%.1fs", s.DurationSeconds),
		})
	}

	table.Render()
	return buf.String()
}

func shortCommit(sha string) string {
	if sha == "" {
		return "-"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
