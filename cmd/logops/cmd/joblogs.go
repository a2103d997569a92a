package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/logops/internal/joblog"
)

var (
	jobLogsRegion    string
	jobLogsStatus    string
	jobLogsJobType   string
	jobLogsTable     string
	jobLogsSource    string
	jobLogsDateRange string
	jobLogsReason    string
	jobLogsFailed    bool
	jobLogsLimit     int
	jobLogsSummary   bool
)

var jobLogsCmd = &cobra.Command{
	Use:   "job-logs",
	Short: "Query the job audit log",
	Long: `Job-logs queries the job_logs audit table of a region. Without
flags it shows the most recent jobs; filters narrow the result and
--summary aggregates counts by status and job type.

Date ranges accept shortcuts like today, yesterday, this_week,
last_7_days, last_2_hours or from_1/1/2025_to_3/31/2025.

Examples:
  logops job-logs --region US --failed
  logops job-logs --region EU --table dsiactivities --date-range last_7_days
  logops job-logs --region US --summary`,
	RunE: runJobLogs,
}

func init() {
	jobLogsCmd.Flags().StringVar(&jobLogsRegion, "region", "",
		"Target region (defaults to the first available region)")
	jobLogsCmd.Flags().StringVar(&jobLogsStatus, "status", "",
		"Filter by status (SUCCESS, FAILED, IN_PROGRESS)")
	jobLogsCmd.Flags().StringVar(&jobLogsJobType, "job-type", "",
		"Filter by job type (ARCHIVE, DELETE)")
	jobLogsCmd.Flags().StringVar(&jobLogsTable, "table", "",
		"Filter by table name")
	jobLogsCmd.Flags().StringVar(&jobLogsSource, "source", "",
		"Filter by source (CHATBOT, SCRIPT)")
	jobLogsCmd.Flags().StringVar(&jobLogsDateRange, "date-range", "",
		"Filter by date-range shortcut")
	jobLogsCmd.Flags().StringVar(&jobLogsReason, "reason-contains", "",
		"Filter by substring of the reason text")
	jobLogsCmd.Flags().BoolVar(&jobLogsFailed, "failed", false,
		"Show failed jobs only")
	jobLogsCmd.Flags().IntVar(&jobLogsLimit, "limit", 0,
		"Maximum rows to return")
	jobLogsCmd.Flags().BoolVar(&jobLogsSummary, "summary", false,
		"Aggregate counts instead of listing rows")

	rootCmd.AddCommand(jobLogsCmd)
}

func runJobLogs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name := jobLogsRegion
	if name == "" {
		name = a.regions.DefaultRegion(ctx)
	}
	db, err := a.regionDB(ctx, name)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", name, err)
	}

	f := joblog.Filters{
		DateRange:      jobLogsDateRange,
		ReasonContains: jobLogsReason,
		FailedOnly:     jobLogsFailed,
		Limit:          jobLogsLimit,
	}
	if jobLogsStatus != "" {
		f.Status = []string{jobLogsStatus}
	}
	if jobLogsJobType != "" {
		f.JobType = []string{jobLogsJobType}
	}
	if jobLogsTable != "" {
		f.TableName = []string{jobLogsTable}
	}
	if jobLogsSource != "" {
		f.Source = []string{jobLogsSource}
	}

	out := cmd.OutOrStdout()

	if jobLogsSummary {
		summary, err := a.jobs.Summarize(ctx, db, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Total jobs: %d  Records affected: %d\n",
			summary.Total, summary.RecordsAffected)
		for _, status := range sortedKeys(summary.ByStatus) {
			fmt.Fprintf(out, "  %s: %d\n", status, summary.ByStatus[status])
		}
		for _, jobType := range sortedKeys(summary.ByJobType) {
			fmt.Fprintf(out, "  %s: %d\n", jobType, summary.ByJobType[jobType])
		}
		return nil
	}

	entries, err := a.jobs.Query(ctx, db, f)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching job logs.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		finished := ""
		if e.FinishedAt != nil {
			finished = e.FinishedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.ID), e.JobType, e.TableName, e.Status,
			fmt.Sprintf("%d", e.RecordsAffected),
			e.StartedAt.Format("2006-01-02 15:04:05"), finished,
		})
	}
	renderTable(out, []string{"ID", "Type", "Table", "Status", "Records", "Started", "Finished"}, rows)
	fmt.Fprintf(out, "%d job(s)\n", len(entries))
	return nil
}
