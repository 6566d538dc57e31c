package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/pulse/schedule"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/sym"
)

// PulseCmd controls the scheduler loop as a whole
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Global pause, manual runs and execution history",
	Long: sym.Pulse + ` Pulse - the scheduler loop.

pause-all stops every schedule from firing without touching their
individual state; resume-all lifts it. Manual runs are allowed while
globally paused.

Examples:
  tradepulse pulse status
  tradepulse pulse pause-all
  tradepulse pulse run --schedule SC_abc
  tradepulse pulse executions --schedule SC_abc --limit 20`,
}

var pulsePauseAllCmd = &cobra.Command{
	Use:   "pause-all",
	Short: "Stop all schedules from firing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGlobalPause(cmd, "pause-all")
	},
}

var pulseResumeAllCmd = &cobra.Command{
	Use:   "resume-all",
	Short: "Lift the global pause",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGlobalPause(cmd, "resume-all")
	},
}

var pulseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show global pause and loop statistics",
	Args:  cobra.NoArgs,
	RunE:  runPulseStatus,
}

var pulseRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a job now, outside its schedule",
	Args:  cobra.NoArgs,
	RunE:  runPulseRun,
}

var pulseExecutionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recent job runs, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runPulseExecutions,
}

func init() {
	pulseRunCmd.Flags().String("job-type", "", "Job type to run (defaults to the schedule's)")
	pulseRunCmd.Flags().String("schedule", "", "Run on behalf of this schedule")
	pulseExecutionsCmd.Flags().String("schedule", "", "Only runs of this schedule")
	pulseExecutionsCmd.Flags().Int("limit", 50, "Maximum rows")

	PulseCmd.AddCommand(pulsePauseAllCmd)
	PulseCmd.AddCommand(pulseResumeAllCmd)
	PulseCmd.AddCommand(pulseStatusCmd)
	PulseCmd.AddCommand(pulseRunCmd)
	PulseCmd.AddCommand(pulseExecutionsCmd)
}

func setGlobalPause(cmd *cobra.Command, action string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var status server.PulseStatusResponse
	if err := client.do(ctx, http.MethodPost, "/api/pulse/"+action, nil, &status); err != nil {
		return err
	}
	if status.GlobalPaused {
		pterm.Warning.Println(sym.Pulse + " All schedules paused")
	} else {
		pterm.Success.Println(sym.Pulse + " Schedules resumed")
	}
	return nil
}

func runPulseStatus(cmd *cobra.Command, args []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var status server.PulseStatusResponse
	if err := client.do(ctx, http.MethodGet, "/api/pulse/status", nil, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Global pause: %t\n", sym.Pulse, status.GlobalPaused)
	for _, key := range []string{"interval", "job_timeout", "ticks_since_start", "last_tick_at"} {
		if v, ok := status.Loop[key]; ok {
			fmt.Fprintf(out, "  %-18s %v\n", key+":", v)
		}
	}
	return nil
}

func runPulseRun(cmd *cobra.Command, args []string) error {
	jobType, _ := cmd.Flags().GetString("job-type")
	scheduleID, _ := cmd.Flags().GetString("schedule")
	if jobType == "" && scheduleID == "" {
		return fmt.Errorf("pass --job-type, --schedule or both")
	}

	req := server.RunJobRequest{JobType: schedule.JobType(jobType)}
	if scheduleID != "" {
		req.ScheduleID = &scheduleID
	}

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var exec schedule.Execution
	if err := client.do(ctx, http.MethodPost, "/api/jobs/run", req, &exec); err != nil {
		return err
	}
	pterm.Success.Printf("Started %s run %s\n", exec.JobType, exec.ID)
	return nil
}

func runPulseExecutions(cmd *cobra.Command, args []string) error {
	scheduleID, _ := cmd.Flags().GetString("schedule")
	limit, _ := cmd.Flags().GetInt("limit")

	path := "/api/executions?limit=" + strconv.Itoa(limit)
	if scheduleID != "" {
		path = "/api/schedules/" + url.PathEscape(scheduleID) + "/executions?limit=" + strconv.Itoa(limit)
	}

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var resp server.ListExecutionsResponse
	if err := client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	if resp.Count == 0 {
		pterm.Info.Println("No executions")
		return nil
	}

	t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Schedule", "Job", "Status", "Started", "Duration", "Summary"})
	for _, e := range resp.Executions {
		sched, duration := "manual", "-"
		if e.ScheduleID != nil {
			sched = *e.ScheduleID
		}
		if e.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *e.DurationMs)
		}
		summary := e.ResultSummary
		if e.ErrorMessage != nil {
			summary = *e.ErrorMessage
		}
		t.AppendRow(table.Row{e.ID, sched, e.JobType, e.Status, formatTime(&e.StartedAt), duration, truncate(summary, 48)})
	}
	t.Render()
	return nil
}
