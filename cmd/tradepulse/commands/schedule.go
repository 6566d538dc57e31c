package commands

import (
	"fmt"
	"net/http"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/pulse/schedule"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/sym"
)

// ScheduleCmd manages recurring job schedules
var ScheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"schedules"},
	Short:   sym.Pulse + " Manage recurring job schedules",
	Long: sym.Pulse + ` schedule - Manage recurring job schedules

A schedule runs a job type on a cron expression in its own timezone.
Missed fire times are never backfilled: after downtime a schedule fires
once for the latest due instant. Schedules are paused, never deleted.

Examples:
  tradepulse schedule list
  tradepulse schedule create --name open-scan --job-type morning-routine --cron "30 9 * * 1-5" --tz America/New_York
  tradepulse schedule update SC_abc --cron "0 10 * * 1-5"
  tradepulse schedule pause SC_abc`,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules with their next fire time",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule",
	Args:  cobra.NoArgs,
	RunE:  runScheduleCreate,
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update <schedule-id>",
	Short: "Update fields of a schedule; the next fire time is recomputed",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleUpdate,
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <schedule-id>",
	Short: "Stop a schedule from firing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleState(cmd, args[0], "pause")
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <schedule-id>",
	Short: "Resume a paused schedule from its next future instant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleState(cmd, args[0], "resume")
	},
}

func init() {
	for _, c := range []*cobra.Command{scheduleCreateCmd, scheduleUpdateCmd} {
		c.Flags().String("name", "", "Schedule name")
		c.Flags().String("job-type", "", "Job type (morning-routine, news-review, ai-recommendations, custom)")
		c.Flags().String("cron", "", "Cron expression (5 fields or @daily style descriptor)")
		c.Flags().String("tz", "", "IANA timezone, e.g. America/New_York (default UTC)")
		c.Flags().Bool("requires-approval", true, "Hold candidates for human approval")
		c.Flags().Bool("enabled", true, "Fire on schedule")
	}
	scheduleCreateCmd.MarkFlagRequired("name")
	scheduleCreateCmd.MarkFlagRequired("job-type")
	scheduleCreateCmd.MarkFlagRequired("cron")

	ScheduleCmd.AddCommand(scheduleListCmd)
	ScheduleCmd.AddCommand(scheduleCreateCmd)
	ScheduleCmd.AddCommand(scheduleUpdateCmd)
	ScheduleCmd.AddCommand(schedulePauseCmd)
	ScheduleCmd.AddCommand(scheduleResumeCmd)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var resp server.ListSchedulesResponse
	if err := client.do(ctx, http.MethodGet, "/api/schedules", nil, &resp); err != nil {
		return err
	}
	if resp.Count == 0 {
		pterm.Info.Println("No schedules")
		return nil
	}

	t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Name", "Job", "Cron", "TZ", "Approval", "Status", "Last run", "Next run"})
	for _, s := range resp.Schedules {
		t.AppendRow(table.Row{
			s.ID, truncate(s.Name, 32), s.JobType, s.CronExpression, s.Timezone,
			s.RequiresApproval, s.Status, formatTime(s.LastRunAt), formatTime(s.NextRunAt),
		})
	}
	t.Render()
	return nil
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	def := definitionFromFlags(cmd)
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var created schedule.Schedule
	if err := client.do(ctx, http.MethodPost, "/api/schedules", def, &created); err != nil {
		return err
	}
	pterm.Success.Printf("Created schedule %s (%s), next run %s\n", created.ID, created.Name, formatTime(created.NextRunAt))
	return nil
}

func runScheduleUpdate(cmd *cobra.Command, args []string) error {
	patch := patchFromFlags(cmd)
	if patch.Empty() {
		return fmt.Errorf("nothing to update: pass at least one of --name, --job-type, --cron, --tz, --requires-approval, --enabled")
	}
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var updated schedule.Schedule
	if err := client.do(ctx, http.MethodPatch, "/api/schedules/"+args[0], patch, &updated); err != nil {
		return err
	}
	pterm.Success.Printf("Updated schedule %s, next run %s\n", updated.ID, formatTime(updated.NextRunAt))
	return nil
}

func setScheduleState(cmd *cobra.Command, id, action string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var s schedule.Schedule
	if err := client.do(ctx, http.MethodPost, "/api/schedules/"+id+"/"+action, nil, &s); err != nil {
		return err
	}
	pterm.Success.Printf("Schedule %s is %s\n", s.ID, s.Status)
	return nil
}

func definitionFromFlags(cmd *cobra.Command) schedule.Definition {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	jobType, _ := flags.GetString("job-type")
	cron, _ := flags.GetString("cron")
	tz, _ := flags.GetString("tz")
	requiresApproval, _ := flags.GetBool("requires-approval")
	enabled, _ := flags.GetBool("enabled")

	return schedule.Definition{
		Name:             name,
		JobType:          schedule.JobType(jobType),
		CronExpression:   cron,
		Timezone:         tz,
		RequiresApproval: &requiresApproval,
		Enabled:          &enabled,
	}
}

// patchFromFlags sets only the flags the user passed
func patchFromFlags(cmd *cobra.Command) schedule.Patch {
	flags := cmd.Flags()
	var p schedule.Patch
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		p.Name = &v
	}
	if flags.Changed("job-type") {
		v, _ := flags.GetString("job-type")
		jt := schedule.JobType(v)
		p.JobType = &jt
	}
	if flags.Changed("cron") {
		v, _ := flags.GetString("cron")
		p.CronExpression = &v
	}
	if flags.Changed("tz") {
		v, _ := flags.GetString("tz")
		p.Timezone = &v
	}
	if flags.Changed("requires-approval") {
		v, _ := flags.GetBool("requires-approval")
		p.RequiresApproval = &v
	}
	if flags.Changed("enabled") {
		v, _ := flags.GetBool("enabled")
		p.Enabled = &v
	}
	return p
}
