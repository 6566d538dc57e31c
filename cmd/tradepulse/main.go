package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/cmd/tradepulse/commands"
	"github.com/teranos/tradepulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tradepulse",
	Short: "tradepulse - scheduled trading jobs behind a human approval gate",
	Long: `tradepulse - scheduled trading jobs behind a human approval gate.

Jobs run on cron schedules and propose candidate trades. Candidates from
schedules that require approval wait for an operator; approved trades are
sent through an idempotent execution gateway guarded by a global kill-switch.

Available commands:
  server     - Run the scheduler, approval gate and gateway behind the HTTP API
  schedule   - Create, update, pause and resume schedules
  pulse      - Global pause, run status and execution history
  approvals  - List, approve and reject pending trades
  execute    - Submit actions to the execution gateway
  killswitch - Halt or resume live trading
  am         - Show and validate configuration

Examples:
  tradepulse server
  tradepulse schedule create --name open-scan --job-type morning-routine --cron "30 9 * * 1-5" --tz America/New_York
  tradepulse approvals list --tier high
  tradepulse killswitch set on --actor risk-desk`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// am show prints configuration only; keep its output clean
		if cmd.Name() != "show" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().String("server-url", "", "API base URL (default http://localhost:<server.port>)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.ApprovalsCmd)
	rootCmd.AddCommand(commands.ExecuteCmd)
	rootCmd.AddCommand(commands.KillSwitchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
