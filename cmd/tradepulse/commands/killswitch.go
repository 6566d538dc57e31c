package commands

import (
	"fmt"
	"net/http"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/sym"
)

// KillSwitchCmd reads and sets the global trading halt
var KillSwitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: sym.KillSwitch + " Halt or resume live trading",
	Long: sym.KillSwitch + ` killswitch - Global trading halt

While on, every live execute is refused with trading_halted and nothing
is cached, so the same request id succeeds once the switch is off.
Dry runs are unaffected.

Examples:
  tradepulse killswitch get
  tradepulse killswitch set on --actor risk-desk
  tradepulse killswitch set off --actor risk-desk`,
}

var killSwitchGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the kill-switch state",
	Args:  cobra.NoArgs,
	RunE:  runKillSwitchGet,
}

var killSwitchSetCmd = &cobra.Command{
	Use:       "set <on|off>",
	Short:     "Turn the kill-switch on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runKillSwitchSet,
}

func init() {
	killSwitchSetCmd.Flags().String("actor", defaultActor(), "Who is flipping the switch")

	KillSwitchCmd.AddCommand(killSwitchGetCmd)
	KillSwitchCmd.AddCommand(killSwitchSetCmd)
}

func runKillSwitchGet(cmd *cobra.Command, args []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var state execution.KillSwitchState
	if err := client.do(ctx, http.MethodGet, "/api/killswitch", nil, &state); err != nil {
		return err
	}
	printKillSwitch(state)
	return nil
}

func runKillSwitchSet(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("want on or off, got %q", args[0])
	}
	actor, _ := cmd.Flags().GetString("actor")

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var state execution.KillSwitchState
	req := server.SetKillSwitchRequest{Enabled: &enabled, Actor: actor}
	if err := client.do(ctx, http.MethodPut, "/api/killswitch", req, &state); err != nil {
		return err
	}
	printKillSwitch(state)
	return nil
}

func printKillSwitch(state execution.KillSwitchState) {
	if state.Enabled {
		pterm.Warning.Printf("%s Trading HALTED by %s at %s (version %d)\n",
			sym.KillSwitch, state.SetBy, formatTime(&state.SetAt), state.Version)
		return
	}
	if state.Version == 0 {
		pterm.Success.Printf("%s Trading live (never halted)\n", sym.KillSwitch)
		return
	}
	pterm.Success.Printf("%s Trading live, last set by %s at %s (version %d)\n",
		sym.KillSwitch, state.SetBy, formatTime(&state.SetAt), state.Version)
}
