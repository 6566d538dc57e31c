package commands

import (
	"fmt"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/sym"
	"github.com/teranos/tradepulse/version"
)

// printStartupBanner prints the startup summary
func printStartupBanner(verbosity int, cfg *am.Config) {
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔═══════════════════════════════════════════════════╗\n")
	fmt.Printf("   ║   %s tradepulse                                     ║\n", sym.Pulse)
	fmt.Printf("   ║   %s Schedule  %s Approve  %s Execute  %s Halt      ║\n",
		sym.Pulse, sym.Approval, sym.Gateway, sym.KillSwitch)
	fmt.Printf("   ╚═══════════════════════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ tradepulse ────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, versionInfo.Version, versionInfo.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, versionInfo.BuildTime)
	fmt.Printf("%s│%s Verbosity: %d\n", green, reset, verbosity)
	fmt.Printf("%s│%s Database:  %s\n", green, reset, cfg.GetDatabasePath())
	fmt.Printf("%s│%s Port:      %d\n", green, reset, cfg.GetServerPort())
	fmt.Printf("%s│%s Backend:   %s\n", green, reset, cfg.Execution.Backend)
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s💡 Press Ctrl+C to stop%s\n\n", yellow, reset)
}
