// Package sym defines the glyphs that mark each tradepulse subsystem in log
// lines, CLI output and websocket events.
package sym

// Subsystem glyphs
const (
	Pulse      = "꩜" // scheduler loop and job runs
	PulseOpen  = "✿" // background loop startup
	PulseClose = "❀" // background loop shutdown
	Approval   = "⊜" // approval gate
	Gateway    = "⟶" // execution gateway; the consequent action
	KillSwitch = "⏻" // global trading halt
	DB         = "⊔" // storage
	AM         = "≡" // configuration
)

// Labels maps glyphs to the names shown alongside them in CLI tables.
var Labels = map[string]string{
	Pulse:      "pulse",
	PulseOpen:  "pulse-open",
	PulseClose: "pulse-close",
	Approval:   "approval",
	Gateway:    "gateway",
	KillSwitch: "killswitch",
	DB:         "db",
	AM:         "am",
}

// Label returns the human name for a glyph, or the glyph itself when unknown.
func Label(glyph string) string {
	if l, ok := Labels[glyph]; ok {
		return l
	}
	return glyph
}
