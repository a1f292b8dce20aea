package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/mod-deps/pkg/cycles"
	"github.com/ritzau/mod-deps/pkg/model"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

func state(enabled bool) string {
	if enabled {
		return green.Sprint("enabled ")
	}
	return red.Sprint("disabled")
}

func modID(m model.Mod) string {
	if id := m.ModID(); id != "" {
		return id
	}
	return yellow.Sprint("?")
}

// PrintModList prints every mod with its state and dependency counts
func PrintModList(w io.Writer, dir string, mods []model.Mod) {
	bold.Fprintf(w, "Mods in %s\n", dir)
	bold.Fprintln(w, strings.Repeat("=", len(dir)+8))

	enabled := 0
	for _, m := range mods {
		if m.Enabled {
			enabled++
		}
		fmt.Fprintf(w, "%s  %-32s %-24s requires %d, required by %d\n",
			state(m.Enabled), m.InternalID, modID(m), m.RequiresCount, m.RequiredByCount)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d mods, ", len(mods))
	green.Fprintf(w, "%d enabled", enabled)
	fmt.Fprint(w, ", ")
	red.Fprintf(w, "%d disabled\n", len(mods)-enabled)
}

// PrintCycles prints the dependency cycles, if any
func PrintCycles(w io.Writer, found []cycles.ModCycle) {
	if len(found) == 0 {
		return
	}
	fmt.Fprintln(w)
	yellow.Fprintf(w, "DEPENDENCY CYCLES (%d):\n", len(found))
	for _, c := range found {
		fmt.Fprintf(w, "  %s\n", strings.Join(c.ModIDs, " <-> "))
	}
}

// PrintAffected previews what an action on the selection would change
func PrintAffected(w io.Writer, action model.EnableAction, selection []string, affected []model.Mod) {
	bold.Fprintf(w, "%s %s\n", capitalize(action.String()), strings.Join(selection, ", "))
	if len(affected) == 0 {
		green.Fprintln(w, "No other mods are affected")
		return
	}
	yellow.Fprintf(w, "Also affects %d mod(s):\n", len(affected))
	for _, m := range affected {
		cyan.Fprintf(w, "  %s", m.InternalID)
		fmt.Fprintf(w, " (%s)\n", modID(m))
	}
}

// PrintChanged reports the mods whose state was changed
func PrintChanged(w io.Writer, changed []model.Mod) {
	if len(changed) == 0 {
		fmt.Fprintln(w, "Nothing to change")
		return
	}
	for _, m := range changed {
		fmt.Fprintf(w, "%s  %s\n", state(m.Enabled), m.InternalID)
	}
	green.Fprintf(w, "✓ Changed %d mod(s)\n", len(changed))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
