// Package output renders the human-readable reports of the CLI commands.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/preflight"
)

const (
	colorReset = "\033[0m"
	colorGray  = "\033[90m"
)

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal()
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Components writes one section per namespace listing every resolved
// component with its source and destination.
func Components(w io.Writer, cfg *config.Config, comps *config.Components, color bool) {
	for _, ns := range config.Namespaces {
		names := comps.Names(ns)
		sec := NewSection(w, fmt.Sprintf("%s (%d)", ns, len(names)), 0, color)
		for _, name := range names {
			c, _ := comps.Get(ns, name)
			status := "success"
			detail := c.Source + " → " + c.Destination
			if cfg.Control.Excluded(ns, name) {
				status = "skipped"
				detail = "excluded"
			}
			sec.Status(status, name, detail)
		}
		if len(names) == 0 {
			sec.Row("%s", Dimmed("no components", color))
		}
		sec.Close()
	}
}

// Preflight writes the endpoint check results.
func Preflight(w io.Writer, results []preflight.Result, elapsed time.Duration, color bool) {
	sec := NewSection(w, "Preflight", elapsed, color)
	for _, r := range results {
		switch {
		case r.OK():
			sec.Status("success", r.URL, fmt.Sprintf("HTTP %d", r.Status))
		case r.TLS:
			sec.Status("failed", r.URL, "TLS: "+r.Err.Error())
		default:
			sec.Status("failed", r.URL, r.Err.Error())
		}
	}
	sec.Close()
}

// Summary writes a final synced/skipped line.
func Summary(w io.Writer, synced, skipped int, elapsed time.Duration, color bool) {
	status := "success"
	if synced == 0 {
		status = "skipped"
	}
	fmt.Fprintf(w, "\n    %s synchronized %d component(s), %d skipped in %s\n",
		StatusIcon(status, color), synced, skipped, formatElapsed(elapsed))
}
