package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// renderOutcome writes a completed analysis for a terminal.
func renderOutcome(w io.Writer, out session.Outcome) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Session:"), out.SessionID)
	if out.Horizon != nil {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Horizon:"), colorize(colorRed, fmt.Sprintf("%g years", *out.Horizon)))
	}

	if len(out.SkillRisks) > 0 {
		fmt.Fprintln(w, colorize(colorBold, "\nSkill risks"))
		for _, r := range out.SkillRisks {
			fmt.Fprintf(w, "  %-28s %3d%%  in %g years  [%s]\n", r.SkillName, r.Probability, r.TimeHorizon, r.Category)
			if r.Justification != "" {
				fmt.Fprintf(w, "    %s\n", r.Justification)
			}
		}
	}

	if len(out.CareerCards) > 0 {
		fmt.Fprintln(w, colorize(colorBold, "\nCareer cards"))
		for _, c := range out.CareerCards {
			fmt.Fprintf(w, "  %d. %s\n", c.CardIndex+1, colorize(colorCyan, c.ComboFormula))
			if c.Rationale != "" {
				fmt.Fprintf(w, "     %s\n", c.Rationale)
			}
			for _, s := range c.Roadmap {
				fmt.Fprintf(w, "     - %s (%s)\n", s.Step, s.Duration)
			}
		}
	}
}

// renderPage writes one guestbook page, newest first.
func renderPage(w io.Writer, page guestbook.Page) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No guestbook entries.")
		return
	}
	for _, e := range page.Items {
		fmt.Fprintf(w, "%s  %s  %s (%g years)\n",
			colorize(colorBold, e.EntryID), e.CreatedAt, e.Role, e.Horizon)
		fmt.Fprintf(w, "  %s\n", e.Message)
		if r := formatReactions(e.Reactions); r != "" {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
	if page.NextCursor != "" {
		fmt.Fprintf(w, "\nnext cursor: %s\n", page.NextCursor)
	}
}

func formatReactions(reactions map[string]int64) string {
	parts := make([]string, 0, len(reactions))
	for emoji, n := range reactions {
		parts = append(parts, fmt.Sprintf("%s %d", emoji, n))
	}
	slices.Sort(parts)
	return strings.Join(parts, "  ")
}
