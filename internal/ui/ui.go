// Package ui holds the terminal presentation layer: adaptive styles,
// color capability detection, and the status board renderer.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"})

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"})

	faintStyle = lipgloss.NewStyle().Faint(true)

	streakStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"})

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// Plain reports whether styled output should be suppressed: output is
// not a terminal, or the terminal advertises no color support.
func Plain() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}
	return termenv.EnvColorProfile() == termenv.Ascii
}

// Width returns the terminal width, or a sane default when stdout is
// not a terminal.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// ExerciseLine is one row of the status board.
type ExerciseLine struct {
	Name   string
	Goal   int
	Count  int
	Done   bool
	Streak int
}

// StatusBoard renders the day header and one line per exercise.
func StatusBoard(title string, day int, lines []ExerciseLine, streak int) string {
	plain := Plain()

	var b strings.Builder
	header := fmt.Sprintf("%s  Day %d", title, day)
	if plain {
		b.WriteString(header + "\n")
	} else {
		b.WriteString(titleStyle.Render(header) + "\n")
	}

	for _, line := range lines {
		b.WriteString(renderLine(line, plain) + "\n")
	}

	if streak > 0 {
		s := fmt.Sprintf("%d day streak", streak)
		if plain {
			b.WriteString(s + "\n")
		} else {
			b.WriteString(streakStyle.Render("⚡ "+s) + "\n")
		}
	}

	if plain {
		return b.String()
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func renderLine(line ExerciseLine, plain bool) string {
	mark := "[ ]"
	if line.Done {
		mark = "[x]"
	}
	text := fmt.Sprintf("%s %-12s %d/%d", mark, line.Name, line.Count, line.Goal)
	if line.Streak > 0 {
		text += fmt.Sprintf("  (%dd)", line.Streak)
	}
	if plain {
		return text
	}
	switch {
	case line.Done:
		return doneStyle.Render(text)
	case line.Count > 0:
		return pendingStyle.Render(text)
	default:
		return faintStyle.Render(text)
	}
}

// Success formats a confirmation line.
func Success(msg string) string {
	if Plain() {
		return msg
	}
	return doneStyle.Render("✓ " + msg)
}

// Warn formats a cautionary line.
func Warn(msg string) string {
	if Plain() {
		return msg
	}
	return pendingStyle.Render("! " + msg)
}
