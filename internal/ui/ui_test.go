package ui

import (
	"strings"
	"testing"
)

func TestStatusBoardPlain(t *testing.T) {
	// Test binaries never run with a tty on stdout, so the plain
	// renderer is what we can assert on.
	if !Plain() {
		t.Skip("stdout is a terminal")
	}

	out := StatusBoard("OneUp", 42, []ExerciseLine{
		{Name: "Push-ups", Goal: 42, Count: 42, Done: true, Streak: 3},
		{Name: "Squats", Goal: 63, Count: 10},
	}, 3)

	for _, want := range []string{"Day 42", "[x] Push-ups", "42/42", "(3d)", "[ ] Squats", "10/63", "3 day streak"} {
		if !strings.Contains(out, want) {
			t.Errorf("status board missing %q:\n%s", want, out)
		}
	}
}

func TestRenderLinePlain(t *testing.T) {
	got := renderLine(ExerciseLine{Name: "Sit-ups", Goal: 84, Count: 0}, true)
	if !strings.HasPrefix(got, "[ ] Sit-ups") {
		t.Errorf("renderLine = %q", got)
	}
}
