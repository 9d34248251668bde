// Package render draws robot grids and step traces as text.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/wricardo/robot-simulator/sim/engine"
)

const (
	cellFree     = '.'
	cellObstacle = '#'
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Glyph returns the character drawn for a robot facing h.
func Glyph(h engine.Heading) rune {
	switch h {
	case engine.North:
		return '^'
	case engine.East:
		return '>'
	case engine.South:
		return 'v'
	case engine.West:
		return '<'
	default:
		return '?'
	}
}

// Rows returns the grid as GridSize strings, top row first.
func Rows(state engine.RobotState, obstacles engine.ObstacleSet) []string {
	rows := make([]string, engine.GridSize)
	for y := 0; y < engine.GridSize; y++ {
		var b strings.Builder
		for x := 0; x < engine.GridSize; x++ {
			b.WriteRune(cellRune(engine.Position{X: x, Y: y}, state, obstacles))
		}
		rows[y] = b.String()
	}
	return rows
}

func cellRune(p engine.Position, state engine.RobotState, obstacles engine.ObstacleSet) rune {
	switch {
	case p == state.Position:
		return Glyph(state.Heading)
	case obstacles.Contains(p):
		return cellObstacle
	default:
		return cellFree
	}
}

// Grid writes the grid with column and row labels.
func Grid(w io.Writer, state engine.RobotState, obstacles engine.ObstacleSet, color bool) error {
	var b strings.Builder
	b.WriteString("  ")
	for x := 0; x < engine.GridSize; x++ {
		fmt.Fprintf(&b, " %d", x)
	}
	b.WriteByte('\n')

	for y, row := range Rows(state, obstacles) {
		fmt.Fprintf(&b, "%d ", y)
		for _, r := range row {
			b.WriteByte(' ')
			b.WriteString(paint(string(r), cellColor(r), color))
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func cellColor(r rune) string {
	switch r {
	case cellFree:
		return ""
	case cellObstacle:
		return ansiRed
	default:
		return ansiCyan
	}
}

// Trace writes one line per step followed by a summary.
func Trace(w io.Writer, result engine.SimulationResult, color bool) error {
	var b strings.Builder
	for _, step := range result.Steps {
		status := paint("ok", ansiGreen, color)
		if !step.Succeeded {
			status = paint(string(step.Outcome), ansiYellow, color)
		}
		fmt.Fprintf(&b, "%3d  %q  %s %-5s  %s\n",
			step.Index+1, rune(step.Command), step.Position, step.Heading, status)
	}
	b.WriteString(Summary(result))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary returns a one-line description of a run.
func Summary(result engine.SimulationResult) string {
	return fmt.Sprintf("final %s %s, %d ok, %d failed, %.0f%% success",
		result.FinalPosition, result.FinalHeading,
		result.SuccessCount, result.FailureCount, 100*result.SuccessRate())
}

func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Stdout returns a writer for standard output that understands ANSI colors
// on every platform, and whether colors should be used.
func Stdout() (io.Writer, bool) {
	return colorable.NewColorableStdout(), IsTerminal(os.Stdout)
}
