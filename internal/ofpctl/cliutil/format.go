// Package cliutil provides shared formatting helpers for valvectl: ANSI
// color helpers and column-aligned table output for the fixed small
// tables its demo commands print.
package cliutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

func Green(s string) string  { return "\033[32m" + s + "\033[0m" }
func Yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func Red(s string) string    { return "\033[31m" + s + "\033[0m" }
func Dim(s string) string    { return "\033[2m" + s + "\033[0m" }

// Table produces column-aligned output. Headers and a dash divider are
// written lazily on Flush, so an empty table produces no output.
//
// When stdout is a terminal (or COLUMNS is set), output is constrained to
// the terminal width the way the teacher's pkg/cli/table.go does.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Row appends a row to the table.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes all buffered rows to stdout.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i, v := range row {
			if i < len(widths) && visualLen(v) > widths[i] {
				widths[i] = visualLen(v)
			}
		}
	}
	if tw := terminalWidth(); tw > 0 {
		widths = capWidths(widths, t.headers, tw)
	}
	t.printRow(t.headers, widths)
	dividers := make([]string, len(t.headers))
	for i := range t.headers {
		dividers[i] = strings.Repeat("-", widths[i])
	}
	t.printRow(dividers, widths)
	for _, row := range t.rows {
		t.printRow(row, widths)
	}
}

func (t *Table) printRow(row []string, widths []int) {
	parts := make([]string, len(widths))
	for i := range widths {
		val := ""
		if i < len(row) {
			val = row[i]
		}
		if vl := visualLen(val); vl > widths[i] {
			val = truncate(val, widths[i])
		}
		pad := widths[i] - visualLen(val)
		if pad < 0 {
			pad = 0
		}
		parts[i] = val + strings.Repeat(" ", pad)
	}
	fmt.Fprintln(os.Stdout, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// truncate shortens s to at most width visual characters, replacing the
// last one with a '.' when the cut is lossy, so a capped column
// never pushes the line past the terminal width.
func truncate(s string, width int) string {
	if visualLen(s) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	if width == 1 {
		return "."
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= width-1 {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteRune('.')
	return b.String()
}

// terminalWidth returns the terminal column count for stdout. COLUMNS
// overrides the detected width; 0 means no width constraint should be
// applied (stdout isn't a terminal and COLUMNS is unset).
func terminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 0 {
			return n
		}
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return w
}

// capWidths reduces column widths so the rendered line fits within
// termWidth, never shrinking a column below its header width.
func capWidths(widths []int, headers []string, termWidth int) []int {
	result := make([]int, len(widths))
	copy(result, widths)

	minWidths := make([]int, len(headers))
	for i, h := range headers {
		minWidths[i] = visualLen(h)
	}

	const colGap = 2

	for {
		lineWidth := 0
		for _, w := range result {
			lineWidth += w
		}
		if len(result) > 1 {
			lineWidth += colGap * (len(result) - 1)
		}
		if lineWidth <= termWidth {
			break
		}

		maxW, maxI := -1, -1
		for i, w := range result {
			if w > minWidths[i] && w > maxW {
				maxW = w
				maxI = i
			}
		}
		if maxI < 0 {
			break
		}

		excess := lineWidth - termWidth
		available := result[maxI] - minWidths[maxI]
		if excess > available {
			excess = available
		}
		result[maxI] -= excess
	}

	return result
}

// visualLen returns the display width of s, excluding ANSI escape codes.
func visualLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\033':
			inEscape = true
		default:
			n++
		}
	}
	return n
}
