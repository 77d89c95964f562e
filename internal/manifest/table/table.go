// Package table renders small aligned text tables for operator previews and
// diagnostics.
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const cellGap = 2

// Render writes header and rows with every column padded to its widest cell.
// Rows shorter than the header are padded with empty cells. A row holding a
// single cell equal to sep is written as-is, unpadded.
func Render(w io.Writer, header []string, rows [][]string, sep string) error {
	widths := make([]int, len(header))
	measure := func(cells []string) {
		for i, c := range cells {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := lipgloss.Width(c); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(header)
	for _, r := range rows {
		if isSeparator(r, sep) {
			continue
		}
		measure(r)
	}

	if err := writeRow(w, header, widths); err != nil {
		return err
	}
	for _, r := range rows {
		if isSeparator(r, sep) {
			if _, err := fmt.Fprintln(w, sep); err != nil {
				return err
			}
			continue
		}
		if err := writeRow(w, r, widths); err != nil {
			return err
		}
	}
	return nil
}

func isSeparator(row []string, sep string) bool {
	return sep != "" && len(row) == 1 && row[0] == sep
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(widths)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = lipgloss.NewStyle().Width(width + cellGap).Render(cell)
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, ""), " "))
	return err
}
