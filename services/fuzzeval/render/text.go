// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorTeal  = lipgloss.Color("#2CD7C7")
	colorSlate = lipgloss.Color("#2C4A54")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorSlate)
)

// TextWriter writes the Document as bordered terminal tables. Colors are
// dropped automatically when the output is not a terminal.
type TextWriter struct {
	Missing string
}

// Write implements Writer.
func (tw *TextWriter) Write(w io.Writer, doc *Document) error {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString(titleStyle.Render(doc.Title) + "\n")
	}
	if doc.RunID != "" {
		b.WriteString(mutedStyle.Render("run "+doc.RunID) + "\n")
	}
	b.WriteString("\n")

	for i := range doc.Grids {
		tw.grid(&b, &doc.Grids[i])
		b.WriteString("\n")
	}
	for _, t := range doc.Tallies {
		b.WriteString(titleStyle.Render(t.Title) + "\n")
		width := 0
		for _, it := range t.Items {
			width = max(width, lipgloss.Width(it.Key))
		}
		for _, it := range t.Items {
			b.WriteString("  " + it.Key + strings.Repeat(" ", width-lipgloss.Width(it.Key)) + "  " + formatItem(it, tw.Missing) + "\n")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (tw *TextWriter) grid(b *strings.Builder, g *Grid) {
	if g.Title != "" {
		b.WriteString(titleStyle.Render(g.Title) + "\n")
	}

	rows := make([][]string, 0, len(g.Rows))
	for _, r := range g.Rows {
		cells := make([]string, 0, len(r.Cells)+1)
		cells = append(cells, r.Label)
		for j, v := range r.Cells {
			cells = append(cells, formatValue(v, g.digits(j), tw.Missing))
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorSlate)).
		Headers(append([]string{g.Corner}, g.Columns...)...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			default:
				return cellStyle
			}
		})
	b.WriteString(t.Render() + "\n")
}
