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
	"bufio"
	"io"
	"strings"
)

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
)

// LaTeXWriter writes each grid as a tabular environment ready to paste
// into a paper. Tallies follow as plain "key: value" lines.
//
// Labels are escaped. Missing is written verbatim, so it may be a macro.
type LaTeXWriter struct {
	Missing string
}

// Write implements Writer.
func (lw *LaTeXWriter) Write(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	for i := range doc.Grids {
		lw.grid(bw, &doc.Grids[i])
		bw.WriteString("\n")
	}
	for _, t := range doc.Tallies {
		bw.WriteString(t.Title + ":\n")
		for _, it := range t.Items {
			bw.WriteString(it.Key + ": " + formatItem(it, lw.Missing) + "\n")
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func (lw *LaTeXWriter) grid(bw *bufio.Writer, g *Grid) {
	if g.Title != "" {
		bw.WriteString("% " + g.Title + "\n")
	}
	bw.WriteString(`\begin{tabular}{l` + strings.Repeat("r", len(g.Columns)) + "}\n")

	head := make([]string, 0, len(g.Columns)+1)
	head = append(head, latexEscaper.Replace(g.Corner))
	for _, c := range g.Columns {
		head = append(head, latexEscaper.Replace(c))
	}
	bw.WriteString(strings.Join(head, " & ") + ` \\` + "\n")

	for _, r := range g.Rows {
		cells := make([]string, 0, len(r.Cells)+1)
		cells = append(cells, latexEscaper.Replace(r.Label))
		for j, v := range r.Cells {
			cells = append(cells, formatValue(v, g.digits(j), lw.Missing))
		}
		bw.WriteString(strings.Join(cells, " & ") + ` \\` + "\n")
	}
	bw.WriteString(`\end{tabular}` + "\n")
}
