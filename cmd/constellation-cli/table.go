package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// resolveFormat turns "auto" into table on a terminal and json otherwise.
func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table"
	}
	return "json"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func writeTable(w io.Writer, v any) error {
	var t *table.Table
	switch v := v.(type) {
	case matrix.Matrix:
		ids := v.IDs()
		t = newTable(append([]string{""}, ids...)...)
		for _, a := range ids {
			row := []string{a}
			for _, b := range ids {
				if s, ok := v.Score(a, b); ok {
					row = append(row, formatScore(s))
				} else {
					row = append(row, "-")
				}
			}
			t.Row(row...)
		}
	case []relationship.Relationship:
		t = newTable("SOURCE", "TARGET", "STRENGTH")
		for _, r := range v {
			t.Row(r.SourceID, r.TargetID, formatScore(r.Strength))
		}
	case []string:
		t = newTable("NOTE")
		for _, id := range v {
			t.Row(id)
		}
	case graph.Graph:
		t = newTable("SOURCE", "TARGET", "TYPE", "STRENGTH")
		for _, e := range v.Edges {
			strength := ""
			if e.Strength != nil {
				strength = formatScore(*e.Strength)
			}
			t.Row(e.Source, e.Target, string(e.Type), strength)
		}
	default:
		return fmt.Errorf("table output is not supported for %T", v)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 4, 64)
}
