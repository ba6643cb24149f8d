package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one rendered column. Numeric columns (ids, attempt
// counts) are right-aligned; maxWidth, when set, clips long cell content
// such as delivery error text.
type tableColumn struct {
	header   string
	numeric  bool
	maxWidth int
}

// errorCellWidth bounds the Last Error column so one noisy delivery
// failure cannot blow out the whole listing.
const errorCellWidth = 48

func renderTable(cols []tableColumn, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col.header
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		cells := make(table.Row, len(cols))
		for i, col := range cols {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if col.maxWidth > 0 {
				cell = clipCell(cell, col.maxWidth)
			}
			cells[i] = cell
		}
		tw.AppendRow(cells)
	}

	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, col := range cols {
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func clipCell(cell string, max int) string {
	if max <= 3 || len(cell) <= max {
		return cell
	}
	return strings.TrimRight(cell[:max-3], " ") + "..."
}
