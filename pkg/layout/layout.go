// Package layout arranges compacted address ranges into printable
// pages of fixed columns and rows.
//
// Lines are placed column-major: the first column fills top to bottom
// up to the configured row count, then the second, up to the configured
// column count per page; further content spills onto additional pages.
// A range occupies exactly one line regardless of how many exceptions
// it carries, which is what keeps the format compact.
//
// A section that needs more than one page is flagged as overflowing on
// every one of its pages. Overflow is a signal to the operator to
// reduce density (typically by lowering the row count) and re-run; the
// overflowing pages are still produced so the operator can see exactly
// how much does not fit.
//
// Layout is deterministic: identical input and configuration produce
// identical pages, byte for byte.
package layout

import (
	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/errors"
)

// Config bounds the printable grid.
type Config struct {
	// ColumnRows is the maximum number of data rows per column,
	// determined empirically by how many rows fit when printing with
	// the desired settings.
	ColumnRows int

	// MaxColumns is the maximum number of columns per page.
	MaxColumns int

	// PageNumberRow reserves one row per column for a page-number
	// header whenever a section spans more than two columns. Off by
	// default.
	PageNumberRow bool
}

// Validate checks the grid bounds. Non-positive bounds are a
// configuration error, surfaced before any processing begins.
func (c Config) Validate() error {
	return errors.ValidateLayoutBounds(c.ColumnRows, c.MaxColumns)
}

// Cell is one printable line: a compacted range at a column and row
// position within its page.
type Cell struct {
	Range  compact.Range
	Column int // column index within the page, 0-based
	Row    int // row index within the column, 0-based
}

// Column is an ordered run of cells, at most Config.ColumnRows long.
type Column struct {
	Cells []Cell
}

// Page is one printable page of a section.
type Page struct {
	// Title labels the page, typically with the polling place name.
	Title string

	// Number is the 1-based page number within the section.
	Number int

	// Total is the number of pages in the section.
	Total int

	// Columns are the page's columns in print order.
	Columns []Column

	// Overflow is true when the section's total line count exceeds
	// the capacity of a single page (ColumnRows * MaxColumns).
	Overflow bool
}

// Rows returns the height of the page's tallest column.
func (p Page) Rows() int {
	rows := 0
	for _, c := range p.Columns {
		if len(c.Cells) > rows {
			rows = len(c.Cells)
		}
	}
	return rows
}

// Lines returns the number of cells on the page.
func (p Page) Lines() int {
	n := 0
	for _, c := range p.Columns {
		n += len(c.Cells)
	}
	return n
}

// Section is one unit of layout: the compacted ranges for a precinct
// table or polling place, laid out starting on a fresh page.
type Section struct {
	Title  string
	Ranges []compact.Range
}

// Build lays out one section into pages.
func Build(sec Section, cfg Config) ([]Page, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sec.Ranges) == 0 {
		return nil, nil
	}

	rows := cfg.ColumnRows
	if cfg.PageNumberRow && rows > 1 {
		// Reserve a header row when the section spans more than two
		// columns, as multi-page sheets carry page numbers.
		if cols := ceilDiv(len(sec.Ranges), rows); cols > 2 {
			rows--
		}
	}

	capacity := rows * cfg.MaxColumns
	overflow := len(sec.Ranges) > capacity
	total := ceilDiv(len(sec.Ranges), capacity)

	pages := make([]Page, 0, total)
	for p := 0; p < total; p++ {
		page := Page{
			Title:    sec.Title,
			Number:   p + 1,
			Total:    total,
			Overflow: overflow,
		}
		start := p * capacity
		end := min(start+capacity, len(sec.Ranges))
		for i := start; i < end; i++ {
			col := (i - start) / rows
			row := (i - start) % rows
			if col == len(page.Columns) {
				page.Columns = append(page.Columns, Column{})
			}
			page.Columns[col].Cells = append(page.Columns[col].Cells, Cell{
				Range:  sec.Ranges[i],
				Column: col,
				Row:    row,
			})
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// BuildAll lays out several sections in order, each starting on a
// fresh page.
func BuildAll(secs []Section, cfg Config) ([]Page, error) {
	var pages []Page
	for _, sec := range secs {
		ps, err := Build(sec, cfg)
		if err != nil {
			return nil, err
		}
		pages = append(pages, ps...)
	}
	return pages, nil
}

// ceilDiv returns n divided by d, rounded up.
func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
