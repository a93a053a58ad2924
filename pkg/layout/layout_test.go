package layout

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// ranges generates n distinct single-number ranges.
func ranges(n int) []compact.Range {
	rs := make([]compact.Range, n)
	for i := range rs {
		rs[i] = compact.Range{
			Street:   fmt.Sprintf("STREET %d", i),
			Parity:   roster.ParityAll,
			Low:      1,
			High:     9,
			Precinct: roster.Precinct{Ward: 1, Number: 1},
		}
	}
	return rs
}

func TestBuildSinglePage(t *testing.T) {
	// 30 lines into a 20-row, 2-column grid: one page, columns of 20
	// and 10, no overflow.
	pages, err := Build(Section{Title: "HALL", Ranges: ranges(30)}, Config{ColumnRows: 20, MaxColumns: 2})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if len(pages) != 1 {
		t.Fatalf("Build() returned %d pages, want 1", len(pages))
	}
	page := pages[0]
	if page.Overflow {
		t.Error("Overflow = true, want false")
	}
	if len(page.Columns) != 2 {
		t.Fatalf("page has %d columns, want 2", len(page.Columns))
	}
	if got := len(page.Columns[0].Cells); got != 20 {
		t.Errorf("first column has %d cells, want 20", got)
	}
	if got := len(page.Columns[1].Cells); got != 10 {
		t.Errorf("second column has %d cells, want 10", got)
	}
	if page.Number != 1 || page.Total != 1 {
		t.Errorf("page numbering = %d of %d, want 1 of 1", page.Number, page.Total)
	}
}

func TestBuildOverflowSingleColumn(t *testing.T) {
	pages, err := Build(Section{Title: "HALL", Ranges: ranges(30)}, Config{ColumnRows: 20, MaxColumns: 1})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if len(pages) != 2 {
		t.Fatalf("Build() returned %d pages, want 2", len(pages))
	}
	for i, page := range pages {
		if !page.Overflow {
			t.Errorf("page %d Overflow = false, want true", i+1)
		}
	}
}

func TestBuildOverflowSpillsPages(t *testing.T) {
	pages, err := Build(Section{Title: "HALL", Ranges: ranges(50)}, Config{ColumnRows: 20, MaxColumns: 2})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	// Capacity is 40: two pages, both flagged.
	if len(pages) != 2 {
		t.Fatalf("Build() returned %d pages, want 2", len(pages))
	}
	if pages[0].Lines() != 40 || pages[1].Lines() != 10 {
		t.Errorf("page lines = %d, %d, want 40, 10", pages[0].Lines(), pages[1].Lines())
	}
	for i, page := range pages {
		if !page.Overflow {
			t.Errorf("page %d Overflow = false, want true", i+1)
		}
		if page.Total != 2 {
			t.Errorf("page %d Total = %d, want 2", i+1, page.Total)
		}
	}
}

func TestBuildColumnMajorOrder(t *testing.T) {
	rs := ranges(5)
	pages, err := Build(Section{Title: "HALL", Ranges: rs}, Config{ColumnRows: 3, MaxColumns: 2})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	page := pages[0]
	var got []string
	for _, col := range page.Columns {
		for _, cell := range col.Cells {
			got = append(got, cell.Range.Street)
		}
	}
	want := []string{"STREET 0", "STREET 1", "STREET 2", "STREET 3", "STREET 4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cell order = %v, want %v", got, want)
	}

	// Positions are recorded per cell.
	last := page.Columns[1].Cells[1]
	if last.Column != 1 || last.Row != 1 {
		t.Errorf("last cell at (%d, %d), want (1, 1)", last.Column, last.Row)
	}
}

func TestBuildColumnHeightBound(t *testing.T) {
	for _, n := range []int{1, 7, 20, 41, 80} {
		pages, err := Build(Section{Ranges: ranges(n)}, Config{ColumnRows: 20, MaxColumns: 2})
		if err != nil {
			t.Fatalf("Build(%d) error: %v", n, err)
		}
		for _, page := range pages {
			for _, col := range page.Columns {
				if len(col.Cells) > 20 {
					t.Errorf("Build(%d): column height %d exceeds 20", n, len(col.Cells))
				}
			}
		}
	}
}

func TestBuildPageNumberRow(t *testing.T) {
	// 50 lines across more than two columns with the page-number row
	// enabled: each column loses a row to the header.
	pages, err := Build(Section{Ranges: ranges(50)}, Config{ColumnRows: 20, MaxColumns: 2, PageNumberRow: true})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if got := pages[0].Rows(); got != 19 {
		t.Errorf("Rows() = %d, want 19 with the page-number row reserved", got)
	}

	// A section that fits two columns keeps its full height.
	pages, err = Build(Section{Ranges: ranges(30)}, Config{ColumnRows: 20, MaxColumns: 2, PageNumberRow: true})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got := pages[0].Rows(); got != 20 {
		t.Errorf("Rows() = %d, want 20 when the section fits two columns", got)
	}
}

func TestBuildEmptySection(t *testing.T) {
	pages, err := Build(Section{Title: "HALL"}, Config{ColumnRows: 20, MaxColumns: 2})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if pages != nil {
		t.Errorf("Build() = %+v, want nil for an empty section", pages)
	}
}

func TestBuildInvalidConfig(t *testing.T) {
	cases := []Config{
		{ColumnRows: 0, MaxColumns: 2},
		{ColumnRows: 20, MaxColumns: 0},
		{ColumnRows: -1, MaxColumns: -1},
	}
	for _, cfg := range cases {
		if _, err := Build(Section{Ranges: ranges(1)}, cfg); err == nil {
			t.Errorf("Build() with %+v succeeded, want error", cfg)
		}
	}
}

func TestBuildAllSectionsStartFresh(t *testing.T) {
	secs := []Section{
		{Title: "HALL A", Ranges: ranges(25)},
		{Title: "HALL B", Ranges: ranges(5)},
	}

	pages, err := BuildAll(secs, Config{ColumnRows: 20, MaxColumns: 2})
	if err != nil {
		t.Fatalf("BuildAll() error: %v", err)
	}

	if len(pages) != 2 {
		t.Fatalf("BuildAll() returned %d pages, want 2", len(pages))
	}
	if pages[0].Title != "HALL A" || pages[1].Title != "HALL B" {
		t.Errorf("page titles = %q, %q, want sections kept separate", pages[0].Title, pages[1].Title)
	}
	if pages[1].Lines() != 5 {
		t.Errorf("second section page has %d lines, want 5", pages[1].Lines())
	}
}

func TestBuildDeterminism(t *testing.T) {
	sec := Section{Title: "HALL", Ranges: ranges(37)}
	cfg := Config{ColumnRows: 10, MaxColumns: 3}

	first, err := Build(sec, cfg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	second, err := Build(sec, cfg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Build() not deterministic across identical runs")
	}
}
