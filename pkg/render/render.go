// Package render serializes laid-out pages into a printable HTML
// document.
//
// The emitter is a thin adapter: all routing information lives in the
// compacted ranges, and all placement in the layout pages. Rendering a
// line is delegated to a Formatter so callers can adjust the printed
// form without touching the core. The resulting document is meant to
// be printed from a browser; page breaks are expressed with CSS.
package render

import (
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// Book is the printable output for one polling place: its laid-out
// pages plus the precincts served there, which drive copy counts and
// the homogeneous-poll skip.
type Book struct {
	Poll      string // display name of the polling place
	Pages     []layout.Page
	Precincts []roster.Precinct // distinct precincts at this poll
}

// Wards returns the distinct wards present at the poll.
func (b Book) Wards() []int {
	seen := make(map[int]bool)
	var ws []int
	for _, p := range b.Precincts {
		if !seen[p.Ward] {
			seen[p.Ward] = true
			ws = append(ws, p.Ward)
		}
	}
	sort.Ints(ws)
	return ws
}

// Row is one rendered table line. Fields are HTML fragments: the
// formatter is responsible for escaping and may use entities such as
// &nbsp; for alignment.
type Row struct {
	Street   string
	Numbers  string
	Side     string
	Precinct string
	Note     string // inline exception annotation, may be empty
}

// RowContext carries per-book alignment information to the formatter.
type RowContext struct {
	// NumberWidth is the widest printed house number in the book.
	NumberWidth int

	// PrecinctWidth is the widest printed precinct number in the book.
	PrecinctWidth int

	// IncludeWard is true when the poll serves more than one ward, in
	// which case precincts print as "ward-precinct".
	IncludeWard bool
}

// Formatter renders one compacted range as a table row.
type Formatter interface {
	Format(r compact.Range, ctx RowContext) Row
}

// Options configures the HTML document.
type Options struct {
	// Formatter renders lines; nil means the default table formatter.
	Formatter Formatter

	// DoubleSided inserts an extra page break after any book with an
	// odd page count, so each polling place stays on its own sheet of
	// paper when printing double-sided.
	DoubleSided bool

	// CopiesPerPrecinct repeats each book once per precinct at the
	// poll, multiplied by this count.
	CopiesPerPrecinct int

	// CopiesPerPollingPlace repeats each book this many times.
	CopiesPerPollingPlace int

	// PrintHomogeneous includes polls that serve a single precinct.
	// These need no lookup sheet (every voter goes to the same table),
	// so they are skipped by default.
	PrintHomogeneous bool
}

// copies returns how many times a book with n precincts is emitted.
func (o Options) copies(n int) int {
	c := o.CopiesPerPrecinct*n + o.CopiesPerPollingPlace
	if c == 0 {
		c = 1
	}
	return c
}

// HTML writes the complete printable document for the given books.
// Books are emitted in input order; the caller owns the ordering.
func HTML(w io.Writer, books []Book, opts Options) error {
	f := opts.Formatter
	if f == nil {
		f = TableFormatter{}
	}

	ew := &errWriter{w: w}
	ew.printf("<html>\n<head>\n<meta charset=\"utf-8\">\n")
	ew.printf("<style>\n")
	ew.printf("    .columnTable th{background-color: #c2c2c2;}\n")
	ew.printf("    .columnTable tr:nth-child(even){background-color: #e2e2e2;}\n")
	ew.printf("</style>\n</head>\n<body>\n")

	sheets := 0
	for _, book := range books {
		if len(book.Pages) == 0 {
			continue
		}
		if !opts.PrintHomogeneous && len(book.Precincts) < 2 {
			continue
		}

		ctx := rowContext(book)
		for i := 0; i < opts.copies(len(book.Precincts)); i++ {
			for _, page := range book.Pages {
				emitPage(ew, book, page, ctx, f)
				sheets++
			}
			if opts.DoubleSided && sheets%2 == 1 {
				ew.printf("<div style=\"page-break-after: always;\"></div>\n")
				sheets++
			}
		}
	}

	ew.printf("</body></html>\n")
	return ew.err
}

// emitPage writes one page: title, optional page number, and the
// column tables side by side.
func emitPage(ew *errWriter, book Book, page layout.Page, ctx RowContext, f Formatter) {
	title := book.Poll
	if wards := book.Wards(); !ctx.IncludeWard && len(wards) == 1 {
		title += fmt.Sprintf(" (Ward %d)", wards[0])
	}
	ew.printf("<h2>%s</h2>\n", html.EscapeString(title))
	if page.Total > 1 {
		ew.printf("<h3>Page %d of %d</h3>\n", page.Number, page.Total)
	}

	ew.printf("<table width=\"100%%\" style=\"page-break-after: always;\">\n<tbody>\n<tr>\n")
	for _, col := range page.Columns {
		ew.printf("<td style=\"vertical-align: top;\">\n")
		ew.printf("<table class=\"columnTable\"><tbody>\n")
		ew.printf("<tr><th align=\"left\">Street</th><th>#</th><th>Side</th><th>Prec.</th></tr>\n")
		for _, cell := range col.Cells {
			row := f.Format(cell.Range, ctx)
			prec := row.Precinct
			if row.Note != "" {
				prec += " <small>" + row.Note + "</small>"
			}
			ew.printf("<tr><td>%s</td><td style=\"font-family: monospace;\">%s</td><td>%s</td>"+
				"<td style=\"font-family: monospace; text-align: right;\">%s</td></tr>\n",
				row.Street, row.Numbers, row.Side, prec)
		}
		ew.printf("</tbody></table></td>\n")
	}
	ew.printf("</tr>\n</tbody>\n</table>\n")
}

// rowContext computes book-wide alignment widths.
func rowContext(book Book) RowContext {
	ctx := RowContext{IncludeWard: len(book.Wards()) > 1}
	for _, page := range book.Pages {
		for _, col := range page.Columns {
			for _, cell := range col.Cells {
				r := cell.Range
				ctx.NumberWidth = maxInt(ctx.NumberWidth, digits(r.Low), digits(r.High))
				ctx.PrecinctWidth = maxInt(ctx.PrecinctWidth, digits(r.Precinct.Number))
			}
		}
	}
	return ctx
}

// TableFormatter is the default formatter, producing the classic
// four-column sheet: street, padded numeric range, side, precinct.
type TableFormatter struct{}

// Format renders r using monospace-aligned numbers. Open bounds print
// as blank padding next to an en dash, exactly like a hand-trimmed
// sheet; exceptions become an inline "exc." annotation.
func (TableFormatter) Format(r compact.Range, ctx RowContext) Row {
	row := Row{
		Street: html.EscapeString(r.Street),
		Side:   r.Parity.Label(),
	}

	switch {
	case r.OpenLow && r.OpenHigh:
		row.Numbers = ""
	case r.OpenLow:
		row.Numbers = nbspPad("", ctx.NumberWidth) + "&ndash;" + nbspPad(itoa(r.High), ctx.NumberWidth)
	case r.OpenHigh:
		row.Numbers = nbspPad(itoa(r.Low), ctx.NumberWidth) + "&ndash;" + nbspPad("", ctx.NumberWidth)
	case r.Low == r.High:
		row.Numbers = nbspPad(itoa(r.Low), ctx.NumberWidth)
	default:
		row.Numbers = nbspPad(itoa(r.Low), ctx.NumberWidth) + "&ndash;" + nbspPad(itoa(r.High), ctx.NumberWidth)
	}

	if ctx.IncludeWard {
		row.Precinct = fmt.Sprintf("%d-%s", r.Precinct.Ward, nbspPad(itoa(r.Precinct.Number), ctx.PrecinctWidth))
	} else {
		row.Precinct = itoa(r.Precinct.Number)
	}

	if len(r.Exceptions) > 0 {
		parts := make([]string, len(r.Exceptions))
		for i, e := range r.Exceptions {
			var p string
			if ctx.IncludeWard {
				p = e.Precinct.String()
			} else {
				p = itoa(e.Precinct.Number)
			}
			parts[i] = fmt.Sprintf("%d&rarr;%s", e.Number, p)
		}
		row.Note = "exc. " + strings.Join(parts, ", ")
	}

	return row
}

// nbspPad right-aligns val to width using non-breaking spaces.
func nbspPad(val string, width int) string {
	if pad := width - len(val); pad > 0 {
		return strings.Repeat("&nbsp;", pad) + val
	}
	return val
}

// digits returns the printed width of n.
func digits(n int) int {
	return len(itoa(n))
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func maxInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// errWriter accumulates the first write error, keeping the emit loops
// free of per-line error plumbing.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
