package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/render"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// bookBrowserModel is the bubbletea model for browsing built books.
// It has two screens: the polling-place list and a per-poll street
// range detail.
type bookBrowserModel struct {
	Books  []render.Book
	Cursor int
	Height int
	Offset int

	// Detail is the index of the open book, or -1 for the list.
	Detail       int
	DetailOffset int
}

// newBookBrowserModel creates a browser over the given books.
func newBookBrowserModel(books []render.Book) bookBrowserModel {
	return bookBrowserModel{
		Books:  books,
		Height: 15,
		Detail: -1,
	}
}

func (m bookBrowserModel) Init() tea.Cmd {
	return nil
}

func (m bookBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Detail >= 0 {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m bookBrowserModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
			if m.Cursor < m.Offset {
				m.Offset = m.Cursor
			}
		}
	case "down", "j":
		if m.Cursor < len(m.Books)-1 {
			m.Cursor++
			if m.Cursor >= m.Offset+m.Height {
				m.Offset = m.Cursor - m.Height + 1
			}
		}
	case "enter":
		m.Detail = m.Cursor
		m.DetailOffset = 0
	}
	return m, nil
}

func (m bookBrowserModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		m.Detail = -1
	case "up", "k":
		if m.DetailOffset > 0 {
			m.DetailOffset--
		}
	case "down", "j":
		if m.DetailOffset < len(m.detailRanges())-1 {
			m.DetailOffset++
		}
	}
	return m, nil
}

func (m bookBrowserModel) View() string {
	if m.Detail >= 0 {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m bookBrowserModel) viewList() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Polling Places"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ open  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Books) {
		end = len(m.Books)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		book := m.Books[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		overflow := ""
		for _, page := range book.Pages {
			if page.Overflow {
				overflow = iconWarning
				break
			}
		}

		rows = append(rows, []string{
			cursor,
			book.Poll,
			precinctList(book.Precincts),
			fmt.Sprintf("%d", len(book.Pages)),
			overflow,
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Polling Place", "Precincts", "Pages", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			actualIdx := m.Offset + row
			if actualIdx == m.Cursor {
				return listSelectedStyle
			}
			if col == 4 {
				return StyleWarning
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Books))))

	return b.String()
}

// detailRanges flattens the open book's pages back into range order.
func (m bookBrowserModel) detailRanges() []compact.Range {
	if m.Detail < 0 || m.Detail >= len(m.Books) {
		return nil
	}
	var ranges []compact.Range
	for _, page := range m.Books[m.Detail].Pages {
		for _, col := range page.Columns {
			for _, cell := range col.Cells {
				ranges = append(ranges, cell.Range)
			}
		}
	}
	return ranges
}

func (m bookBrowserModel) viewDetail() string {
	book := m.Books[m.Detail]
	ranges := m.detailRanges()

	var b strings.Builder
	b.WriteString(StyleTitle.Render(book.Poll))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ scroll  esc back  ctrl+c quit"))
	b.WriteString("\n\n")

	end := m.DetailOffset + m.Height
	if end > len(ranges) {
		end = len(ranges)
	}

	rows := [][]string{}
	for i := m.DetailOffset; i < end; i++ {
		r := ranges[i]
		rows = append(rows, []string{r.Street, rangeNumbers(r), r.Parity.Label(), r.Precinct.String()})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Street", "Numbers", "Side", "Precinct").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})
	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d-%d/%d]", m.DetailOffset+1, end, len(ranges))))

	return b.String()
}

// rangeNumbers formats a range's house numbers for terminal display.
func rangeNumbers(r compact.Range) string {
	switch {
	case r.OpenLow && r.OpenHigh:
		return "all"
	case r.OpenLow:
		return fmt.Sprintf("up to %d", r.High)
	case r.OpenHigh:
		return fmt.Sprintf("%d and up", r.Low)
	case r.Low == r.High:
		return fmt.Sprintf("%d", r.Low)
	default:
		return fmt.Sprintf("%d-%d", r.Low, r.High)
	}
}

// precinctList joins precinct labels for the list view.
func precinctList(ps []roster.Precinct) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}
