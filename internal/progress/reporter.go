package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// StatusOK marks a confirmed artifact in the table.
const StatusOK = "OK"

// Row is one line of the readiness table.
type Row struct {
	// Path is the local location of the artifact.
	Path string
	// Valid reports whether the artifact is confirmed.
	Valid bool
	// Source is where the operator can retrieve the artifact from.
	Source string
}

// Reporter draws snapshots of the readiness table.
type Reporter interface {
	Report(rows []Row) error
}

// Ellipsis marks a line cut at the terminal width.
const Ellipsis = "…"

// New picks a TerminalReporter when out is a terminal and a PlainReporter otherwise.
func New(out *os.File) Reporter {
	fd := int(out.Fd())
	if term.IsTerminal(fd) {
		return NewTerminalReporter(out, WithWidth(func() int {
			width, _, err := term.GetSize(fd)
			if err != nil {
				return 0
			}

			return width
		}))
	}

	return NewPlainReporter(out)
}

// TerminalReporter redraws the table over its previous rendering.
type TerminalReporter struct {
	out io.Writer
	// width reports the terminal width in cells, zero when unknown.
	width func() int
	// drawn is the number of rows written by the previous snapshot.
	drawn   int
	ok      lipgloss.Style
	pending lipgloss.Style
	header  lipgloss.Style
}

// TerminalOption configures a TerminalReporter.
type TerminalOption func(*TerminalReporter)

// WithWidth sets the function queried for the terminal width before each redraw.
// Lines wider than the terminal are cut so that every line occupies one row.
func WithWidth(width func() int) TerminalOption {
	return func(r *TerminalReporter) {
		if width != nil {
			r.width = width
		}
	}
}

// NewTerminalReporter creates a reporter drawing on out with colours.
func NewTerminalReporter(out io.Writer, opts ...TerminalOption) *TerminalReporter {
	r := &TerminalReporter{
		out:     out,
		width:   func() int { return 0 },
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		pending: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		header:  lipgloss.NewStyle().Bold(true),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Report moves the cursor back over the previous table and draws rows.
func (r *TerminalReporter) Report(rows []Row) error {
	var b strings.Builder

	if r.drawn > 0 {
		b.WriteString(ansi.CursorUp(r.drawn))
	}

	width := r.width()

	lines := render(rows, r.header.Render, r.ok.Render, r.pending.Render)
	for _, line := range lines {
		if width > 0 && ansi.StringWidth(line) > width {
			line = ansi.Truncate(line, width, Ellipsis)
		}

		b.WriteString("\r")
		b.WriteString(ansi.EraseEntireLine)
		b.WriteString(line)
		b.WriteString("\n")
	}

	if _, err := io.WriteString(r.out, b.String()); err != nil {
		return fmt.Errorf("draw readiness table: %w", err)
	}

	r.drawn = len(lines)

	return nil
}

// PlainReporter appends every snapshot without escape sequences.
type PlainReporter struct {
	out io.Writer
}

// NewPlainReporter creates an append-only reporter.
func NewPlainReporter(out io.Writer) *PlainReporter {
	return &PlainReporter{
		out: out,
	}
}

// Report writes the table followed by a blank line.
func (r *PlainReporter) Report(rows []Row) error {
	lines := render(rows, plain, plain, plain)

	if _, err := io.WriteString(r.out, strings.Join(lines, "\n")+"\n\n"); err != nil {
		return fmt.Errorf("write readiness table: %w", err)
	}

	return nil
}

func plain(s ...string) string {
	return strings.Join(s, " ")
}

// render lays out the header and one line per row with the path column padded.
func render(rows []Row, header, ok, pending func(...string) string) []string {
	confirmed := 0
	width := 0

	for _, row := range rows {
		if row.Valid {
			confirmed++
		}

		width = max(width, ansi.StringWidth(row.Path))
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, header(fmt.Sprintf("Artifacts ready: %d/%d", confirmed, len(rows))))

	for _, row := range rows {
		padding := strings.Repeat(" ", width-ansi.StringWidth(row.Path))

		status := ok(StatusOK)
		if !row.Valid {
			status = pending(row.Source)
		}

		lines = append(lines, "  "+row.Path+padding+"  "+status)
	}

	return lines
}
