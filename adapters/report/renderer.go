// Package report renders evaluation reports as Markdown or HTML documents.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"eraeval/domain/evaluation"
	"eraeval/internal/errors"
	"eraeval/ports"
)

// Supported output formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// MarkdownRenderer writes a report as a Markdown document with one table
// for the metrics and one for the diagnostics
type MarkdownRenderer struct{}

// HTMLRenderer converts the Markdown document to a standalone HTML page
type HTMLRenderer struct {
	Title string
}

// ForFormat returns the renderer for a format name ("markdown", "md", "html")
func ForFormat(format string) (ports.ReportRenderer, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return MarkdownRenderer{}, nil
	case FormatHTML, "htm":
		return HTMLRenderer{}, nil
	}
	return nil, errors.InvalidInput(fmt.Sprintf("unsupported report format %q", format))
}

// ContentType returns the media type a renderer produces
func ContentType(r ports.ReportRenderer) string {
	if _, ok := r.(HTMLRenderer); ok {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func writeTableRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(cell(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func writeTable(b *strings.Builder, header []string, rows [][]string) {
	writeTableRow(b, header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	writeTableRow(b, sep)
	for _, row := range rows {
		writeTableRow(b, row)
	}
}

// Markdown builds the Markdown document for a report
func Markdown(report *evaluation.Report) string {
	var b strings.Builder
	s := report.Settings

	fmt.Fprintf(&b, "# Evaluation report %s\n\n", report.ID)
	fmt.Fprintf(&b, "- Created: %s\n", report.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if !report.InputHash.IsEmpty() {
		fmt.Fprintf(&b, "- Input hash: `%s`\n", report.InputHash.Short())
	}
	fmt.Fprintf(&b, "- Era column: `%s`\n", s.EraCol)
	fmt.Fprintf(&b, "- Target: `%s`, example: `%s`\n", s.TargetCol, s.ExampleCol)
	if s.FastMode {
		b.WriteString("- Mode: fast\n")
	} else {
		fmt.Fprintf(&b, "- Mode: full (tb %d)\n", s.TBSize)
	}

	b.WriteString("\n## Metrics\n\n")
	header := append([]string{"column"}, report.Header()...)
	rows := make([][]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		row := []string{r.Column, r.Target}
		for _, v := range r.Values() {
			row = append(row, evaluation.FormatValue(v))
		}
		rows = append(rows, row)
	}
	writeTable(&b, header, rows)

	b.WriteString("\n## Diagnostics\n\n")
	if len(report.Diagnostics) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	diags := make([][]string, len(report.Diagnostics))
	for i, d := range report.Diagnostics {
		diags[i] = []string{d.Column, d.Stage, d.Era, string(d.Kind), d.Message}
	}
	writeTable(&b, []string{"column", "stage", "era", "kind", "message"}, diags)
	return b.String()
}

// Render implements ports.ReportRenderer
func (MarkdownRenderer) Render(w io.Writer, report *evaluation.Report) error {
	_, err := io.WriteString(w, Markdown(report))
	return err
}

// Render implements ports.ReportRenderer
func (h HTMLRenderer) Render(w io.Writer, report *evaluation.Report) error {
	title := h.Title
	if title == "" {
		title = fmt.Sprintf("Evaluation report %s", report.ID)
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CompletePage,
	})
	out := markdown.ToHTML([]byte(Markdown(report)), p, renderer)
	_, err := io.Copy(w, bytes.NewReader(out))
	return err
}
