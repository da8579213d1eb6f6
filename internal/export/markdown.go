package export

import (
	"io"

	"github.com/nao1215/markdown"

	"github.com/oscillometry-report-server/internal/domain"
)

// MarkdownRenderer writes the report as a Markdown document.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Format() Format { return FormatMarkdown }

func (MarkdownRenderer) ContentType() string { return "text/markdown; charset=utf-8" }

// Render writes the document to w.
func (MarkdownRenderer) Render(w io.Writer, doc *domain.ExportDocument) error {
	md := markdown.NewMarkdown(w)

	md.H1("Импульсная осциллометрия")
	md.PlainText("")
	if doc.PatientLine != "" {
		md.PlainText(doc.PatientLine)
		md.PlainText("")
	}
	if date := doc.LocaleDate(); date != "" {
		md.PlainText("Дата исследования: " + date)
		md.PlainText("")
	}

	if len(doc.Rows) > 0 {
		md.Table(markdown.TableSet{
			Header: rowValues(doc.Rows[0], false),
			Rows:   tableRows(doc.Rows[1:]),
		})
		md.PlainText("")
	}

	md.H2("Заключение")
	md.PlainText("")
	for _, text := range []string{doc.Conclusion1, doc.Conclusion2} {
		if lines := conclusionLines(text); len(lines) > 0 {
			md.BulletList(lines...)
			md.PlainText("")
		}
	}

	if doc.DoctorName != "" {
		md.PlainText("Врач: " + doc.DoctorName)
	}

	return md.Build()
}

// TableMarkdown renders only the report table, for terminal output.
func TableMarkdown(w io.Writer, table domain.ReportTable) error {
	if len(table) == 0 {
		return nil
	}
	md := markdown.NewMarkdown(w)
	md.Table(markdown.TableSet{
		Header: rowValues(table[0], false),
		Rows:   tableRows(table[1:]),
	})
	return md.Build()
}

func tableRows(rows []domain.TableRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowValues(row, true))
	}
	return out
}

func rowValues(row domain.TableRow, emphasize bool) []string {
	values := make([]string, len(row))
	for i, cell := range row {
		values[i] = cell.Value
		if emphasize && cell.Bold && cell.Value != "" {
			values[i] = markdown.Bold(cell.Value)
		}
	}
	return values
}
