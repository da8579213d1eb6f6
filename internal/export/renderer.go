// Package export renders report documents and delivers them to storage sinks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/oscillometry-report-server/internal/domain"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX     Format = "xlsx"
	FormatMarkdown Format = "md"
)

// Renderer writes a report document in one format.
type Renderer interface {
	Format() Format
	ContentType() string
	Render(w io.Writer, doc *domain.ExportDocument) error
}

// ParseFormat resolves a user supplied format name. An empty name selects XLSX.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xlsx", "excel":
		return FormatXLSX, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, name)
	}
}

// RendererFor returns the renderer of format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatXLSX:
		return XLSXRenderer{}, nil
	case FormatMarkdown:
		return MarkdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}
}

// FileName returns the document file name with the format extension.
func FileName(doc *domain.ExportDocument, format Format) string {
	return doc.FileName + "." + string(format)
}

func conclusionLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
