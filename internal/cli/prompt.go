// Package cli holds the terminal front end of the report tools: a confirmation prompt, a
// notification printer and a line-oriented report editor.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/session"
)

// PromptConfirmer asks yes/no questions on a terminal. It shares its reader with the
// editor so buffered input is never lost between them.
type PromptConfirmer struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

// NewPromptConfirmer creates a confirmer. With assumeYes every prompt is approved without
// reading input.
func NewPromptConfirmer(in *bufio.Reader, out io.Writer, assumeYes bool) *PromptConfirmer {
	return &PromptConfirmer{in: in, out: out, assumeYes: assumeYes}
}

// Confirm implements domain.Confirmer.
func (p *PromptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.assumeYes {
		fmt.Fprintf(p.out, "%s [y/N]: y\n", prompt)
		return true, nil
	}

	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	response, err := p.in.ReadString('\n')
	if err != nil && response == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes", "д", "да":
		return true, nil
	default:
		return false, nil
	}
}

var _ domain.Confirmer = (*PromptConfirmer)(nil)

// PrintToasts returns a Toaster callback writing each notification as one line.
func PrintToasts(out io.Writer) func(session.Toast) {
	return func(t session.Toast) {
		fmt.Fprintf(out, "[%s] %s\n", t.Severity, t.Message)
	}
}
