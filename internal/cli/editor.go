package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/session"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

const helpText = `Commands:
  list                       refresh and show the stored patients
  new                        open a blank report
  open <id>                  load a stored patient
  close [id]                 close a report (default: the active one)
  switch <id|list>           activate an open report or the list view
  sessions                   show open reports
  set <cell> [value]         write a raw cell, e.g. "set G7 0,45"; no value clears it
  undo | redo                step through the active report's cell history
  meta <field> <value>       name, date, weight, height, age, sex, doctorName, reportName
  conclusion <1|2> [text]    show or replace a conclusion block ("\n" starts a new line)
  conclusion reset <1|2>     restore the derived text of a block
  precision [n]              show or set the number of decimals (0-10)
  table                      print the report table and conclusions
  save                       store the active report
  delete <id>                delete a stored patient
  clear                      delete every stored patient
  export [xlsx|md]           export the active report
  help                       show this help
  quit                       leave the editor`

// Editor is a line-oriented front end for a session registry.
type Editor struct {
	registry *session.Registry
	exporter *export.Exporter
	in       *bufio.Reader
	out      io.Writer
	logger   *logrus.Logger
	now      func() time.Time
}

// NewEditor creates an editor reading commands from in. exporter may be nil.
func NewEditor(registry *session.Registry, exporter *export.Exporter, in *bufio.Reader, out io.Writer, logger *logrus.Logger) *Editor {
	return &Editor{
		registry: registry,
		exporter: exporter,
		in:       in,
		out:      out,
		logger:   logger,
		now:      time.Now,
	}
}

// Run reads and executes commands until quit, end of input or ctx is done. Command
// failures are printed and do not stop the loop.
func (e *Editor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s> ", e.promptLabel())

		line, readErr := e.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			err := e.Execute(ctx, line)
			switch {
			case errors.Is(err, ErrQuit):
				return nil
			case errors.Is(err, domain.ErrNotConfirmed):
				fmt.Fprintln(e.out, "cancelled")
			case err != nil:
				e.logger.WithError(err).WithField("command", line).Debug("Editor command failed")
				fmt.Fprintf(e.out, "error: %v\n", err)
			}
		}

		if readErr == io.EOF {
			fmt.Fprintln(e.out)
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read command: %w", readErr)
		}
	}
}

func (e *Editor) promptLabel() string {
	id := e.registry.ActiveID()
	if id == session.ListViewID {
		return "list"
	}
	if name := e.registry.Active().ReportName(); name != "" {
		return name
	}
	return shortID(id)
}

// Execute runs one command line.
func (e *Editor) Execute(ctx context.Context, line string) error {
	cmd, rest := splitWord(line)
	args := strings.Fields(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		fmt.Fprintln(e.out, helpText)
		return nil
	case "quit", "exit", "q":
		return ErrQuit
	case "list", "ls":
		return e.list(ctx)
	case "new":
		s := e.registry.CreateSession()
		fmt.Fprintf(e.out, "opened %s\n", s.ID())
		return nil
	case "open":
		return e.open(ctx, args)
	case "close":
		id := e.registry.ActiveID()
		if len(args) > 0 {
			id = args[0]
		}
		return e.registry.CloseSession(id)
	case "switch":
		if len(args) != 1 {
			return fmt.Errorf("usage: switch <id|list>")
		}
		id := args[0]
		if id == "list" {
			id = session.ListViewID
		}
		return e.registry.SwitchActive(id)
	case "sessions":
		e.sessions()
		return nil
	case "set":
		return e.set(rest)
	case "undo":
		if !e.registry.Undo() {
			fmt.Fprintln(e.out, "nothing to undo")
		}
		return nil
	case "redo":
		if !e.registry.Redo() {
			fmt.Fprintln(e.out, "nothing to redo")
		}
		return nil
	case "meta":
		field, value := splitWord(rest)
		if field == "" {
			e.printMeta()
			return nil
		}
		return e.registry.Active().UpdateMeta(field, value)
	case "conclusion":
		return e.conclusion(rest)
	case "precision":
		if len(args) == 0 {
			fmt.Fprintf(e.out, "precision %d\n", e.registry.Active().Precision())
			return nil
		}
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("precision must be an integer: %q", args[0])
		}
		fmt.Fprintf(e.out, "precision %d\n", e.registry.Active().SetPrecision(p))
		return nil
	case "table", "show":
		return e.table()
	case "save":
		return e.registry.PersistActive(ctx)
	case "delete", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: delete <id>")
		}
		return e.registry.DeleteRemote(ctx, args[0])
	case "clear":
		return e.registry.ClearAllRemote(ctx)
	case "export":
		return e.export(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
}

func (e *Editor) list(ctx context.Context) error {
	if err := e.registry.RefreshIndex(ctx); err != nil {
		return err
	}
	index := e.registry.Index()
	if len(index) == 0 {
		fmt.Fprintln(e.out, "no stored patients")
		return nil
	}
	for _, p := range index {
		fmt.Fprintf(e.out, "%s  %s\n", p.ID, p.ReportName)
	}
	return nil
}

func (e *Editor) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <id>")
	}
	found, err := e.registry.LoadFromRemote(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(e.out, "Пациент не найден")
	}
	return nil
}

func (e *Editor) sessions() {
	active := e.registry.ActiveID()
	for _, id := range e.registry.OpenSessions() {
		marker := " "
		if id == active {
			marker = "*"
		}
		name := ""
		if s, ok := e.registry.Session(id); ok {
			name = s.ReportName()
		}
		fmt.Fprintf(e.out, "%s %s  %s\n", marker, id, name)
	}
}

func (e *Editor) set(rest string) error {
	cell, value := splitWord(rest)
	if cell == "" {
		return fmt.Errorf("usage: set <cell> [value]")
	}
	return e.registry.Active().SetCell(domain.CellKey(strings.ToUpper(cell)), value)
}

func (e *Editor) conclusion(rest string) error {
	first, text := splitWord(rest)
	s := e.registry.Active()

	if strings.EqualFold(first, "reset") {
		block, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("usage: conclusion reset <1|2>")
		}
		return s.ResetConclusionText(block)
	}

	block, err := strconv.Atoi(first)
	if err != nil {
		return fmt.Errorf("usage: conclusion <1|2> [text]")
	}
	if text == "" {
		current, err := s.ConclusionText(block)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, current)
		return nil
	}
	return s.SetConclusionText(block, strings.ReplaceAll(text, `\n`, "\n"))
}

func (e *Editor) printMeta() {
	s := e.registry.Active()
	meta := s.Meta()
	fmt.Fprintf(e.out, "report: %s\n", s.ReportName())
	if line := domain.PatientLine(meta); line != "" {
		fmt.Fprintln(e.out, line)
	}
}

func (e *Editor) table() error {
	s := e.registry.Active()
	if err := export.TableMarkdown(e.out, s.Report().Table); err != nil {
		return err
	}
	for _, block := range []int{session.ConclusionBlock1, session.ConclusionBlock2} {
		text, err := s.ConclusionText(block)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "\n%s\n", text)
	}
	return nil
}

func (e *Editor) export(ctx context.Context, args []string) error {
	if e.exporter == nil {
		return fmt.Errorf("export is not configured")
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return err
	}

	result, err := e.exporter.Export(ctx, e.registry.Active().ExportDocument(e.now()), format)
	if err != nil {
		return err
	}
	for _, location := range result.Locations {
		fmt.Fprintf(e.out, "exported %s\n", location)
	}
	return nil
}

// splitWord returns the first word of s and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
