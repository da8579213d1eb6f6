package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oscillometry-report-server/internal/cache"
	"github.com/oscillometry-report-server/internal/cli"
	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/session"
	"github.com/oscillometry-report-server/pkg/external"
)

func newComputeCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "compute [file]",
		Short: "Compute a report from a YAML or JSON file of raw cell values",
		Long: `Compute reads raw cell values (YAML or JSON, "-" or no argument for stdin) and prints
the report table and conclusions. The server is not contacted.

  precision: 2
  cells:
    G7: "0,45"
    J7: "0,38"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			cells, precision, err := cli.ReadComputeInput(r)
			if err != nil {
				return err
			}
			p := a.cfg.Precision
			if precision != nil && !cmd.Flags().Changed("precision") {
				p = *precision
			}

			report := a.engine.Compute(cells, session.ClampPrecision(p))
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if err := export.TableMarkdown(a.out, report.Table); err != nil {
				return err
			}
			fmt.Fprintln(a.out)
			for _, text := range report.ConclusionTexts() {
				fmt.Fprintln(a.out, text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patients, err := a.patient.List(cmd.Context())
			if err != nil {
				return offline(err)
			}
			if len(patients) == 0 {
				fmt.Fprintln(a.out, "no stored patients")
				return nil
			}
			for _, p := range patients {
				fmt.Fprintf(a.out, "%s  %s\n", p.ID, p.ReportName)
			}
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report of a stored patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession(cmd.Context(), args[0])
			if err != nil {
				return offline(err)
			}

			doc := s.ExportDocument(time.Now())
			if doc.PatientLine != "" {
				fmt.Fprintln(a.out, doc.PatientLine)
				fmt.Fprintln(a.out)
			}
			if err := export.TableMarkdown(a.out, doc.Rows); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n%s\n\n%s\n", doc.Conclusion1, doc.Conclusion2)
			if doc.DoctorName != "" {
				fmt.Fprintf(a.out, "\nВрач: %s\n", doc.DoctorName)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export the report of a stored patient to XLSX or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.cfg.ExportDir()
			}
			sink, err := export.NewDirectorySink(outDir)
			if err != nil {
				return err
			}

			s, err := a.loadSession(cmd.Context(), args[0])
			if err != nil {
				return offline(err)
			}

			result, err := export.NewExporter(a.logger, sink).Export(cmd.Context(), s.ExportDocument(time.Now()), f)
			if err != nil {
				return err
			}
			for _, location := range result.Locations {
				fmt.Fprintln(a.out, location)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "export format: xlsx or md")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the data directory's exports)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.registry(nil).DeleteRemote(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrNotConfirmed) {
				fmt.Fprintln(a.out, "cancelled")
				return nil
			}
			return offline(err)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.registry(nil).ClearAllRemote(cmd.Context())
			if errors.Is(err, domain.ErrNotConfirmed) {
				fmt.Fprintln(a.out, "cancelled")
				return nil
			}
			return offline(err)
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Open the interactive report editor",
		Long: `Edit starts a line-oriented editor over the stored patients. Raw cell values are
cached in the data directory so an interrupted edit survives a restart. Type "help" inside
the editor for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.cfg.EnsureDataDir(); err != nil {
				return err
			}

			rawCache, closeCache, err := cache.New(a.cfg.CacheConfig(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to open raw-value cache: %w", err)
			}
			defer closeCache()
			registry := a.registry(rawCache)
			if err := registry.RestoreScratch(ctx); err != nil {
				a.logger.WithError(err).Warn("Failed to restore cached cells")
			}
			if err := registry.RefreshIndex(ctx); err != nil {
				a.logger.WithError(err).Warn("Patient list unavailable")
			}

			if watch {
				events, err := external.NewEventsClient(a.cfg.ServerURL, a.logger).Subscribe(ctx)
				if err != nil {
					a.logger.WithError(err).Warn("Change feed unavailable, list refreshes on demand only")
				} else {
					go func() {
						_ = registry.Watch(ctx, events)
					}()
				}
			}

			exporter := export.NewExporter(a.logger)
			if sink, err := export.NewDirectorySink(a.cfg.ExportDir()); err == nil {
				exporter = export.NewExporter(a.logger, sink)
			}

			fmt.Fprintln(a.out, `Type "help" for commands.`)
			return cli.NewEditor(registry, exporter, a.in, a.out, a.logger).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "follow the server's change feed to keep the patient list current")
	return cmd
}

// offline replaces a connection failure with the operator message.
func offline(err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		return fmt.Errorf("%s (%w)", session.MsgOffline, err)
	}
	return err
}
