package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oscillometry-report-server/internal/cli"
	"github.com/oscillometry-report-server/internal/config"
	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
	"github.com/oscillometry-report-server/internal/session"
	"github.com/oscillometry-report-server/pkg/external"
)

// app carries the state shared by all subcommands.
type app struct {
	cfg     *config.ClientConfig
	logger  *logrus.Logger
	yes     bool
	in      *bufio.Reader
	out     io.Writer
	engine  *service.DerivationEngine
	patient *external.PatientClient
}

// NewRootCmd creates the root command for report-cli.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "report-cli",
		Short: "Impulse oscillometry report client",
		Long: `report-cli computes impulse oscillometry reports and manages the patients stored
on a report server. Settings come from IOS_REPORT_* environment variables and can be
overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().String("server", "", "report server URL (env IOS_REPORT_SERVER_URL)")
	cmd.PersistentFlags().Int("precision", -1, "decimal places, 0-10 (env IOS_REPORT_PRECISION)")
	cmd.PersistentFlags().BoolVarP(&a.yes, "yes", "y", false, "answer yes to confirmation prompts")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newComputeCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newShowCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newClearCmd(a))
	cmd.AddCommand(newEditCmd(a))

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.LoadClientConfig()

	flags := cmd.Flags()
	if server, _ := flags.GetString("server"); server != "" {
		a.cfg.ServerURL = server
	}
	if p, _ := flags.GetInt("precision"); p >= 0 {
		a.cfg.Precision = p
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		a.cfg.LogLevel = "debug"
	}

	a.logger = logrus.New()
	a.logger.SetOutput(cmd.ErrOrStderr())
	if strings.EqualFold(a.cfg.LogFormat, "json") {
		a.logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		a.logger.SetFormatter(&logrus.TextFormatter{})
	}
	level, err := logrus.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.cfg.LogLevel, err)
	}
	a.logger.SetLevel(level)

	a.in = bufio.NewReader(cmd.InOrStdin())
	a.out = cmd.OutOrStdout()
	a.engine = service.NewDerivationEngine(a.logger)
	a.patient = external.NewPatientClient(external.PatientClientConfig{
		BaseURL:   a.cfg.ServerURL,
		Timeout:   a.cfg.Timeout,
		RateLimit: a.cfg.RateLimit,
	}, a.logger)
	return nil
}

// registry builds a session registry over the remote store. cache may be nil.
func (a *app) registry(cache domain.RawValueCache) *session.Registry {
	toaster := session.NewToaster(a.logger, 0, cli.PrintToasts(a.out))
	return session.NewRegistry(a.logger, a.engine, a.patient, cache, toaster,
		cli.NewPromptConfirmer(a.in, a.out, a.yes), session.RegistryConfig{DefaultPrecision: a.cfg.Precision})
}

// loadSession fetches a stored patient into a standalone session.
func (a *app) loadSession(ctx context.Context, id string) (*session.ReportSession, error) {
	record, err := a.patient.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s := session.NewReportSession(record.ID, record.ID, a.logger, a.engine, nil, nil, a.cfg.Precision)
	s.ApplyRecord(record)
	return s, nil
}
