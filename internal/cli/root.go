package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/config"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string // explicit config file; empty searches the default locations
	Database  string // overrides the configured database path
	LogFormat string // overrides log.format
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the nudge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nudge",
		Short: "nudge - context-triggered reminders",
		Long: `Reminders that fire when the device context matches: an unlock, a charger,
arriving somewhere, opening an app. Each reminder fires at most once until
it is reactivated.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.LogFormat != "" && opts.LogFormat != "text" && opts.LogFormat != "json" {
				return fmt.Errorf("invalid log format %q: must be text or json", opts.LogFormat)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default ./nudge.yaml or ~/.config/nudge/nudge.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json, overrides config)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewReactivateCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewEmitCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// settings loads configuration and applies the global flag overrides.
func (o *RootOptions) settings() (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// session bundles what store-backed commands share.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location
	store  *store.Store
}

// openSession loads settings, builds the logger and opens the database.
// Logs go to stderr so they never mix with command output.
func (o *RootOptions) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	loc, err := cfg.Location.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return &session{cfg: cfg, logger: logger, loc: loc, store: st}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// controller returns a Controller wired to the session's logger and zone.
func (s *session) controller(metrics *engine.Metrics) *engine.Controller {
	return engine.NewController(
		engine.WithLogger(s.logger),
		engine.WithLocation(s.loc),
		engine.WithMetrics(metrics),
	)
}

// dispatcher returns a Dispatcher over the session store. Notifications are
// written as lines to w and retried per the notify settings.
func (s *session) dispatcher(ctrl *engine.Controller, w io.Writer, metrics *engine.Metrics) *engine.Dispatcher {
	notifier := engine.NewRetryingNotifier(
		engine.NewLogNotifier(w, nil),
		s.cfg.Notify.RetryPolicy(),
		s.logger,
		metrics,
	)
	return engine.NewDispatcher(ctrl, s.store, notifier, engine.WithDispatchLogger(s.logger))
}

// nowMillis is the wall clock in epoch milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
