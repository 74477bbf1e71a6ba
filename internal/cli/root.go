package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tasktree/internal/config"
	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/telemetry"
)

// ServiceName identifies the binary in telemetry resources.
const ServiceName = "tasktree"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DBPath     string
	Caller     string
	Transition string

	// IDs overrides the task id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	IDs engine.IDGenerator

	// Resolved in PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tasktree CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasktree",
		Short:   "tasktree - ordered task hierarchies",
		Long:    "Create, reorder, nest and remove tasks inside transitions and milestones.",
		Version: ir.EngineVersion + " (schema " + ir.SchemaVersion + ")",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides db.path)")
	cmd.PersistentFlags().StringVar(&opts.Caller, "as", "cli", "caller identity recorded on writes")
	cmd.PersistentFlags().StringVarP(&opts.Transition, "transition", "t", "", "transition id")

	// Add subcommands
	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewIndentCommand(opts))
	cmd.AddCommand(NewOutdentCommand(opts))
	cmd.AddCommand(NewUpCommand(opts))
	cmd.AddCommand(NewDownCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRebalanceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads configuration, applies flag overrides, and installs the
// logger and telemetry providers.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if !cmd.Flags().Changed("format") {
		o.Format = cfg.OutputFormat
	}
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}
	o.Config = cfg

	level := cfg.LogLevel
	if o.Verbose {
		level = "debug"
	}
	o.Logger = newLogger(cmd.ErrOrStderr(), level, cfg.LogFormat)
	slog.SetDefault(o.Logger)

	if err := telemetry.Init(cmd.Context(), cfg.Telemetry, ServiceName, ir.EngineVersion); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
	}
	if cfg.ConfigFileUsed != "" {
		o.Logger.Debug("config loaded", "file", cfg.ConfigFileUsed)
	}
	return nil
}

// newLogger builds the process logger. Logs always go to w (stderr) so they
// never corrupt JSON output.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// requireTransition fails when the command needs --transition and it is unset.
func (o *RootOptions) requireTransition() error {
	if o.Transition == "" {
		return NewExitError(ExitCommandError, "--transition is required")
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
