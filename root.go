package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagOrg        string
	flagTenant     string
	flagClientID   string
	flagOutput     string
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	Output     string
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration and logger to subcommands.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. It
// panics if called outside a command run, which is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext not set on command context")
	}

	return cc
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dataverse-go",
		Short:   "Dataverse Web API client",
		Long:    "A command-line client for the Microsoft Dataverse Web API (OData v4).",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagOrg, "org", "", "organization name or environment URL")
	cmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "Entra ID tenant id")
	cmd.PersistentFlags().StringVar(&flagClientID, "client-id", "", "application (client) id")
	cmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputTable, "output format: table, json, yaml")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newInvokeCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores a CLIContext
// on the command's context. The context is also wired to SIGINT/SIGTERM.
func loadConfig(cmd *cobra.Command) error {
	if err := validateOutput(flagOutput); err != nil {
		return err
	}

	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		Output:     flagOutput,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	bootstrap := buildLogger(os.Stderr, "", "", flags)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := config.ReadEnvOverrides(ctx)
	if err != nil {
		return err
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		TenantID:   flagTenant,
		ClientID:   flagClientID,
		Org:        flagOrg,
	}

	resolved, err := config.Resolve(env, cli, bootstrap)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(os.Stderr, resolved.LogLevel, resolved.LogFormat, flags)

	cc := &CLIContext{Flags: flags, Cfg: resolved, Logger: logger}
	ctx = shutdownContext(ctx, logger)
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates the process logger. The config log level is the
// baseline; --verbose and --quiet override it. Format "auto" picks text on a
// terminal and JSON otherwise.
func buildLogger(w io.Writer, level, format string, flags CLIFlags) *slog.Logger {
	lvl := slog.LevelInfo

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	if flags.Verbose {
		lvl = slog.LevelDebug
	}

	if flags.Quiet {
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
