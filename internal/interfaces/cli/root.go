// Package cli implements the piianon command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config  *config.Config
	Logger  logging.Logger
	Verbose bool
}

// NewRootCommand creates the root command with its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "piianon",
		Short: "Detect and pseudonymize personal data in documents",
		Long: "piianon finds personal data such as names, addresses, e-mail addresses and\n" +
			"phone numbers in free text and replaces every mention of the same entity\n" +
			"with one consistent placeholder.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./piianon.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewExtractCmd(), NewVersionCmd())
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := initConfig(opts)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &CLIContext{
		Config:  cfg,
		Logger:  logger,
		Verbose: opts.Verbose,
	}))
	return nil
}

// configSearchPaths lists the files tried when --config is not given.
func configSearchPaths() []string {
	paths := []string{"./piianon.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".piianon", "config.yaml"))
	}
	return append(paths, "/etc/piianon/config.yaml")
}

// initConfig loads configuration with priority: flags > env > file > defaults.
// A .env file in the working directory feeds the env layer.
// Flags are applied by the subcommands.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if _, err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.LoadFromEnv()
}

// initLogger logs to the command's stderr in console format so stdout stays
// clean for JSON output.
func initLogger(cfg *config.Config, opts *RootOptions, stderr io.Writer) (logging.Logger, error) {
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.Verbose {
		level = "debug"
	}
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return nil, errors.Newf(errors.CodeConfigInvalid, "unknown log level %q", level)
	}
	return logging.NewConsoleLogger(level, stderr), nil
}

// GetCLIContext extracts the CLIContext set by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.CodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.CodeInternal, "CLI context not initialized")
	}
	return cliCtx, nil
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cliCtx, ctxErr := GetCLIContext(root); ctxErr == nil {
		_ = cliCtx.Logger.Sync()
	}
	if err == nil {
		return 0
	}
	PrintError(root, err)
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		// cobra flag and argument errors
		return 2
	}
	return errors.ExitCodeForCode(code)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// FormatTable renders headers and rows as an aligned text table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > colWidths[i] {
				colWidths[i] = n
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

//Personal.AI order the ending
