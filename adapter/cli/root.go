package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/spf13/cobra"
)

// annotationSkipApp marks commands that run without a container.
const annotationSkipApp = "cadence/skip-app"

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	logger     *slog.Logger
	bootstrap  Bootstrap
	closeApp   func()
)

// Bootstrap builds the application for a command invocation. The returned
// func releases it once the command finishes.
type Bootstrap func(ctx context.Context, configPath string, verbose bool) (*App, func(), error)

type commandStartKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - autonomous communication scheduling",
	Long: `Cadence decides when to send relationship messages and sends them.

It queues outbound communications, shifts them to good delivery slots,
fires them when due and retries failed sends with backoff.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = observability.WithCorrelationID(ctx, "")
		cmd.SetContext(context.WithValue(ctx, commandStartKey{}, time.Now()))
		logger.DebugContext(cmd.Context(), "command start", "command", cmd.CommandPath())

		if app != nil || bootstrap == nil || cmd.Annotations[annotationSkipApp] == "true" {
			return nil
		}
		a, release, err := bootstrap(cmd.Context(), cfgFile, verbose)
		if err != nil {
			return err
		}
		SetApp(a)
		closeApp = release
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		startedAt, ok := cmd.Context().Value(commandStartKey{}).(time.Time)
		if !ok {
			return
		}
		logger.DebugContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	release()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func release() {
	if closeApp != nil {
		closeApp()
		closeApp = nil
	}
	app = nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Root returns the root command.
func Root() *cobra.Command {
	return rootCmd
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Logger returns the CLI logger.
func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// SetBootstrap installs the function that builds the App on demand.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// ConfigFile returns the --config flag value.
func ConfigFile() string {
	return cfgFile
}

// JSONOutput reports whether --json was given.
func JSONOutput() bool {
	return jsonOutput
}

// SetJSONOutput overrides the --json flag.
func SetJSONOutput(enabled bool) {
	jsonOutput = enabled
}

// SkipApp marks cmd as runnable without the application container.
func SkipApp(cmd *cobra.Command) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationSkipApp] = "true"
}
