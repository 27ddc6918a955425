package blockscrub

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/varalys/blockscrub/internal/logger"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK     = 0
	exitFailOn = 1 // --fail-on condition hit
	exitUsage  = 2 // bad flags, config or I/O
)

// app carries flags shared by every subcommand.
type app struct {
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
	flagNoColor  bool

	stdout io.Writer
	stderr io.Writer
}

// exitError ends the process with code after the command has reported.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "blockscrub",
		Short:         "Validate and sanitize block-structured files",
		Long:          "blockscrub checks files against a per-extension format (header, blocks matching a grammar, footer) and replaces blocks that do not match.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := a.flagLogLevel
			if level == "" {
				level = "warn"
			}
			logger.Init(logger.Options{Level: level, JSON: a.flagLogJSON, NoColor: a.noColor(), Out: a.stderr})
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flagConfig, "config", "c", "", "config file (default: .blockscrub.yml in the working directory, then the global config)")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.BoolVar(&a.flagLogJSON, "log-json", false, "emit logs as JSON lines")
	pf.BoolVar(&a.flagNoColor, "no-color", false, "disable colorized output")

	root.AddCommand(
		newSanitizeCmd(a),
		newServeCmd(a),
		newFormatsCmd(a),
		newCheckCmd(a),
		newConfigCmd(a),
		newCompletionCmd(root),
	)
	return root
}

// noColor disables color when asked to or when stdout is not a terminal.
func (a *app) noColor() bool {
	if a.flagNoColor || os.Getenv("NO_COLOR") != "" {
		return true
	}
	f, ok := a.stdout.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}
	return exitOK
}

// Execute runs the blockscrub CLI. It should be called by the main package.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
