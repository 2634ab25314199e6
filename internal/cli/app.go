// Package cli builds the relay command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// App holds build information and the global flags.
type App struct {
	version string
	commit  string

	configFile string
	logLevel   string

	out    io.Writer
	errOut io.Writer
}

func New(version, commit string) *App {
	return &App{version: version, commit: commit, out: os.Stdout, errOut: os.Stderr}
}

// Execute runs the CLI with args. ctx is cancelled on shutdown signals.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	run := a.runCommand()

	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay gitopia chain events to Telegram chats",
		Long: `relay subscribes to the transactions of a gitopia node, turns gitopia
actions into notifications and posts them to the Telegram chats that
subscribed to the repository owner.

Running relay without a subcommand is the same as "relay run".`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run.RunE,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetVersionTemplate("relay {{.Version}}\n")

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (yaml, json or toml); environment variables take precedence")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(run, a.versionCommand())
	return root
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "relay %s (commit %s)\n", a.version, a.commit)
			return err
		},
	}
}
