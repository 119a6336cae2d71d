package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

// logger is configured from --log-level before any command runs.
var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "gitcore",
		Short:         "Content-addressed version control with a pkt-line transport",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newHashObjectCmd())
	root.AddCommand(newCatFileCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newLsFilesCmd())
	root.AddCommand(newWriteTreeCmd())
	root.AddCommand(newReadTreeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newReflogCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newTagCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newRemoteCmd())
	root.AddCommand(newLsRemoteCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newPullCmd())
	root.AddCommand(newPushCmd())
	root.AddCommand(newCloneCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newFsckCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gitcore %s\n", version)
		},
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
