package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

// transportFlags are shared by every command that talks to a server.
type transportFlags struct {
	timeout time.Duration
	retries int
	quiet   bool
}

func (f *transportFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "connect timeout per attempt")
	cmd.Flags().IntVar(&f.retries, "retries", 3, "connection attempts")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress output")
}

func (f *transportFlags) options(cmd *cobra.Command) remote.ClientOptions {
	opts := remote.ClientOptions{DialTimeout: f.timeout, MaxAttempts: f.retries}
	if !f.quiet {
		errOut := cmd.ErrOrStderr()
		opts.Progress = func(msg string) {
			fmt.Fprint(errOut, "remote: "+msg)
		}
	}
	return opts
}

func looksLikeRemoteURL(s string) bool {
	return strings.Contains(s, "://") || strings.Contains(s, "/")
}

// clientFor resolves remoteArg, a configured remote name or a URL, to a
// client. The returned name is used for remote-tracking refs.
func clientFor(r *repo.Repo, remoteArg string, opts remote.ClientOptions) (string, *remote.Client, error) {
	remoteArg = strings.TrimSpace(remoteArg)
	if remoteArg == "" {
		remoteArg = remote.DefaultRemote
	}
	if r == nil || looksLikeRemoteURL(remoteArg) {
		c, err := remote.NewClient(remoteArg, opts)
		if err != nil {
			return "", nil, err
		}
		return remote.DefaultRemote, c, nil
	}
	c, err := remote.ClientForRemote(r, remoteArg, opts)
	if err != nil {
		return "", nil, err
	}
	return remoteArg, c, nil
}

func ensureEmptyDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination %s exists and is not empty", path)
	}
	return nil
}

func cloneDest(args []string, c *remote.Client) (string, error) {
	if len(args) == 2 {
		return filepath.Abs(args[1])
	}
	base := filepath.Base(c.Endpoint().Repo)
	base = strings.TrimSuffix(base, ".git")
	if base == "" || base == "." {
		return "", fmt.Errorf("destination directory is required")
	}
	return filepath.Abs(base)
}
