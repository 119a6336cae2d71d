package main

import (
	"fmt"
	"sort"

	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage repository remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Remotes))
			for name := range cfg.Remotes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, cfg.Remotes[name].URL)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add or update a named remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			ep, err := remote.ParseEndpoint(args[1])
			if err != nil {
				return fmt.Errorf("invalid remote URL %q: %w", args[1], err)
			}
			if err := r.SetRemote(args[0], ep.String()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added remote %q -> %s\n", args[0], ep)
			return nil
		},
	})

	return cmd
}

func newLsRemoteCmd() *cobra.Command {
	var tf transportFlags

	cmd := &cobra.Command{
		Use:   "ls-remote [remote | url]",
		Short: "List the refs a server advertises",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _ := repo.Open(".")
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			_, c, err := clientFor(r, arg, tf.options(cmd))
			if err != nil {
				return err
			}
			adv, err := c.ListRefs(cmd.Context())
			if err != nil {
				return err
			}
			for _, ref := range adv.Refs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ref.Hash, ref.Name)
			}
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newFetchCmd() *cobra.Command {
	var tf transportFlags

	cmd := &cobra.Command{
		Use:   "fetch [remote]",
		Short: "Download objects and update remote-tracking refs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			name, c, err := clientFor(r, arg, tf.options(cmd))
			if err != nil {
				return err
			}
			summary, err := remote.Fetch(cmd.Context(), r, name, c)
			if err != nil {
				return err
			}
			logger.Debug("fetch complete", "remote", c.Endpoint().String(), "objects", summary.Objects, "deltas", summary.Deltas)
			for _, ref := range summary.Updated {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", ref.Hash.Short(), ref.Name)
			}
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newPullCmd() *cobra.Command {
	var tf transportFlags

	cmd := &cobra.Command{
		Use:   "pull [remote]",
		Short: "Fetch and fast-forward the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			name, c, err := clientFor(r, arg, tf.options(cmd))
			if err != nil {
				return err
			}
			h, err := remote.Pull(cmd.Context(), r, name, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", h.Short())
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newPushCmd() *cobra.Command {
	var tf transportFlags
	var force bool

	cmd := &cobra.Command{
		Use:   "push [remote] [refspec...]",
		Short: "Send local refs and their objects to a server",
		Long: `Push updates refs on a server. A refspec is "name", "src:dst" or ":dst"
to delete; a leading "+" skips the fast-forward check. Without refspecs the
current branch is pushed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			arg := ""
			if len(args) > 0 {
				arg, args = args[0], args[1:]
			}
			if len(args) == 0 {
				branch, err := r.CurrentBranch()
				if err != nil {
					return err
				}
				if branch == "" {
					return fmt.Errorf("HEAD is detached; name a refspec")
				}
				args = []string{branch}
			}
			name, c, err := clientFor(r, arg, tf.options(cmd))
			if err != nil {
				return err
			}
			rep, err := remote.Push(cmd.Context(), r, name, c, args, remote.PushOptions{Force: force})
			if rep != nil {
				for _, st := range rep.Refs {
					if st.Reason == "" {
						fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", st.Name)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "rejected %s (%s)\n", st.Name, st.Reason)
					}
				}
			}
			return err
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the fast-forward check")
	return cmd
}

func newCloneCmd() *cobra.Command {
	var tf transportFlags
	var bare bool
	var remoteName string

	cmd := &cobra.Command{
		Use:   "clone <url> [directory]",
		Short: "Copy a repository from a server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tf.options(cmd)
			c, err := remote.NewClient(args[0], opts)
			if err != nil {
				return err
			}
			dest, err := cloneDest(args, c)
			if err != nil {
				return err
			}
			if err := ensureEmptyDir(dest); err != nil {
				return err
			}
			r, err := remote.Clone(cmd.Context(), args[0], dest, remote.CloneOptions{
				Bare:       bare,
				RemoteName: remoteName,
				Client:     opts,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cloned %s into %s\n", c.Endpoint(), r.GitDir)
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&bare, "bare", false, "create a bare repository")
	cmd.Flags().StringVarP(&remoteName, "origin", "o", remote.DefaultRemote, "name of the remote")
	return cmd
}
