package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <paths...>",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.Add(args)
		},
	}
}

func newRmCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "rm <paths...>",
		Short: "Unstage files and remove them from the working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if err := r.Remove(args); err != nil {
				return err
			}
			if cached {
				return nil
			}
			for _, p := range args {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "only remove from the index")

	return cmd
}

func newLsFilesCmd() *cobra.Command {
	var stage bool

	cmd := &cobra.Command{
		Use:   "ls-files",
		Short: "List staged paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			ix, err := r.ReadIndex()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range ix.Paths() {
				if !stage {
					fmt.Fprintln(out, p)
					continue
				}
				e, _ := ix.Get(p)
				fmt.Fprintf(out, "%s %s\t%s\n", e.Mode, e.Hash, p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&stage, "stage", "s", false, "show mode and object id")

	return cmd
}

func newWriteTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-tree",
		Short: "Create a tree object from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			ix, err := r.ReadIndex()
			if err != nil {
				return err
			}
			h, err := repo.BuildTree(r.Store, ix)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newReadTreeCmd() *cobra.Command {
	var checkout bool

	cmd := &cobra.Command{
		Use:   "read-tree <tree-ish>",
		Short: "Replace the index with the contents of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			tree, err := resolveTree(r, args[0])
			if err != nil {
				return err
			}
			ix, err := repo.IndexFromTree(r.Store, tree)
			if err != nil {
				return err
			}
			if checkout {
				if r.Bare {
					return repo.ErrBare
				}
				if err := repo.Materialize(r.Store, tree, r.RootDir); err != nil {
					return err
				}
			}
			return r.WriteIndex(ix)
		},
	}

	cmd.Flags().BoolVarP(&checkout, "update", "u", false, "also write the tree into the working directory")

	return cmd
}

// resolveTree resolves rev to a tree id, peeling a commit to its tree.
func resolveTree(r *repo.Repo, rev string) (object.Hash, error) {
	h, err := r.ResolveRef(rev)
	if err != nil {
		return "", err
	}
	objType, _, err := r.Store.Read(h)
	if err != nil {
		return "", err
	}
	switch objType {
	case object.TypeTree:
		return h, nil
	case object.TypeCommit:
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return "", err
		}
		return c.TreeHash, nil
	default:
		return "", fmt.Errorf("%s is a %s, not a tree", rev, objType)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged, unstaged and untracked paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			entries, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if branch, _ := r.CurrentBranch(); branch != "" {
				fmt.Fprintf(out, "on branch %s\n", branch)
			} else {
				fmt.Fprintln(out, "HEAD detached")
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%c%c %s\n", statusCode(e.IndexStatus), statusCode(e.WorkStatus), filepath.ToSlash(e.Path))
			}
			return nil
		},
	}
}

func statusCode(s repo.FileStatus) byte {
	switch s {
	case repo.StatusNew:
		return 'A'
	case repo.StatusModified:
		return 'M'
	case repo.StatusDeleted:
		return 'D'
	case repo.StatusUntracked:
		return '?'
	default:
		return ' '
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [paths...]",
		Short: "Unstage paths, restoring their index entries from HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.Reset(args)
		},
	}
}
