package main

import (
	"fmt"
	"sort"

	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var deleteBranch string

	cmd := &cobra.Command{
		Use:   "branch [name [start]]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if deleteBranch != "" {
				if err := r.DeleteBranch(deleteBranch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted branch '%s'\n", deleteBranch)
				return nil
			}

			if len(args) > 0 {
				start := "HEAD"
				if len(args) == 2 {
					start = args[1]
				}
				h, err := r.ResolveRef(start)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", start, err)
				}
				return r.CreateBranch(args[0], h)
			}

			branches, err := r.ListBranches()
			if err != nil {
				return err
			}
			current, _ := r.CurrentBranch()
			out := cmd.OutOrStdout()
			for _, b := range branches {
				if b == current {
					fmt.Fprintf(out, "* %s\n", b)
				} else {
					fmt.Fprintf(out, "  %s\n", b)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")

	return cmd
}

func newTagCmd() *cobra.Command {
	var deleteTag string
	var force bool

	cmd := &cobra.Command{
		Use:   "tag [name [rev]]",
		Short: "List, create, or delete lightweight tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if deleteTag != "" {
				return r.DeleteTag(deleteTag)
			}

			if len(args) > 0 {
				rev := "HEAD"
				if len(args) == 2 {
					rev = args[1]
				}
				h, err := r.ResolveRef(rev)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", rev, err)
				}
				return r.CreateTag(args[0], h, force)
			}

			tags, err := r.ListTags()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(tags))
			for name := range tags {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "move an existing tag")

	return cmd
}

func newCheckoutCmd() *cobra.Command {
	var newBranch bool

	cmd := &cobra.Command{
		Use:   "checkout <branch | rev>",
		Short: "Switch the working tree to a branch or commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if newBranch {
				h, err := r.ResolveRef("HEAD")
				if err != nil {
					return fmt.Errorf("cannot resolve HEAD: %w", err)
				}
				if err := r.CreateBranch(args[0], h); err != nil {
					return err
				}
			}
			if err := r.Checkout(args[0]); err != nil {
				return err
			}
			if branch, _ := r.CurrentBranch(); branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "switched to branch '%s'\n", branch)
			} else {
				h, _ := r.ResolveRef("HEAD")
				fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", h.Short())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&newBranch, "branch", "b", false, "create the branch at HEAD first")

	return cmd
}
