package main

import (
	"fmt"

	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var bare bool
	var branch string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			r, err := repo.Init(path, repo.InitOptions{Bare: bare, DefaultBranch: branch})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty repository in %s\n", r.GitDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&bare, "bare", false, "create a repository without a working tree")
	cmd.Flags().StringVarP(&branch, "initial-branch", "b", "", "name of the initial branch (default $"+repo.DefaultBranchEnv+" or main)")

	return cmd
}
