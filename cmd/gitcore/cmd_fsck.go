package main

import (
	"fmt"

	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newFsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Verify the integrity of every stored object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			report, err := r.Store.Verify()
			if err != nil {
				return err
			}
			for _, h := range report.Corrupt {
				fmt.Fprintf(cmd.OutOrStdout(), "corrupt: %s\n", h)
			}
			if len(report.Corrupt) > 0 {
				return fmt.Errorf("%d of %d object(s) are corrupt", len(report.Corrupt), report.LooseObjects)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: verified %d loose object(s)\n", report.LooseObjects)
			return nil
		},
	}
}
