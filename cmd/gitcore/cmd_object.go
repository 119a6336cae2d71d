package main

import (
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newHashObjectCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "hash-object <file>",
		Short: "Compute the blob id of a file, optionally storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			h := object.HashObject(object.TypeBlob, data)
			if write {
				r, err := repo.Open(".")
				if err != nil {
					return err
				}
				if h, err = r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the blob into the object store")

	return cmd
}

func newCatFileCmd() *cobra.Command {
	var showType, showSize, pretty bool

	cmd := &cobra.Command{
		Use:   "cat-file (-t | -s | -p) <object>",
		Short: "Show the type, size or content of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			h, err := r.ResolveRef(args[0])
			if err != nil {
				return err
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(data))
			case pretty && objType == object.TypeTree:
				tree, err := object.UnmarshalTree(data)
				if err != nil {
					return err
				}
				for _, e := range tree.Entries {
					kind, mode := object.TypeBlob, e.Mode
					if e.IsDir() {
						kind, mode = object.TypeTree, "0"+mode
					}
					fmt.Fprintf(out, "%s %s %s\t%s\n", mode, kind, e.Hash, e.Name)
				}
			case pretty:
				_, err = out.Write(data)
				return err
			default:
				return fmt.Errorf("one of -t, -s or -p is required")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "show the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "show the object size")
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "pretty-print the object content")
	cmd.MarkFlagsMutuallyExclusive("type", "size", "pretty")

	return cmd
}
