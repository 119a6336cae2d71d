package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the index as a new commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			committer, err := r.DefaultIdent()
			if err != nil {
				return err
			}
			who := committer
			if author != "" {
				if who, err = parseAuthor(author, time.Now()); err != nil {
					return err
				}
			}

			h, err := r.CommitIndex(message, who, committer)
			if err != nil {
				return err
			}

			branch, _ := r.CurrentBranch()
			if branch == "" {
				branch = "detached HEAD"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, h.Short(), firstLine(message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", `override the author ("Name <email>")`)

	return cmd
}

// parseAuthor parses "Name <email>".
func parseAuthor(s string, when time.Time) (object.Ident, error) {
	name, rest, ok := strings.Cut(s, "<")
	email, _, closed := strings.Cut(rest, ">")
	if !ok || !closed {
		return object.Ident{}, fmt.Errorf("invalid author %q, want \"Name <email>\"", s)
	}
	return repo.NewIdent(strings.TrimSpace(name), strings.TrimSpace(email), when), nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev]",
		Short: "Show commit history along first parents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			rev := "HEAD"
			if len(args) > 0 {
				rev = args[0]
			}
			start, err := r.ResolveRef(rev)
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", rev, err)
			}
			entries, err := r.Log(start, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, entry := range entries {
				c := entry.Commit
				if oneline {
					fmt.Fprintf(out, "%s %s\n", entry.Hash.Short(), firstLine(c.Message))
					continue
				}
				fmt.Fprintf(out, "commit %s\n", entry.Hash)
				fmt.Fprintf(out, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
				fmt.Fprintf(out, "Date:   %s %s\n", time.Unix(c.Author.When, 0).UTC().Format("2006-01-02 15:04:05"), c.Author.Timezone)
				fmt.Fprintln(out)
				for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "one line per commit")
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits")

	return cmd
}

func newReflogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show recorded movements of a ref",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			ref := "HEAD"
			if len(args) > 0 {
				ref = args[0]
			}
			entries, err := r.ReadReflog(ref, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range entries {
				fmt.Fprintf(out, "%s %s@{%d}: %s\n", e.New.Short(), ref, i, e.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of entries")

	return cmd
}
