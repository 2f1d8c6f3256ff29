package cmd

import (
	"github.com/spf13/cobra"
)

func newRelatedCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "related <session-id>",
		Short: "List sessions similar to a session",
		Long: `List the sessions closest to the given one. Embedding similarity is
used when the session has an embedding, keyword overlap otherwise.

Examples:
  recall related 2026-05-01_jwt-auth
  recall related 2026-05-01_jwt-auth -n 10 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newWriter(cmd)
			if err != nil {
				return err
			}
			svc, _, err := openService(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeService(svc)

			hits, err := svc.Related(args[0], limit)
			if err != nil {
				return err
			}
			return out.Related(args[0], hits)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of sessions")

	return cmd
}
