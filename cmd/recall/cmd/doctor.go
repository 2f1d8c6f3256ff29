package cmd

import (
	"github.com/spf13/cobra"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/preflight"
)

// DoctorReport is the JSON shape of doctor.
type DoctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that recall can run here",
		Long: `Check the configuration, the sessions directory, the index directory,
free disk space, the open file limit and the embedding provider.

Exits with an error when a required check fails. Warnings only disable a
feature: an unreachable embedder turns semantic search off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newWriter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg, preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context())

			if out.JSON() {
				if err := out.Encode(DoctorReport{Status: preflight.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(cmd.OutOrStdout(), results)
			}
			if preflight.HasCriticalFailures(results) {
				return recallerrors.New(recallerrors.ErrCodeConfigInvalid, "system check failed", nil).
					WithSuggestion("fix the FAIL items above and run 'recall doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}
