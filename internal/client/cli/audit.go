package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.vault.ListAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-16s %-10s %s", e.Timestamp.Local().Format(time.DateTime), e.Action, e.Actor, e.TargetLabel)
				if e.Details != "" {
					line += "  " + muted.Sprintf("%s", e.Details)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")
	return cmd
}
