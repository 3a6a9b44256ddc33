package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/keepershare/internal/links"
	gs "github.com/dmitrijs2005/keepershare/internal/server/grpc"
	"github.com/dmitrijs2005/keepershare/internal/timex"
)

func newLinkCmd(app *App) *cobra.Command {
	var (
		ttl    time.Duration
		views  int
		note   bool
		redact bool
	)
	cmd := &cobra.Command{
		Use:   "link <item-id>",
		Short: "Issue a one-time share link for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := gs.IssueLinkRequest{
				ItemID:         args[0],
				Kind:           links.KindPassword,
				MaxViews:       views,
				RedactUsername: redact,
			}
			if note {
				req.Kind = links.KindNote
			}
			if cmd.Flags().Changed("ttl") {
				req.TTL = &timex.Duration{Duration: ttl}
			}

			resp, err := app.vault.IssueLink(cmd.Context(), req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, accent.Sprintf("%s", resp.URL))
			fmt.Fprintln(w, muted.Sprintf("valid until %s", resp.ExpiresAt.Local().Format(time.RFC1123)))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.DurationVar(&ttl, "ttl", 0, "link lifetime (server default when unset)")
	fl.IntVar(&views, "views", 1, "number of times the link may be opened")
	fl.BoolVar(&note, "note", false, "share the item's notes instead of its credentials")
	fl.BoolVar(&redact, "redact-username", false, "leave the username out of the link")
	return cmd
}

func newRevealCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reveal <url>",
		Short: "Open a one-time share link",
		Long: `Checks the link first without using it up, then asks for confirmation
before spending a view and printing the shared secret.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			md, err := app.links.Peek(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s link, %d of %d views left, expires %s\n",
				md.Kind, md.ViewsRemaining, md.MaxViews, md.ExpiresAt.Local().Format(time.RFC1123))

			if md.ViewsRemaining == 1 {
				fmt.Fprintln(w, warning.Sprintf("this is the last view; the link is destroyed once opened"))
			}
			if !yes && !Confirm(app.input(cmd.InOrStdin()), "Open it now?", w) {
				fmt.Fprintln(w, "aborted")
				return nil
			}

			pl, err := app.links.Consume(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(w, accent.Sprintf("%s", pl.Title))
			if pl.Username != "" {
				fmt.Fprintf(w, "  username: %s\n", pl.Username)
			}
			if pl.Secret != "" {
				fmt.Fprintf(w, "  secret:   %s\n", pl.Secret)
			}
			if pl.URL != "" {
				fmt.Fprintf(w, "  url:      %s\n", pl.URL)
			}
			if pl.Notes != "" {
				fmt.Fprintf(w, "  notes:\n%s\n", pl.Notes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
