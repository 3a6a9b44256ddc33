package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/keepershare/internal/sharing"
)

func newShareCmd(app *App) *cobra.Command {
	var (
		write bool
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "share <item-id> <grantee>",
		Short: "Grant another user access to an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm := sharing.PermissionRead
			if write {
				perm = sharing.PermissionWrite
			}
			g, err := app.vault.GrantShare(cmd.Context(), args[0], args[1], perm, ttl)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("shared with %s (%s), grant %s", g.Grantee, g.Permission, g.ID)
			if g.ExpiresAt != nil {
				msg += ", expires " + g.ExpiresAt.Local().Format(time.RFC1123)
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("%s", msg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "grant write permission")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "grant lifetime, 0 for no expiry")
	return cmd
}

func newUnshareCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <grant-id>",
		Short: "Revoke a grant you issued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.vault.RevokeShare(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("revoked %s", args[0]))
			return nil
		},
	}
}

func newGrantsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "grants <item-id>",
		Short: "List active grants on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grants, err := app.vault.ListGrants(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(grants) == 0 {
				fmt.Fprintln(w, muted.Sprintf("not shared"))
				return nil
			}
			for _, g := range grants {
				expiry := "never"
				if g.ExpiresAt != nil {
					expiry = g.ExpiresAt.Local().Format(time.RFC1123)
				}
				fmt.Fprintf(w, "%s  %s  %s  expires %s\n", accent.Sprintf("%s", g.ID), g.Grantee, g.Permission, expiry)
			}
			return nil
		},
	}
}

func newReceivedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "received",
		Short: "List items other users shared with you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := app.vault.ListReceived(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(w, muted.Sprintf("nothing shared with you"))
				return nil
			}
			for _, r := range items {
				fmt.Fprintf(w, "%s  %s  from %s (%s)\n", accent.Sprintf("%s", r.Item.ID), r.Item.Title, r.Grant.Grantor, r.Grant.Permission)
			}
			return nil
		},
	}
}
