package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/keepershare/internal/vault"
)

func printItemLine(w io.Writer, it *vault.Item) {
	mark := " "
	if it.Favorite {
		mark = "*"
	}
	line := fmt.Sprintf("%s %s  %s", mark, accent.Sprintf("%s", it.ID), it.Title)
	if it.Username != "" {
		line += "  " + muted.Sprintf("%s", it.Username)
	}
	if it.BreachCount != nil && *it.BreachCount > 0 {
		line += "  " + danger.Sprintf("breached")
	}
	fmt.Fprintln(w, line)
}

func printItem(w io.Writer, it *vault.Item, reveal bool) {
	fmt.Fprintf(w, "%s\n", accent.Sprintf("%s", it.Title))
	fmt.Fprintf(w, "  id:       %s\n", it.ID)
	if it.Username != "" {
		fmt.Fprintf(w, "  username: %s\n", it.Username)
	}
	secret := "********"
	if reveal {
		secret = it.Secret
	}
	fmt.Fprintf(w, "  secret:   %s\n", secret)
	if it.URL != "" {
		fmt.Fprintf(w, "  url:      %s\n", it.URL)
	}
	if it.Notes != "" {
		fmt.Fprintf(w, "  notes:    %s\n", it.Notes)
	}
	for _, f := range it.CustomFields {
		v := f.Value
		if f.Kind == vault.FieldHidden && !reveal {
			v = "********"
		}
		fmt.Fprintf(w, "  %s: %s\n", f.Label, v)
	}
	if len(it.Tags) > 0 {
		names := make([]string, 0, len(it.Tags))
		for _, t := range it.Tags {
			names = append(names, t.Name)
		}
		fmt.Fprintf(w, "  tags:     %s\n", strings.Join(names, ", "))
	}
	if it.BreachCount != nil {
		if *it.BreachCount > 0 {
			fmt.Fprintf(w, "  %s\n", danger.Sprintf("seen in %d breaches", *it.BreachCount))
		} else {
			fmt.Fprintf(w, "  %s\n", success.Sprintf("not found in known breaches"))
		}
	}
	fmt.Fprintf(w, "  updated:  %s\n", it.UpdatedAt.Local().Format(time.RFC1123))
	for i, h := range it.History {
		fmt.Fprintf(w, "  %s\n", muted.Sprintf("version %d from %s", i, h.ChangedAt.Local().Format(time.RFC1123)))
	}
}

func newListCmd(app *App) *cobra.Command {
	var trash bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List vault items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := app.vault.ListItems
			if trash {
				list = app.vault.ListTrash
			}
			items, err := list(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(w, muted.Sprintf("no items"))
				return nil
			}
			for _, it := range items {
				printItemLine(w, it)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trash, "trash", false, "list deleted items instead")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := app.vault.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printItem(cmd.OutOrStdout(), it, reveal)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets in clear text")
	return cmd
}

func newAddCmd(app *App) *cobra.Command {
	var (
		f      vault.Fields
		tags   []string
		custom []string
		notes  bool
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an item; the secret is prompted for without echo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			f.Title = args[0]

			secret, err := GetPassword("Secret (empty for none)", w)
			if err != nil {
				return err
			}
			f.Secret = string(secret)

			if notes {
				if f.Notes, err = GetMultiline(app.input(cmd.InOrStdin()), "Notes", w); err != nil {
					return err
				}
			}
			for _, t := range tags {
				f.Tags = append(f.Tags, vault.Tag{Name: t})
			}
			if f.CustomFields, err = ParseCustomFields(custom); err != nil {
				return err
			}

			it, err := app.vault.CreateItem(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, success.Sprintf("created %s", it.ID))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.Username, "username", "u", "", "login name")
	fl.StringVar(&f.URL, "url", "", "site address")
	fl.StringSliceVar(&tags, "tag", nil, "tag name (repeatable)")
	fl.StringArrayVar(&custom, "field", nil, "custom field as label=value or label:kind=value (repeatable)")
	fl.BoolVar(&notes, "notes", false, "prompt for multi-line notes")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import items from a JSON array",
		Long: `Imports a JSON array of items, each with title, username, secret, url,
notes, tags and customFields. Entries with neither a secret nor a username
are skipped; any other invalid entry rejects the whole file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var items []vault.Fields
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			n, err := app.vault.ImportItems(cmd.Context(), items)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("imported %d of %d items", n, len(items)))
			return nil
		},
	}
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Move an item to the trash",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := app.vault.DeleteItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("moved %q to trash", it.Title))
			return nil
		},
	}
}

func newRestoreCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Take an item out of the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := app.vault.RestoreItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("restored %q", it.Title))
			return nil
		},
	}
}

func newPurgeCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <id>",
		Short: "Delete an item permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !yes && !Confirm(app.input(cmd.InOrStdin()), warning.Sprintf("This cannot be undone. Continue?"), w) {
				fmt.Fprintln(w, "aborted")
				return nil
			}
			if err := app.vault.PurgeItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(w, success.Sprintf("purged %s", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newRestoreVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-version <id> <index>",
		Short: "Roll an item back to a history entry (0 is the newest)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			it, err := app.vault.RestoreVersion(cmd.Context(), args[0], idx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprintf("restored %q to version %d", it.Title, idx))
			return nil
		},
	}
}
