package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/keepershare/internal/breach"
	"github.com/dmitrijs2005/keepershare/internal/common"
	gs "github.com/dmitrijs2005/keepershare/internal/server/grpc"
)

func newBreachCmd(app *App) *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "breach",
		Short: "Check a password against the breach corpus",
		Long: `Prompts for a password without echo and looks it up by k-anonymity:
only the first five characters of its SHA-1 hash leave this machine.

With --batch, reads one password per line from standard input instead and
reports results by line number.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if batch {
				return runBreachBatch(cmd, app)
			}

			pw, err := GetPassword("Password", w)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)
			if len(pw) == 0 {
				return fmt.Errorf("empty password")
			}

			res := app.breach.Check(cmd.Context(), string(pw))
			if res.Err != nil {
				return res.Err
			}
			printBreachCount(w, res.Count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "read passwords from stdin, one per line")
	return cmd
}

func runBreachBatch(cmd *cobra.Command, app *App) error {
	var (
		secrets []string
		lines   []int
	)
	sc := bufio.NewScanner(cmd.InOrStdin())
	for n := 1; sc.Scan(); n++ {
		if pw := strings.TrimRight(sc.Text(), "\r"); pw != "" {
			secrets = append(secrets, pw)
			lines = append(lines, n)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no passwords on input")
	}

	progress := cmd.ErrOrStderr()
	results := app.breach.CheckBatch(cmd.Context(), secrets, func(p breach.Progress) {
		fmt.Fprintf(progress, "checked %d/%d (%.0f%%)\n", p.Current, p.Total, p.Percentage)
	})

	w := cmd.OutOrStdout()
	breached := 0
	for i, r := range results {
		label := fmt.Sprintf("line %d", lines[i])
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%s  %s\n", label, warning.Sprintf("check failed: %v", r.Err))
		case r.Count > 0:
			breached++
			fmt.Fprintf(w, "%s  %s\n", label, danger.Sprintf("found in %d breaches", r.Count))
		default:
			fmt.Fprintf(w, "%s  %s\n", label, success.Sprintf("ok"))
		}
	}
	fmt.Fprintf(w, "%d checked, %d breached\n", len(results), breached)
	return cmd.Context().Err()
}

func printBreachCount(w io.Writer, count int) {
	if count > 0 {
		fmt.Fprintln(w, danger.Sprintf("found in %d breaches, do not use it", count))
		return
	}
	fmt.Fprintln(w, success.Sprintf("not found in known breaches"))
}

func newScanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [item-id...]",
		Short: "Have the server breach-check stored items (all active items by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := app.vault.CheckBreaches(cmd.Context(), args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			breached := 0
			for _, r := range results {
				printScanResult(w, r)
				if r.Error == "" && r.Count > 0 {
					breached++
				}
			}
			fmt.Fprintf(w, "%d checked, %d breached\n", len(results), breached)
			return nil
		},
	}
}

func printScanResult(w io.Writer, r gs.BreachResult) {
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "%s  %s\n", r.ItemID, warning.Sprintf("check failed: %s", r.Error))
	case r.Count > 0:
		fmt.Fprintf(w, "%s  %s\n", r.ItemID, danger.Sprintf("found in %d breaches", r.Count))
	default:
		fmt.Fprintf(w, "%s  %s\n", r.ItemID, success.Sprintf("ok"))
	}
}
