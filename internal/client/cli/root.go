package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/keepershare/internal/client/config"
	"github.com/dmitrijs2005/keepershare/internal/flagx"
)

type rootFlags struct {
	configFile string
	server     string
	token      string
	noColor    bool
}

// NewRootCmd builds the keeper command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "keeper",
		Short: "keeper - operator CLI for a keepershare vault",
		Long: `keeper talks to a keepershare server to manage vault items, grants
and one-time share links. It can also check a password against the breach
corpus without the password leaving this machine.

The access token is taken from --token, $KEEPER_TOKEN or the config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.reader = nil
			if flags.noColor {
				color.NoColor = true
			}
			if app.config == nil {
				path := flags.configFile
				if path == "" {
					path = os.Getenv(flagx.ConfigEnvVar)
				}
				cfg, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				app.config = cfg
			}
			if cmd.Flags().Changed("server") {
				app.config.ServerEndpointAddr = flags.server
			}
			if cmd.Flags().Changed("token") {
				app.config.AccessToken = flags.token
			}
			return app.connect()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "path to JSON config file")
	pf.StringVarP(&flags.server, "server", "a", "", "address:port of the gRPC endpoint")
	pf.StringVarP(&flags.token, "token", "t", "", "access token")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newListCmd(app),
		newShowCmd(app),
		newAddCmd(app),
		newImportCmd(app),
		newDeleteCmd(app),
		newRestoreCmd(app),
		newPurgeCmd(app),
		newRestoreVersionCmd(app),
		newShareCmd(app),
		newUnshareCmd(app),
		newGrantsCmd(app),
		newReceivedCmd(app),
		newLinkCmd(app),
		newRevealCmd(app),
		newBreachCmd(app),
		newScanCmd(app),
		newAuditCmd(app),
		newTokenCmd(),
	)
	return root
}
