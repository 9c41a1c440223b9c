package db

import (
	"context"
	"github.com/ValentinKolb/arangovst/cmd/util"
	"github.com/ValentinKolb/arangovst/rpc/client"
	"github.com/spf13/cobra"
)

var (
	vstClient *client.Client

	// DBCommands represents the database command group
	DBCommands = &cobra.Command{
		Use:                "db",
		Short:              "Send requests to a database server over VST",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: shutdownClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add connection and logging flags to the db command
	util.SetupClientFlags(DBCommands)
	util.SetupLogFlags(DBCommands)

	// Add subcommands
	DBCommands.AddCommand(versionCmd)
	DBCommands.AddCommand(execCmd)
	DBCommands.AddCommand(collectionCmd)
	DBCommands.AddCommand(docCmd)
	DBCommands.AddCommand(perfTestCmd)
}

// setupClient creates the client from flags and environment variables
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	var err error
	vstClient, err = client.New(util.GetClientConfig())
	return err
}

func shutdownClient(_ *cobra.Command, _ []string) error {
	if vstClient == nil {
		return nil
	}
	return vstClient.Shutdown()
}

// requestContext bounds a single CLI request
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), util.RequestTimeout())
}
