package cmd

import (
	"fmt"
	"github.com/ValentinKolb/arangovst/cmd/db"
	"github.com/ValentinKolb/arangovst/cmd/serve"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "avst",
		Short: "asynchronous VelocyStream database client",
		Long: fmt.Sprintf(`avst (v%s)

A client for document databases speaking the VelocyStream (VST) protocol,
with multiplexed connections, asynchronous requests and client side caches.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of avst",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("avst v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(db.DBCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
