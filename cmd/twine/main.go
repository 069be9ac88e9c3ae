// Command twine serves the customer/credential API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "twine",
		Short: "Customers and their credentials over HTTP",
		Long: `twine stores customers and the credentials that share their id.

Configuration is read from --config, TWINE_* environment variables
(TWINE_STORE_BACKEND, TWINE_HTTP_ADDR, ...) and flags.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(newServeCmd(&configFile), newMigrateCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
