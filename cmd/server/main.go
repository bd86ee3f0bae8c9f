package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "ccfolio",
		Short: "Connection fabric serving HTTP requests and push sessions on one port",
		// serve is the default
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before the environment")

	rootCmd.AddCommand(
		serveCmd(&envFile),
		apiKeyCmd(&envFile),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func envFiles(envFile string) []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}
