package main

import (
	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "swaft",
	Short: "Team dashboard: OAuth sessions, profiles and realtime chat",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "http service address (overrides the default :8080)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
