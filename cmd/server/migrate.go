package main

import (
	"context"
	"log"

	"swaft/internal/config"
	"swaft/internal/db"

	"github.com/spf13/cobra"
)

var seed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := db.NewDatabase(cfg.DSN)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		log.Println("✅ Database Schema Initialized")

		if seed {
			n, err := database.Seed(ctx)
			if err != nil {
				return err
			}
			log.Printf("✅ Seeded %d rooms", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&seed, "seed", false, "create the default rooms when none exist")
}
