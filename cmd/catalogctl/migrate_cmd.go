package main

import (
	"github.com/spf13/cobra"

	"catalogadmin/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.connect()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			if seed {
				return database.Seed(db)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "Create the Uncategorized roots when missing")
	return cmd
}
