package cmd

import (
	"dicom-object-store/database/migrate"

	"github.com/spf13/cobra"
)

var reset bool

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version|set_version N]",
	Short: "use go-pg migration tool",
	Long:  `migrate uses go-pg migration tool under the hood supporting the same commands and an additional reset command`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		if reset {
			return migrate.Reset(db)
		}
		if len(args) == 0 {
			args = []string{"up"}
		}
		return migrate.Migrate(db, args)
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&reset, "reset", false, "reset database to version 0 and run all migrations")
}
