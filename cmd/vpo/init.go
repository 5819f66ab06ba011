package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory layout and the library store",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			return c.emit(map[string]string{
				"dataDir":  c.cfg.DataDir,
				"database": c.cfg.DatabaseFile(),
			}, func() {
				fmt.Printf("initialized %s (store at %s)\n", c.cfg.DataDir, c.cfg.DatabaseFile())
			})
		},
	}
}
