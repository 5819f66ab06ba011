package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func pluginsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage plugin registrations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List known plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, _ := signalContext()
			defer stop()
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			plugins, err := db.ListPlugins(ctx)
			if err != nil {
				return err
			}
			return c.emit(plugins, func() {
				if len(plugins) == 0 {
					fmt.Println("no plugins registered")
					return
				}
				for _, p := range plugins {
					state := color.YellowString("disabled")
					if p.Enabled {
						state = color.GreenString("enabled")
					}
					ack := ""
					if !p.Acknowledged {
						ack = " (unacknowledged)"
					}
					fmt.Printf("%-24s %s%s\n", p.Name, state, ack)
				}
			})
		},
	}

	action := func(verb string, run func(ctx *cobra.Command, name string) error) *cobra.Command {
		return &cobra.Command{
			Use:   verb + " <name>",
			Short: verb + " a plugin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, args[0])
			},
		}
	}

	enable := action("enable", func(cmd *cobra.Command, name string) error {
		ctx, stop, _ := signalContext()
		defer stop()
		db, err := c.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnablePlugin(ctx, name); err != nil {
			return err
		}
		fmt.Printf("enabled %s\n", name)
		return nil
	})

	disable := action("disable", func(cmd *cobra.Command, name string) error {
		ctx, stop, _ := signalContext()
		defer stop()
		db, err := c.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.DisablePlugin(ctx, name); err != nil {
			return err
		}
		fmt.Printf("disabled %s\n", name)
		return nil
	})

	acknowledge := action("acknowledge", func(cmd *cobra.Command, name string) error {
		ctx, stop, _ := signalContext()
		defer stop()
		db, err := c.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.AcknowledgePlugin(ctx, name); err != nil {
			return err
		}
		fmt.Printf("acknowledged %s\n", name)
		return nil
	})

	cmd.AddCommand(list, enable, disable, acknowledge)
	return cmd
}
