package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/policy"
)

func policyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Policy document operations",
	}

	validate := &cobra.Command{
		Use:   "validate <files...>",
		Short: "Validate policy documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type result struct {
				Path  string `json:"path"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}
			var results []result
			var firstErr error

			for _, path := range args {
				res := result{Path: path, Valid: true}
				if _, err := policy.LoadFile(path); err != nil {
					res.Valid = false
					res.Error = err.Error()
					if firstErr == nil {
						firstErr = err
					}
				}
				results = append(results, res)
			}

			if err := c.emit(results, func() {
				for _, res := range results {
					if res.Valid {
						fmt.Printf("%s %s\n", color.GreenString("VALID  "), res.Path)
					} else {
						fmt.Printf("%s %s: %s\n", color.RedString("INVALID"), res.Path, res.Error)
					}
				}
			}); err != nil {
				return err
			}
			return firstErr
		},
	}

	cmd.AddCommand(validate)
	return cmd
}

func policiesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage the policy library",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List policies in the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(c.cfg.PoliciesDir())
			if err != nil {
				if os.IsNotExist(err) {
					return c.emit([]string{}, func() { fmt.Println("no policies") })
				}
				return err
			}
			var names []string
			for _, e := range entries {
				name := e.Name()
				if !e.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
					names = append(names, strings.TrimSuffix(strings.TrimSuffix(name, ".yml"), ".yaml"))
				}
			}
			sort.Strings(names)
			return c.emit(names, func() {
				for _, name := range names {
					fmt.Println(name)
				}
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(c.cfg.PoliciesDir(), args[0]+".yaml")
			pol, err := policy.LoadFile(path)
			if err != nil {
				return err
			}
			if c.json {
				return c.emit(pol, nil)
			}
			data, err := policy.Serialize(pol)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
