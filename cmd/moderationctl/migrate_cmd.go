package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menusam/listing-moderation/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply, roll back or inspect schema migrations",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &usageError{msg: "migrate expects exactly one of: up, down, status"}
			}
			switch args[0] {
			case "up", "down", "status":
				return nil
			default:
				return &usageError{msg: fmt.Sprintf("unknown migrate direction %q", args[0])}
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			manager, err := migrations.NewManager(s.pool)
			if err != nil {
				return err
			}
			defer manager.Close()

			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				applied, err := manager.Up(s.ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", len(applied))
				for _, v := range applied {
					fmt.Fprintf(out, "  %d\n", v)
				}
			case "down":
				version, err := manager.Down(s.ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "rolled back %d\n", version)
			case "status":
				statuses, err := manager.Status(s.ctx)
				if err != nil {
					return err
				}
				return printJSON(out, statuses)
			}
			return nil
		},
	}
	return cmd
}
