package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPendingCmd() *cobra.Command {
	var establishmentID string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Print an establishment's pending drafts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(establishmentID)
			if err != nil {
				return &usageError{msg: "--establishment must be a UUID"}
			}
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			drafts, err := newModerationServices(s).decisions.ListPending(s.ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), drafts)
		},
	}
	cmd.Flags().StringVar(&establishmentID, "establishment", "", "establishment id")
	_ = cmd.MarkFlagRequired("establishment")
	return cmd
}
