package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newFinalizeCmd() *cobra.Command {
	var draftID string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Re-run finalization for a draft whose changes are all decided",
		Long: "Finalization is idempotent: a draft that is already final or still has pending changes is left untouched " +
			"and reported with finalized=false.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(draftID)
			if err != nil {
				return &usageError{msg: "--draft must be a UUID"}
			}
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := newModerationServices(s).finalizer.Finalize(s.ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&draftID, "draft", "", "draft id")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}
