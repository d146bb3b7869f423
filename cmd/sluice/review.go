package main

import (
	"os"

	"github.com/cracklabs/sluice/pkg/review"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Show per-attack ROI and plan recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := state.NewStore(cfg.StatePath())
		st, err := store.Load()
		if err != nil {
			return err
		}
		review.Analyze(st).Render(os.Stdout)
		return nil
	},
}
