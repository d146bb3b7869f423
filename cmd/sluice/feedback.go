package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cracklabs/sluice/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var feedbackBatch int

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Retry the feedback and rebuild stages for one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedbackBatch <= 0 {
			return fmt.Errorf("--batch is required")
		}

		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		name := orchestrator.BatchName(feedbackBatch)
		if err := st.orch.RunFeedback(ctx, name); err != nil {
			return err
		}
		rec := st.store.Batch(name)
		if rec != nil && rec.Feedback != nil {
			fmt.Printf("%s: %d new roots, %d new rules\n",
				name, rec.Feedback.NewRoots, rec.Feedback.NewRules)
		}
		return nil
	},
}

func init() {
	feedbackCmd.Flags().IntVar(&feedbackBatch, "batch", 0, "batch number to analyze")
}
