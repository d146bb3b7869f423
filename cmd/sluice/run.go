package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cracklabs/sluice/pkg/events"
	"github.com/cracklabs/sluice/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var (
	runBatch   int
	runThrough int
	runNext    bool
	runCount   int
	runResume  bool
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run batches through SYNC, ATTACKS, COLLECT, FEEDBACK and REBUILD",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runBatch <= 0 && !runNext {
			return fmt.Errorf("either --batch or --next is required")
		}
		if runThrough > 0 && runThrough < runBatch {
			return fmt.Errorf("--through %d is before --batch %d", runThrough, runBatch)
		}

		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		serveMetrics()
		go printEvents(st.broker.Subscribe())

		if runNext {
			return runNextBatches(ctx, st)
		}
		return runRange(ctx, st)
	},
}

func init() {
	runCmd.Flags().IntVar(&runBatch, "batch", 0, "batch number to run")
	runCmd.Flags().IntVar(&runThrough, "through", 0, "run batches --batch through this number")
	runCmd.Flags().BoolVar(&runNext, "next", false, "run the next unprocessed batch")
	runCmd.Flags().IntVar(&runCount, "count", 1, "with --next, number of batches to run in a row")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "continue an interrupted batch from its recorded step")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print planned steps without touching anything")
}

// runRange runs --batch through --through in order, stopping on the
// first fatal failure
func runRange(ctx context.Context, st *stack) error {
	through := runThrough
	if through == 0 {
		through = runBatch
	}
	for n := runBatch; n <= through; n++ {
		name := orchestrator.BatchName(n)
		if err := checkResume(st, name); err != nil {
			return err
		}
		if err := st.orch.RunBatch(ctx, name, runDryRun); err != nil {
			return err
		}
	}
	return nil
}

// runNextBatches re-resolves the next unprocessed batch after each run
func runNextBatches(ctx context.Context, st *stack) error {
	for i := 0; i < runCount; i++ {
		name, ok := st.orch.NextBatch()
		if !ok {
			fmt.Println("all batches fully processed")
			return nil
		}
		if err := st.orch.RunBatch(ctx, name, runDryRun); err != nil {
			return err
		}
		if runDryRun {
			// NextBatch would resolve the same batch forever
			return nil
		}
	}
	return nil
}

// checkResume refuses to silently re-enter a batch with prior progress;
// the operator opts in with --resume. Failed batches restart from SYNC
// without it.
func checkResume(st *stack, name string) error {
	if runResume || runDryRun {
		return nil
	}
	switch orchestrator.ResumeStep(st.store.Batch(name)) {
	case orchestrator.StepAttacks, orchestrator.StepCollect, orchestrator.StepFeedback:
		return fmt.Errorf("%s has prior progress; pass --resume to continue", name)
	}
	return nil
}

func printEvents(ch events.Subscriber) {
	for ev := range ch {
		fmt.Printf("[%s] %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Message)
	}
}
