package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/cracklabs/sluice/pkg/jobctl"
	"github.com/cracklabs/sluice/pkg/orchestrator"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/stage1"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/spf13/cobra"
)

var (
	stage1Batch int
	stage1Next  bool
	stage1Count int
)

var stage1Cmd = &cobra.Command{
	Use:   "stage1",
	Short: "Run the universal attack on GRAVEL batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if stage1Batch <= 0 && !stage1Next {
			return fmt.Errorf("either --batch or --next is required")
		}

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		release, err := state.Lock(cfg.DataDir)
		if err != nil {
			return err
		}
		defer release()

		store := state.NewStage1Store(cfg.Stage1StatePath())
		if _, err := store.Load(); err != nil {
			return err
		}

		sh := remote.NewShell(cfg.Remote)
		proc := stage1.New(cfg, sh, jobctl.New(sh, cfg.Remote), store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		serveMetrics()

		count := stage1Count
		if !stage1Next {
			count = 1
		}
		for i := 0; i < count; i++ {
			name := orchestrator.BatchName(stage1Batch)
			if stage1Next {
				var ok bool
				name, ok = nextGravelBatch(store)
				if !ok {
					fmt.Println("all gravel batches processed")
					return nil
				}
			}
			result, err := proc.Process(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d pearls, %d sand, %s%% cracked\n",
				name, result.PearlCount, result.SandCount, result.CrackRate)
		}
		return nil
	},
}

func init() {
	stage1Cmd.Flags().IntVar(&stage1Batch, "batch", 0, "batch number to process")
	stage1Cmd.Flags().BoolVar(&stage1Next, "next", false, "process the next unprocessed gravel batch")
	stage1Cmd.Flags().IntVar(&stage1Count, "count", 1, "with --next, number of batches to process in a row")
}

// nextGravelBatch scans the gravel dir in name order for a batch not
// yet recorded as completed
func nextGravelBatch(store *state.Stage1Store) (string, bool) {
	entries, err := os.ReadDir(cfg.GravelDir())
	if err != nil {
		return "", false
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "batch-") {
			continue
		}
		if !strings.HasSuffix(name, ".txt") && !strings.HasSuffix(name, ".txt.gz") {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".txt"))
	}
	sort.Strings(names)

	for _, name := range names {
		if rec := store.Batch(name); rec == nil || rec.Status != types.BatchStatusCompleted {
			return name, true
		}
	}
	return "", false
}
