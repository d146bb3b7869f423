package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusColors = map[types.BatchStatus]*color.Color{
	types.BatchStatusPending:    color.New(color.FgCyan),
	types.BatchStatusInProgress: color.New(color.FgYellow),
	types.BatchStatusCompleted:  color.New(color.FgGreen),
	types.BatchStatusFailed:     color.New(color.FgRed, color.Bold),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress (read-only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		printStage1Status()
		return printStage2Status()
	},
}

// printStage1Status summarizes GRAVEL processing; a missing state file
// just means Stage 1 has not run here
func printStage1Status() {
	store := state.NewStage1Store(cfg.Stage1StatePath())
	st, err := store.Load()
	if err != nil || len(st.Batches) == 0 {
		return
	}

	var hashes, pearls, sand int64
	completed := 0
	for _, rec := range st.Batches {
		hashes += rec.HashCount
		pearls += rec.PearlCount
		sand += rec.SandCount
		if rec.Status == types.BatchStatusCompleted {
			completed++
		}
	}
	fmt.Printf("stage 1: %d/%d batches, %s hashes, %s pearls, %s sand\n\n",
		completed, len(st.Batches),
		humanize.Comma(hashes), humanize.Comma(pearls), humanize.Comma(sand))
}

func printStage2Status() error {
	store := state.NewStore(cfg.StatePath())
	st, err := store.Load()
	if err != nil {
		return err
	}
	if len(st.Batches) == 0 {
		fmt.Println("stage 2: no batches yet")
		return nil
	}

	names := make([]string, 0, len(st.Batches))
	for name := range st.Batches {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Batch", "Status", "Hashes", "Cracked", "Rate %", "Attacks", "Feedback"})

	var totalHashes, totalCracked int64
	for _, name := range names {
		rec := st.Batches[name]
		totalHashes += rec.HashCount
		totalCracked += rec.Cracked

		rate := "-"
		if rec.HashCount > 0 {
			rate = fmt.Sprintf("%.2f", float64(rec.Cracked)/float64(rec.HashCount)*100)
		}
		fb := "-"
		if rec.Feedback != nil {
			fb = fmt.Sprintf("%d roots, %d rules", rec.Feedback.NewRoots, rec.Feedback.NewRules)
		}
		status := string(rec.Status)
		if c := statusColors[rec.Status]; c != nil {
			status = c.Sprint(status)
		}
		t.AppendRow(table.Row{
			name,
			status,
			humanize.Comma(rec.HashCount),
			humanize.Comma(rec.Cracked),
			rate,
			fmt.Sprintf("%d/%d", len(rec.AttacksApplied), len(rec.AttacksApplied)+len(rec.AttacksRemaining)),
			fb,
		})
	}
	t.AppendFooter(table.Row{"total", "", humanize.Comma(totalHashes), humanize.Comma(totalCracked), "", "", ""})
	t.Render()

	for _, name := range names {
		if rec := st.Batches[name]; rec.Status == types.BatchStatusFailed && rec.Error != "" {
			fmt.Printf("%s failed: %s\n", name, rec.Error)
		}
	}
	return nil
}
