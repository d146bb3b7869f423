package main

import (
	"fmt"

	"github.com/cracklabs/sluice/pkg/sift"
	"github.com/spf13/cobra"
)

var (
	siftPearls string
	siftGravel string
	siftOut    string
)

var siftCmd = &cobra.Command{
	Use:   "sift",
	Short: "Compute SAND = GRAVEL minus PEARLS as a standalone pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		pearlsPath := siftPearls
		if pearlsPath == "" {
			pearlsPath = cfg.PearlsFile()
		}
		gravelDir := siftGravel
		if gravelDir == "" {
			gravelDir = cfg.GravelDir()
		}
		outDir := siftOut
		if outDir == "" {
			outDir = cfg.SandDir()
		}

		exclude, malformed, err := sift.LoadPearls(pearlsPath)
		if err != nil {
			return err
		}
		if malformed > 0 {
			fmt.Printf("skipped %d malformed pearls lines\n", malformed)
		}

		counts, err := sift.NewEngine(cfg.Sift.BatchSize).Run(gravelDir, exclude, outDir)
		if err != nil {
			return err
		}
		fmt.Printf("%s into %d files\n", counts.Summary(), counts.OutFiles)
		return nil
	},
}

func init() {
	siftCmd.Flags().StringVar(&siftPearls, "pearls", "", "pearls file (default from config)")
	siftCmd.Flags().StringVar(&siftGravel, "gravel", "", "gravel dir (default from config)")
	siftCmd.Flags().StringVar(&siftOut, "out", "", "output dir (default from config)")
}
