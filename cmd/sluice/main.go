package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Sluice - two-stage feedback-driven hash cracking pipeline",
	Long: `Sluice drives large hash corpora through a two-stage pipeline:
Stage 1 runs a fixed universal attack against each raw batch, and
Stage 2 works the residue through a tiered attack plan whose wordlist
and rules grow from each batch's own recovered plaintexts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sluice %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "sluice.yaml", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(stage1Cmd)
	rootCmd.AddCommand(siftCmd)
	rootCmd.AddCommand(feedbackCmd)
}

// serveMetrics exposes Prometheus metrics for the lifetime of the
// process when metricsAddr is configured
func serveMetrics() {
	if cfg.MetricsAddr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Logger.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener failed")
		}
	}()
}
