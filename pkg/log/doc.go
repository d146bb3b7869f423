/*
Package log provides structured logging for sluice using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Str("batch", "batch-0001").Msg("starting attacks")

	attackLog := log.WithBatch("batch-0001").With().
		Str("attack", "brute-6").Logger()
	attackLog.Info().Int("cracked", 12840).Msg("attack completed")

The console format is the default for interactive runs; --json switches the
CLI to JSON output for log aggregation.
*/
package log
