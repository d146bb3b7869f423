package orchestrator

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/events"
	"github.com/cracklabs/sluice/pkg/feedback"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/scheduler"
	"github.com/cracklabs/sluice/pkg/sift"
	"github.com/cracklabs/sluice/pkg/stage1"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// Step is one stage of the per-batch state machine
type Step int

const (
	StepSync Step = iota + 1
	StepAttacks
	StepCollect
	StepFeedback
	StepRebuild
	// StepDone marks a fully processed batch: completed with feedback
	StepDone
)

// String returns the step name
func (s Step) String() string {
	switch s {
	case StepSync:
		return "SYNC"
	case StepAttacks:
		return "ATTACKS"
	case StepCollect:
		return "COLLECT"
	case StepFeedback:
		return "FEEDBACK"
	case StepRebuild:
		return "REBUILD"
	case StepDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// ResumeStep computes where a batch resumes from its state record
// alone. No sidecar files are consulted.
func ResumeStep(rec *types.BatchRecord) Step {
	switch {
	case rec == nil,
		rec.Status == types.BatchStatusPending,
		rec.Status == types.BatchStatusFailed:
		return StepSync
	case rec.Status == types.BatchStatusInProgress && len(rec.AttacksRemaining) > 0:
		return StepAttacks
	case rec.Status == types.BatchStatusInProgress:
		return StepCollect
	case rec.Status == types.BatchStatusCompleted && rec.Feedback == nil:
		return StepFeedback
	default:
		return StepDone
	}
}

// batchRunner is the slice of the attack scheduler the orchestrator
// drives
type batchRunner interface {
	EnsureBatch(ctx context.Context, name string, hashes []string) (*types.BatchRecord, error)
	RunBatch(ctx context.Context, name string, hashes []string) error
	Maintain() error
}

// cracksDownloader bulk-downloads a hashlist's recovered pairs
type cracksDownloader interface {
	GetCrackedHashes(ctx context.Context, hashlistID string) ([]types.CrackedPair, error)
}

// analyzer runs the feedback stage over a passwords file
type analyzer interface {
	Analyze(ctx context.Context, passwordsPath string) (*feedback.Report, error)
}

// uploader pushes the regenerated feedback artifacts to the remote host
type uploader interface {
	Upload(ctx context.Context, local, remotePath string) error
}

// Orchestrator drives batches through SYNC, ATTACKS, COLLECT, FEEDBACK
// and REBUILD, resuming from state
type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	sched    batchRunner
	svc      cracksDownloader
	analyzer analyzer
	up       uploader
	broker   *events.Broker
	out      io.Writer
	logger   zerolog.Logger
}

// New builds an orchestrator. broker and up may be nil.
func New(cfg *config.Config, store *state.Store, sched batchRunner, svc cracksDownloader,
	an analyzer, up uploader, broker *events.Broker) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		sched:    sched,
		svc:      svc,
		analyzer: an,
		up:       up,
		broker:   broker,
		out:      os.Stdout,
		logger:   log.WithComponent("orchestrator"),
	}
}

// RunBatch drives one batch from its resume step through REBUILD.
// Fatal failures in the first three steps print a copy-pasteable
// resume command; FEEDBACK and REBUILD failures are non-fatal because
// the batch's cracks are already durable.
func (o *Orchestrator) RunBatch(ctx context.Context, name string, dryRun bool) error {
	step := ResumeStep(o.store.Batch(name))
	logger := o.logger.With().Str("batch", name).Logger()

	if step == StepDone {
		logger.Info().Msg("batch already fully processed")
		return nil
	}
	logger.Info().Str("resume", step.String()).Msg("starting batch")

	if dryRun {
		for s := step; s < StepDone; s++ {
			fmt.Fprintf(o.out, "%s: would run %s\n", name, s)
		}
		return nil
	}

	if step <= StepAttacks {
		if err := o.runAttacks(ctx, name, step); err != nil {
			o.printResume(name, err)
			return err
		}
	}
	if step <= StepCollect {
		if err := o.collect(ctx, name); err != nil {
			o.printResume(name, err)
			return err
		}
	}

	// Feedback and rebuild: the cracks are durable, retry independently
	if err := o.feedbackStep(ctx, name); err != nil {
		logger.Warn().Err(err).Msg("feedback stage failed")
		fmt.Fprintf(o.out, "%s: feedback failed (%v); retry with: sluice feedback --batch %d\n",
			name, err, batchNumber(name))
		return nil
	}
	if err := o.rebuild(ctx, name); err != nil {
		logger.Warn().Err(err).Msg("rebuild stage failed")
		fmt.Fprintf(o.out, "%s: rebuild failed (%v); retry with: sluice run --batch %d --resume\n",
			name, err, batchNumber(name))
		return nil
	}

	if err := o.sched.Maintain(); err != nil {
		logger.Warn().Err(err).Msg("maintenance pass failed")
	}
	o.publish(events.EventBatchCompleted, name, "batch fully processed")
	logger.Info().Msg("batch fully processed")
	return nil
}

// runAttacks performs SYNC (register if needed) and ATTACKS
func (o *Orchestrator) runAttacks(ctx context.Context, name string, step Step) error {
	var hashes []string
	if o.store.Batch(name) == nil {
		var err error
		hashes, err = o.loadSand(name)
		if err != nil {
			return err
		}
	}

	if step == StepSync {
		if _, err := o.sched.EnsureBatch(ctx, name, hashes); err != nil {
			return err
		}
		o.publish(events.EventBatchStarted, name, "batch registered")

		// A failed batch restarts its attack plan from the top
		if rec := o.store.Batch(name); rec.Status == types.BatchStatusFailed {
			rec.Status = types.BatchStatusPending
			rec.Error = ""
		}
	}

	return o.sched.RunBatch(ctx, name, hashes)
}

// collect writes the batch's DIAMONDS artifacts and the GLASS residue
func (o *Orchestrator) collect(ctx context.Context, name string) error {
	rec := o.store.Batch(name)
	if rec == nil {
		return fmt.Errorf("no state record for %s", name)
	}

	pairs, err := o.svc.GetCrackedHashes(ctx, rec.HashlistID)
	if err != nil {
		return fmt.Errorf("failed to download cracks for %s: %w", name, err)
	}

	for _, dir := range []string{o.cfg.DiamondsDir(), o.cfg.GlassDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := writePairsFile(filepath.Join(o.cfg.DiamondsDir(), name+".txt"), pairs); err != nil {
		return err
	}
	if err := writePasswordsFile(o.passwordsPath(name), pairs); err != nil {
		return err
	}
	if _, err := stage1.AppendPairs(o.cfg.DiamondsFile(), pairs); err != nil {
		return err
	}

	// GLASS = SAND minus everything cracked in Stage 2
	cracked := make(sift.Set, len(pairs))
	for _, pair := range pairs {
		if k, ok := sift.ParseKey(pair.Hash); ok {
			cracked[k] = struct{}{}
		}
	}
	sandPath, err := findSand(o.cfg.SandDir(), name)
	if err != nil {
		return err
	}
	counts, err := sift.SubtractFile(sandPath, cracked, filepath.Join(o.cfg.GlassDir(), name+".txt"))
	if err != nil {
		return fmt.Errorf("failed to write glass for %s: %w", name, err)
	}

	o.logger.Info().Str("batch", name).
		Int("diamonds", len(pairs)).
		Int64("glass", counts.Kept).
		Msg("collection complete")
	return nil
}

// feedbackStep analyzes the batch's plaintexts and records the summary
func (o *Orchestrator) feedbackStep(ctx context.Context, name string) error {
	rec := o.store.Batch(name)
	if rec != nil && rec.Feedback != nil {
		return nil
	}

	// Resuming directly into FEEDBACK after a crash may predate the
	// collection artifacts; rebuild them first.
	if _, err := os.Stat(o.passwordsPath(name)); os.IsNotExist(err) {
		if err := o.collect(ctx, name); err != nil {
			return err
		}
	}

	report, err := o.analyzer.Analyze(ctx, o.passwordsPath(name))
	if err != nil {
		return err
	}

	summary := report.Summary()
	summary.FeedbackCracks = feedbackCracks(rec)
	if err := o.store.SetFeedback(name, summary); err != nil {
		return err
	}
	if err := o.store.Save(); err != nil {
		return err
	}

	o.publish(events.EventFeedbackGenerated, name,
		fmt.Sprintf("%d new roots, %d new rules", summary.NewRoots, summary.NewRules))
	return nil
}

// rebuild pushes the regenerated wordlist and rule files to the remote
// host so the next batch's feedback attacks see them
func (o *Orchestrator) rebuild(ctx context.Context, name string) error {
	if o.up == nil {
		return nil
	}
	for _, f := range []struct{ local, remote string }{
		{o.cfg.BetaFile(), o.cfg.Remote.WorkDir + "/wordlists/BETA.txt"},
		{o.cfg.RuleFile(), o.cfg.Remote.WorkDir + "/rules/unobtainium.rule"},
	} {
		if _, err := os.Stat(f.local); os.IsNotExist(err) {
			continue // nothing generated yet
		}
		if err := o.up.Upload(ctx, f.local, f.remote); err != nil {
			return fmt.Errorf("failed to upload %s: %w", filepath.Base(f.local), err)
		}
	}
	o.logger.Info().Str("batch", name).Msg("feedback artifacts rebuilt")
	return nil
}

// RunFeedback retries the FEEDBACK and REBUILD stages for one batch,
// independently of the attack pipeline
func (o *Orchestrator) RunFeedback(ctx context.Context, name string) error {
	if err := o.feedbackStep(ctx, name); err != nil {
		return err
	}
	return o.rebuild(ctx, name)
}

// NextBatch returns the first batch with a SAND file that is not fully
// processed, scanning in name order
func (o *Orchestrator) NextBatch() (string, bool) {
	entries, err := os.ReadDir(o.cfg.SandDir())
	if err != nil {
		return "", false
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "batch-") {
			continue
		}
		name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".txt")
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ResumeStep(o.store.Batch(name)) != StepDone {
			return name, true
		}
	}
	return "", false
}

func (o *Orchestrator) printResume(name string, err error) {
	fmt.Fprintf(o.out, "%s failed: %v\nresume with: sluice run --batch %d --resume\n",
		name, err, batchNumber(name))
}

func (o *Orchestrator) publish(t events.EventType, batch, message string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(events.New(t, message, map[string]string{"batch": batch}))
}

func (o *Orchestrator) passwordsPath(name string) string {
	return filepath.Join(o.cfg.DiamondsDir(), "passwords-"+name+".txt")
}

// loadSand reads a batch's SAND hashes for hashlist registration
func (o *Orchestrator) loadSand(name string) ([]string, error) {
	path, err := findSand(o.cfg.SandDir(), name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sand file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read sand file: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var hashes []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			hashes = append(hashes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sand file: %w", err)
	}
	return hashes, nil
}

func findSand(dir, batch string) (string, error) {
	for _, name := range []string{batch + ".txt.gz", batch + ".txt"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no sand file for %s in %s", batch, dir)
}

// feedbackCracks sums the cracks of feedback-fed attacks
func feedbackCracks(rec *types.BatchRecord) int64 {
	if rec == nil {
		return 0
	}
	var n int64
	for _, result := range rec.AttackResults {
		if spec := scheduler.Lookup(result.Attack); spec != nil && spec.Feedback {
			n += result.NewCracks
		}
	}
	return n
}

// batchNumber extracts the ordinal from a batch name; "batch-0005" is 5
func batchNumber(name string) int {
	var n int
	fmt.Sscanf(name, "batch-%d", &n)
	return n
}

// BatchName renders an ordinal as a batch name
func BatchName(n int) string {
	return fmt.Sprintf("batch-%04d", n)
}
