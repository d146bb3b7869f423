package stage1

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/jobctl"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/cracklabs/sluice/pkg/sift"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// remoteShell is the slice of the SSH adapter the processor needs
type remoteShell interface {
	Exec(ctx context.Context, cmd string) (string, error)
	Upload(ctx context.Context, local, remotePath string) error
	Download(ctx context.Context, remotePath, local string) error
	RemoteFileSize(ctx context.Context, remotePath string) (int64, error)
}

// jobRunner runs one attack to completion on the remote host
type jobRunner interface {
	RunAttack(ctx context.Context, spec jobctl.Spec) (*types.JobResult, error)
}

// Processor drives one GRAVEL batch through the fixed universal attack:
// upload assets, crack, split the batch into PEARLS and SAND.
type Processor struct {
	cfg    *config.Config
	sh     remoteShell
	jobs   jobRunner
	store  *state.Stage1Store
	logger zerolog.Logger
}

// New builds a processor
func New(cfg *config.Config, sh remoteShell, jobs jobRunner, store *state.Stage1Store) *Processor {
	return &Processor{
		cfg:    cfg,
		sh:     sh,
		jobs:   jobs,
		store:  store,
		logger: log.WithComponent("stage1"),
	}
}

// Result is what one batch run produced
type Result struct {
	PearlCount int64
	SandCount  int64
	CrackRate  string
	Duration   float64
}

// Process runs the universal attack for one batch. Idempotent: a batch
// already recorded as completed returns the stored result without
// touching the remote host, and a re-run before the state write
// reproduces the same counts on disk.
func (p *Processor) Process(ctx context.Context, batch string) (*Result, error) {
	logger := p.logger.With().Str("batch", batch).Logger()

	if rec := p.store.Batch(batch); rec != nil && rec.Status == types.BatchStatusCompleted {
		logger.Info().Msg("batch already processed, returning stored result")
		return &Result{
			PearlCount: rec.PearlCount,
			SandCount:  rec.SandCount,
			CrackRate:  rec.CrackRate,
			Duration:   rec.DurationSeconds,
		}, nil
	}

	gravelPath, err := findGravel(p.cfg.GravelDir(), batch)
	if err != nil {
		return nil, err
	}

	remoteHash := p.remotePath("hashlists", batch+".txt")
	remotePot := p.remotePath("potfiles", batch+".pot")
	remoteLog := p.remotePath("", batch+".log")

	if err := p.ensureUploaded(ctx, gravelPath, remoteHash); err != nil {
		return nil, err
	}
	wordlist, rules, err := p.ensureAssets(ctx)
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("%s -m %d -a 0 %s %s -r %s --potfile-path %s -w 3 --status --status-timer 60",
		p.cfg.Remote.CrackerBinary, p.cfg.Remote.HashMode,
		remoteHash, wordlist, rules, remotePot)

	job, err := p.jobs.RunAttack(ctx, jobctl.Spec{
		Batch:   batch,
		Command: cmd,
		Potfile: remotePot,
		LogPath: remoteLog,
	})
	if err != nil {
		p.store.Fail(batch, err)
		_ = p.store.Save()
		return nil, fmt.Errorf("universal attack failed for %s: %w", batch, err)
	}

	localPot := filepath.Join(p.cfg.GravelDir(), batch+".pot")
	if err := p.sh.Download(ctx, remotePot, localPot); err != nil {
		return nil, fmt.Errorf("failed to download potfile: %w", err)
	}
	defer os.Remove(localPot)

	pairs, malformed, err := ParsePotfile(localPot)
	if err != nil {
		return nil, err
	}
	if malformed > 0 {
		logger.Warn().Int64("malformed", malformed).Msg("skipped malformed potfile lines")
	}

	appended, err := AppendPairs(p.cfg.PearlsFile(), pairs)
	if err != nil {
		return nil, err
	}

	cracked := make(sift.Set, len(pairs))
	for _, pair := range pairs {
		if k, ok := sift.ParseKey(pair.Hash); ok {
			cracked[k] = struct{}{}
		}
	}

	if err := os.MkdirAll(p.cfg.SandDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sand dir: %w", err)
	}
	sandPath := filepath.Join(p.cfg.SandDir(), batch+".txt.gz")
	counts, err := sift.SubtractFile(gravelPath, cracked, sandPath)
	if err != nil {
		return nil, fmt.Errorf("failed to write sand for %s: %w", batch, err)
	}

	// |PEARLS| + |SAND| must equal |GRAVEL|. A deviation is loud but
	// not fatal; the operator investigates while state stays truthful.
	if counts.Excluded+counts.Kept != counts.Read || counts.Excluded != int64(len(pairs)) {
		logger.Error().
			Int64("gravel", counts.Read).
			Int64("excluded", counts.Excluded).
			Int64("sand", counts.Kept).
			Int("potfile", len(pairs)).
			Msg("count verification failed")
	}

	rate := 0.0
	if counts.Read > 0 {
		rate = float64(len(pairs)) / float64(counts.Read) * 100
	}
	result := &Result{
		PearlCount: int64(len(pairs)),
		SandCount:  counts.Kept,
		CrackRate:  fmt.Sprintf("%.2f", rate),
		Duration:   job.DurationSeconds,
	}

	now := time.Now().UTC()
	p.store.Complete(batch, &types.Stage1Record{
		Status:          types.BatchStatusCompleted,
		HashCount:       counts.Read,
		PearlCount:      result.PearlCount,
		SandCount:       result.SandCount,
		CrackRate:       result.CrackRate,
		DurationSeconds: result.Duration,
		CompletedAt:     &now,
	})
	if err := p.store.Save(); err != nil {
		return nil, err
	}

	metrics.CrackedTotal.WithLabelValues("stage1").Add(float64(result.PearlCount))
	metrics.BatchesCompleted.WithLabelValues("stage1").Inc()

	p.cleanup(ctx, remoteHash, remotePot, remoteLog)
	logger.Info().
		Int64("pearls", result.PearlCount).
		Int64("sand", result.SandCount).
		Str("crackRate", result.CrackRate).
		Int64("newPearls", appended).
		Msg("batch processed")
	return result, nil
}

// ensureUploaded uploads local to remotePath unless a remote copy of the
// same size already exists
func (p *Processor) ensureUploaded(ctx context.Context, local, remotePath string) error {
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", local, err)
	}
	size, err := p.sh.RemoteFileSize(ctx, remotePath)
	if err != nil {
		return err
	}
	if size == info.Size() {
		return nil
	}
	if err := p.sh.Upload(ctx, local, remotePath); err != nil {
		return fmt.Errorf("failed to upload %s: %w", filepath.Base(local), err)
	}
	return nil
}

// ensureAssets uploads the universal wordlist and rule file when the
// remote host lacks them, and returns their remote paths
func (p *Processor) ensureAssets(ctx context.Context) (wordlist, rules string, err error) {
	wordlist = p.remotePath("wordlists", filepath.Base(p.cfg.Stage1.Wordlist))
	rules = p.remotePath("rules", filepath.Base(p.cfg.Stage1.Rules))

	for _, asset := range []struct{ local, remote string }{
		{p.cfg.Stage1.Wordlist, wordlist},
		{p.cfg.Stage1.Rules, rules},
	} {
		size, sizeErr := p.sh.RemoteFileSize(ctx, asset.remote)
		if sizeErr != nil {
			return "", "", sizeErr
		}
		if size >= 0 {
			continue
		}
		if upErr := p.sh.Upload(ctx, asset.local, asset.remote); upErr != nil {
			return "", "", fmt.Errorf("failed to upload attack asset: %w", upErr)
		}
	}
	return wordlist, rules, nil
}

// cleanup removes the per-batch remote files; failures only warn, the
// batch result is already durable
func (p *Processor) cleanup(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if _, err := p.sh.Exec(ctx, "rm -f "+path); err != nil {
			p.logger.Warn().Err(err).Str("path", path).Msg("remote cleanup failed")
		}
	}
}

func (p *Processor) remotePath(subdir, name string) string {
	if subdir == "" {
		return p.cfg.Remote.WorkDir + "/" + name
	}
	return p.cfg.Remote.WorkDir + "/" + subdir + "/" + name
}

// findGravel locates a batch's GRAVEL file, plain or gzipped
func findGravel(dir, batch string) (string, error) {
	for _, name := range []string{batch + ".txt", batch + ".txt.gz"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no gravel file for %s in %s", batch, dir)
}
