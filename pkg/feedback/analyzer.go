package feedback

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// oracleClient resolves breach counts for candidate roots. Best-effort:
// unresolvable roots read as 0.
type oracleClient interface {
	Counts(ctx context.Context, passwords []string) map[string]int64
}

// RootInfo describes one newly discovered root
type RootInfo struct {
	Root        string
	Freq        int
	Cohorts     []string
	OracleCount int64
	Samples     []string
}

// Report is the outcome of one analyzer run
type Report struct {
	Total      int // plaintexts read
	Unique     int
	Structured int
	Random     int

	NewRoots         []RootInfo
	CohortMatched    map[string][]string // cohort name → roots
	PotentialCohorts map[string][]string // discovery pattern → roots
	OraclePromoted   []string
	BetaAdded        []string
	RulesAdded       []string
	CohortGrowth     map[string][]string // seed file → appended roots
}

// Summary condenses the report into the per-batch state record
func (r *Report) Summary() *types.FeedbackSummary {
	matched := 0
	for _, roots := range r.CohortMatched {
		matched += len(roots)
	}
	return &types.FeedbackSummary{
		NewRoots:       len(r.BetaAdded),
		NewRules:       len(r.RulesAdded),
		CohortMatched:  matched,
		OraclePromoted: len(r.OraclePromoted),
		GeneratedAt:    time.Now().UTC(),
	}
}

// Analyzer turns one batch of recovered plaintexts into wordlist and
// rule additions for the next batch
type Analyzer struct {
	cfg         config.AnalyzerConfig
	oracleCfg   config.OracleConfig
	baseline    map[string]struct{}
	oracle      oracleClient
	feedbackDir string
	betaPath    string
	rulePath    string
	logger      zerolog.Logger
}

// New builds an analyzer. oracle may be nil; promotion is then skipped.
func New(cfg *config.Config, oracle oracleClient) (*Analyzer, error) {
	a := &Analyzer{
		cfg:         cfg.Analyzer,
		oracleCfg:   cfg.Oracle,
		oracle:      oracle,
		feedbackDir: cfg.FeedbackDir(),
		betaPath:    cfg.BetaFile(),
		rulePath:    cfg.RuleFile(),
		logger:      log.WithComponent("feedback"),
	}

	baseline, err := loadWordSet(cfg.Analyzer.BaselineWordlist)
	if err != nil {
		return nil, err
	}
	a.baseline = baseline
	return a, nil
}

// Analyze streams the unique plaintexts of one batch and writes the
// wordlist and rule additions. Everything except the oracle step is
// pure-local and deterministic for a given input.
func (a *Analyzer) Analyze(ctx context.Context, passwordsPath string) (*Report, error) {
	report := &Report{
		CohortMatched:    make(map[string][]string),
		PotentialCohorts: make(map[string][]string),
		CohortGrowth:     make(map[string][]string),
	}

	rootFreq := make(map[string]int)
	rootSamples := make(map[string][]string)
	stats := newRuleStats()
	seen := make(map[string]struct{})

	f, err := os.Open(passwordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open passwords file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		pw := strings.TrimRight(scanner.Text(), "\r\n")
		if pw == "" {
			continue
		}
		report.Total++
		if _, dup := seen[pw]; dup {
			continue
		}
		seen[pw] = struct{}{}
		report.Unique++

		structured, parts := Classify(pw, a.cfg)
		if !structured {
			report.Random++
			continue
		}
		report.Structured++
		stats.observe(pw, parts)

		root := parts.Root
		if !a.isNewRoot(root) {
			continue
		}
		rootFreq[root]++
		if len(rootSamples[root]) < 3 {
			rootSamples[root] = append(rootSamples[root], pw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passwords file: %w", err)
	}

	// Cohort classification
	var unclassified []string
	for root, freq := range rootFreq {
		info := RootInfo{
			Root:    root,
			Freq:    freq,
			Cohorts: MatchCohorts(root),
			Samples: rootSamples[root],
		}
		report.NewRoots = append(report.NewRoots, info)
		if len(info.Cohorts) == 0 {
			unclassified = append(unclassified, root)
			continue
		}
		for _, name := range info.Cohorts {
			report.CohortMatched[name] = append(report.CohortMatched[name], root)
		}
	}
	sort.Slice(report.NewRoots, func(i, j int) bool {
		if report.NewRoots[i].Freq != report.NewRoots[j].Freq {
			return report.NewRoots[i].Freq > report.NewRoots[j].Freq
		}
		return report.NewRoots[i].Root < report.NewRoots[j].Root
	})
	sort.Strings(unclassified)

	report.PotentialCohorts = Discover(unclassified, a.cfg.MinDiscovery)
	for name, roots := range report.PotentialCohorts {
		a.logger.Info().Str("pattern", name).Int("matches", len(roots)).
			Msg("potential new cohort")
	}

	a.promote(ctx, report, rootFreq, unclassified)

	if err := a.writeBeta(report, rootFreq); err != nil {
		return nil, err
	}
	if err := a.writeRules(report, stats); err != nil {
		return nil, err
	}
	if err := a.growCohorts(report); err != nil {
		return nil, err
	}

	metrics.FeedbackRoots.Add(float64(len(report.BetaAdded)))
	a.logger.Info().
		Int("unique", report.Unique).
		Int("structured", report.Structured).
		Int("betaAdded", len(report.BetaAdded)).
		Int("rulesAdded", len(report.RulesAdded)).
		Msg("feedback analysis complete")
	return report, nil
}

// isNewRoot applies the new-root gate: long enough, not baseline, not a
// keyboard walk
func (a *Analyzer) isNewRoot(root string) bool {
	if len(root) < a.cfg.MinRootLen {
		return false
	}
	if _, ok := a.baseline[root]; ok {
		return false
	}
	return !IsKeyboardFragment(root)
}

// promote consults the breach-count oracle for borderline unclassified
// roots: length ≥ 4, not already earning a wordlist slot on local
// frequency. Capped per batch; failures conservatively read as 0.
func (a *Analyzer) promote(ctx context.Context, report *Report, rootFreq map[string]int, unclassified []string) {
	if a.oracle == nil {
		return
	}

	var candidates []string
	for _, root := range unclassified {
		if len(root) < 4 {
			continue
		}
		if rootFreq[root] >= a.cfg.MinUnclassFreq && len(root) >= a.cfg.MinUnclassLen {
			continue // already included on local evidence
		}
		candidates = append(candidates, root)
	}

	budget := a.oracleCfg.MaxPerBatch
	if budget > 0 && len(candidates) > budget {
		// Highest local frequency first under the cap
		sort.Slice(candidates, func(i, j int) bool {
			if rootFreq[candidates[i]] != rootFreq[candidates[j]] {
				return rootFreq[candidates[i]] > rootFreq[candidates[j]]
			}
			return candidates[i] < candidates[j]
		})
		candidates = candidates[:budget]
	}
	if len(candidates) == 0 {
		return
	}

	counts := a.oracle.Counts(ctx, candidates)
	for _, root := range candidates {
		n := counts[root]
		if n < a.oracleCfg.PromoteCount {
			continue
		}
		report.OraclePromoted = append(report.OraclePromoted, root)
		a.logger.Info().Msgf("HIBP promoted: %s (%s breaches)", root, humanize.Comma(n))
	}
	sort.Slice(report.OraclePromoted, func(i, j int) bool {
		if rootFreq[report.OraclePromoted[i]] != rootFreq[report.OraclePromoted[j]] {
			return rootFreq[report.OraclePromoted[i]] > rootFreq[report.OraclePromoted[j]]
		}
		return report.OraclePromoted[i] < report.OraclePromoted[j]
	})
}

// writeBeta appends this batch's additions to the wordlist file. Order:
// cohort-matched, then oracle-promoted, then unclassified by local
// frequency descending.
func (a *Analyzer) writeBeta(report *Report, rootFreq map[string]int) error {
	existing, err := loadWordSet(a.betaPath)
	if err != nil {
		return err
	}

	included := make(map[string]struct{})
	add := func(root string) {
		if _, ok := existing[root]; ok {
			return
		}
		if _, ok := included[root]; ok {
			return
		}
		included[root] = struct{}{}
		report.BetaAdded = append(report.BetaAdded, root)
	}

	var matched []string
	for _, roots := range report.CohortMatched {
		matched = append(matched, roots...)
	}
	sort.Slice(matched, func(i, j int) bool {
		if rootFreq[matched[i]] != rootFreq[matched[j]] {
			return rootFreq[matched[i]] > rootFreq[matched[j]]
		}
		return matched[i] < matched[j]
	})
	for _, root := range matched {
		add(root)
	}

	for _, root := range report.OraclePromoted {
		add(root)
	}

	var byFreq []string
	for _, info := range report.NewRoots {
		if len(info.Cohorts) > 0 {
			continue
		}
		if info.Freq >= a.cfg.MinUnclassFreq && len(info.Root) >= a.cfg.MinUnclassLen {
			byFreq = append(byFreq, info.Root)
		}
	}
	for _, root := range byFreq {
		add(root)
	}

	if len(report.BetaAdded) == 0 {
		return nil
	}
	return appendLines(a.betaPath, report.BetaAdded)
}

// writeRules appends new rules, deduplicated against the baselines and
// the rule file itself
func (a *Analyzer) writeRules(report *Report, stats *ruleStats) error {
	paths := append([]string{a.rulePath}, a.cfg.BaselineRuleFiles...)
	existing, err := loadRuleSet(paths...)
	if err != nil {
		return err
	}

	for _, rule := range stats.buildRules(a.cfg.MinRuleCount) {
		if _, ok := existing[rule]; ok {
			continue
		}
		report.RulesAdded = append(report.RulesAdded, rule)
	}

	if len(report.RulesAdded) == 0 {
		return nil
	}
	return appendLines(a.rulePath, report.RulesAdded)
}

// growCohorts appends cohort-matched roots to their seed files,
// caching file contents so roots sharing a file read it once
func (a *Analyzer) growCohorts(report *Report) error {
	cache := make(map[string]map[string]struct{})

	for name, roots := range report.CohortMatched {
		c := cohortByName(name)
		if c == nil || c.SeedFile == "" {
			continue
		}
		path := filepath.Join(a.feedbackDir, c.SeedFile)

		set, ok := cache[path]
		if !ok {
			var err error
			set, err = loadWordSet(path)
			if err != nil {
				return err
			}
			cache[path] = set
		}

		var added []string
		for _, root := range roots {
			if _, dup := set[root]; dup {
				continue
			}
			set[root] = struct{}{}
			added = append(added, root)
		}
		if len(added) == 0 {
			continue
		}
		sort.Strings(added)
		if err := appendLines(path, added); err != nil {
			return err
		}
		report.CohortGrowth[c.SeedFile] = append(report.CohortGrowth[c.SeedFile], added...)
	}
	return nil
}

// loadWordSet reads a wordlist into a lowercased set. A missing file is
// an empty set.
func loadWordSet(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if path == "" {
		return set, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" {
			set[strings.ToLower(word)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	return set, nil
}

// appendLines appends lines to path, creating parent directories as
// needed
func appendLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create feedback dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
