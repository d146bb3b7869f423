package feedback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	counts  map[string]int64
	queried [][]string
}

func (f *fakeOracle) Counts(_ context.Context, passwords []string) map[string]int64 {
	f.queried = append(f.queried, passwords)
	out := make(map[string]int64, len(passwords))
	for _, pw := range passwords {
		out[pw] = f.counts[pw]
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	baseline := filepath.Join(cfg.DataDir, "baseline.txt")
	require.NoError(t, os.WriteFile(baseline, []byte("password\nsummer\ndragon\n"), 0644))
	cfg.Analyzer.BaselineWordlist = baseline
	cfg.Analyzer.MinRuleCount = 2
	return cfg
}

func writePasswords(t *testing.T, cfg *config.Config, lines ...string) string {
	t.Helper()
	path := filepath.Join(cfg.DataDir, "passwords-batch-0001.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

var batchLines = []string{
	"nguyenvan1",
	"nguyenvan22",
	"nguyenvan!",
	"mydragonlord1",
	"mydragonlord2",
	"mydragonlord3",
	"xxyzzz9",
	"summer2024", // baseline root, contributes rules only
	"zz9#k1x!",   // random
}

func TestAnalyzeBetaOrder(t *testing.T) {
	cfg := testConfig(t)
	oracle := &fakeOracle{counts: map[string]int64{"xxyzzz": 2500}}

	a, err := New(cfg, oracle)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), writePasswords(t, cfg, batchLines...))
	require.NoError(t, err)

	// Cohort-matched first, oracle-promoted second, frequent residue last
	assert.Equal(t, []string{"nguyenvan", "xxyzzz", "mydragonlord"}, report.BetaAdded)
	assert.Equal(t, []string{"xxyzzz"}, report.OraclePromoted)
	assert.Contains(t, report.CohortMatched["vietnamese-names"], "nguyenvan")

	data, err := os.ReadFile(cfg.BetaFile())
	require.NoError(t, err)
	assert.Equal(t, "nguyenvan\nxxyzzz\nmydragonlord\n", string(data))
}

func TestAnalyzeCounts(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), writePasswords(t, cfg, batchLines...))
	require.NoError(t, err)

	assert.Equal(t, 9, report.Total)
	assert.Equal(t, 9, report.Unique)
	assert.Equal(t, 8, report.Structured)
	assert.Equal(t, 1, report.Random)
}

func TestAnalyzeOracleBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Oracle.MaxPerBatch = 1
	oracle := &fakeOracle{counts: map[string]int64{}}

	a, err := New(cfg, oracle)
	require.NoError(t, err)

	// Two oracle-eligible roots, budget of one
	_, err = a.Analyze(context.Background(), writePasswords(t, cfg,
		"xxyzzz9", "qqwwee7", "qqwwee8"))
	require.NoError(t, err)

	require.Len(t, oracle.queried, 1)
	assert.Len(t, oracle.queried[0], 1)
	assert.Equal(t, "qqwwee", oracle.queried[0][0], "higher local frequency wins the budget slot")
}

func TestAnalyzeBaselineRootsExcluded(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), writePasswords(t, cfg,
		"summer2024", "password123", "dragon99"))
	require.NoError(t, err)

	assert.Empty(t, report.BetaAdded)
	assert.Empty(t, report.NewRoots)
}

func TestAnalyzeRules(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), writePasswords(t, cfg,
		"mykingdom123", "ourcastle123", "thefortress99"))
	require.NoError(t, err)

	assert.Equal(t, []string{"$1$2$3"}, report.RulesAdded)

	data, err := os.ReadFile(cfg.RuleFile())
	require.NoError(t, err)
	assert.Equal(t, "$1$2$3\n", string(data))
}

func TestAnalyzeRulesDedupedAgainstBaseline(t *testing.T) {
	cfg := testConfig(t)
	basePath := filepath.Join(cfg.DataDir, "base.rule")
	require.NoError(t, os.WriteFile(basePath, []byte("$1$2$3\n"), 0644))
	cfg.Analyzer.BaselineRuleFiles = []string{basePath}

	a, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), writePasswords(t, cfg,
		"mykingdom123", "ourcastle123", "thefortress123"))
	require.NoError(t, err)

	assert.Empty(t, report.RulesAdded)
	_, err = os.Stat(cfg.RuleFile())
	assert.True(t, os.IsNotExist(err), "no rule file when nothing new")
}

func TestAnalyzeIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	path := writePasswords(t, cfg, batchLines...)
	first, err := a.Analyze(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, first.BetaAdded)
	require.NotEmpty(t, first.CohortGrowth["cohort-vietnamese.txt"])

	second, err := a.Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, second.BetaAdded, "re-run adds nothing to the wordlist")
	assert.Empty(t, second.CohortGrowth, "re-run grows no cohort files")

	data, err := os.ReadFile(filepath.Join(cfg.FeedbackDir(), "cohort-vietnamese.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nguyenvan\n", string(data))
}

func TestReportSummary(t *testing.T) {
	r := &Report{
		BetaAdded:      []string{"a", "b"},
		RulesAdded:     []string{"c"},
		OraclePromoted: []string{"b"},
		CohortMatched:  map[string][]string{"gaming": {"a"}},
	}
	s := r.Summary()
	assert.Equal(t, 2, s.NewRoots)
	assert.Equal(t, 1, s.NewRules)
	assert.Equal(t, 1, s.CohortMatched)
	assert.Equal(t, 1, s.OraclePromoted)
	assert.False(t, s.GeneratedAt.IsZero())
}
