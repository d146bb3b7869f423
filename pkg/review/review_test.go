package review

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cracklabs/sluice/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsFor(attempted int, cracked, hashes int64, avgSeconds float64) *types.AttackStats {
	rate := 0.0
	if hashes > 0 {
		rate = float64(cracked) / float64(hashes)
	}
	return &types.AttackStats{
		Attempted:      attempted,
		TotalCracked:   cracked,
		TotalHashes:    hashes,
		AvgRate:        rate,
		AvgTimeSeconds: avgSeconds,
	}
}

func recsOfKind(r *Report, kind RecKind) []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func TestAnalyzeDropAndReorder(t *testing.T) {
	st := &types.State{
		AttackStats: map[string]*types.AttackStats{
			"attackA": statsFor(3, 4, 100000, 600),  // rate 0.00004
			"attackB": statsFor(3, 400, 100000, 20), // 60s total, 400/min
			"attackC": statsFor(3, 100, 100000, 20), // 60s total, 100/min
		},
		AttackOrder: []string{"attackC", "attackB", "attackA"},
	}

	r := Analyze(st)

	drops := recsOfKind(r, RecDrop)
	require.Len(t, drops, 1)
	assert.Equal(t, "attackA", drops[0].Attack)

	reorders := recsOfKind(r, RecReorder)
	require.Len(t, reorders, 1)
	assert.Equal(t, "attackB (400/min) above attackC (100/min)", reorders[0].Message)
}

func TestAnalyzeKeepOnTrial(t *testing.T) {
	st := &types.State{
		AttackStats: map[string]*types.AttackStats{
			"newcomer": statsFor(1, 5, 1000, 30),
		},
	}

	r := Analyze(st)
	trials := recsOfKind(r, RecKeepOnTrial)
	require.Len(t, trials, 1)
	assert.Equal(t, "newcomer", trials[0].Attack)
	assert.Empty(t, recsOfKind(r, RecDrop))
}

func TestAnalyzeBudgetAlert(t *testing.T) {
	st := &types.State{
		AttackStats: map[string]*types.AttackStats{
			"hog":    statsFor(3, 100, 100000, 3000), // 9000s, few cracks
			"worker": statsFor(3, 900, 100000, 500),  // 1500s, most cracks
		},
	}

	r := Analyze(st)
	alerts := recsOfKind(r, RecBudgetAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "hog", alerts[0].Attack)
}

func TestAnalyzeDeferredAttackHasNilCracksPerMin(t *testing.T) {
	st := &types.State{
		AttackStats: map[string]*types.AttackStats{
			"deferred": statsFor(0, 0, 0, 0),
			"active":   statsFor(1, 10, 1000, 60),
		},
	}

	r := Analyze(st)
	for _, row := range r.Rows {
		if row.Attack == "deferred" {
			assert.Nil(t, row.CracksPerMin)
			assert.Zero(t, row.CostSharePct)
		} else {
			require.NotNil(t, row.CracksPerMin)
			assert.InDelta(t, 10.0, *row.CracksPerMin, 0.001)
			assert.InDelta(t, 100.0, row.CostSharePct, 0.001)
		}
	}
}

func feedbackBatch(cracks int64) *types.BatchRecord {
	return &types.BatchRecord{
		Status:         types.BatchStatusCompleted,
		AttacksApplied: []string{"feedback-beta"},
		AttackResults: []types.AttackResult{
			{Attack: "feedback-beta", NewCracks: cracks},
		},
		Cracked:   cracks,
		HashCount: 100000,
	}
}

func TestAnalyzeInvestigateStalledFeedback(t *testing.T) {
	st := &types.State{
		Batches: map[string]*types.BatchRecord{
			"batch-0001": feedbackBatch(210),
			"batch-0002": feedbackBatch(215),
			"batch-0003": feedbackBatch(208),
			"batch-0004": feedbackBatch(220),
			"batch-0005": feedbackBatch(205),
		},
		AttackStats: map[string]*types.AttackStats{},
	}

	r := Analyze(st)
	invs := recsOfKind(r, RecInvestigate)
	require.Len(t, invs, 1)
	assert.Contains(t, invs[0].Message, "not improving 210 → 205")
	assert.Contains(t, invs[0].Message, "BETA.txt")
}

func TestAnalyzeInvestigateGrowingFeedbackQuiet(t *testing.T) {
	st := &types.State{
		Batches: map[string]*types.BatchRecord{
			"batch-0001": feedbackBatch(100),
			"batch-0002": feedbackBatch(120),
			"batch-0003": feedbackBatch(150),
			"batch-0004": feedbackBatch(180),
			"batch-0005": feedbackBatch(240),
		},
		AttackStats: map[string]*types.AttackStats{},
	}

	assert.Empty(t, recsOfKind(Analyze(st), RecInvestigate))
}

func TestAnalyzeInvestigateNeedsFiveBatches(t *testing.T) {
	st := &types.State{
		Batches: map[string]*types.BatchRecord{
			"batch-0001": feedbackBatch(100),
			"batch-0002": feedbackBatch(90),
		},
		AttackStats: map[string]*types.AttackStats{},
	}

	assert.Empty(t, recsOfKind(Analyze(st), RecInvestigate))
}

func TestRender(t *testing.T) {
	st := &types.State{
		AttackStats: map[string]*types.AttackStats{
			"brute-3": statsFor(2, 1500, 100000, 45),
		},
	}

	var buf bytes.Buffer
	Analyze(st).Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "brute-3")
	assert.Contains(t, out, "1,500")
	assert.True(t, strings.Contains(out, "KEEP_ON_TRIAL"))
}
