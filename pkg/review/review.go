package review

import (
	"fmt"
	"io"
	"sort"

	"github.com/cracklabs/sluice/pkg/scheduler"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// RecKind names a recommendation category
type RecKind string

const (
	RecDrop        RecKind = "DROP"
	RecKeepOnTrial RecKind = "KEEP_ON_TRIAL"
	RecBudgetAlert RecKind = "BUDGET_ALERT"
	RecReorder     RecKind = "REORDER"
	RecInvestigate RecKind = "INVESTIGATE"
)

// Recommendation is one actionable finding. The engine only recommends;
// it never mutates state or the attack order.
type Recommendation struct {
	Kind    RecKind
	Attack  string
	Message string
}

// Row is one attack's ROI line
type Row struct {
	Attack          string
	Tier            int
	Batches         int
	Cracks          int64
	Rate            float64
	DurationSeconds float64
	// CracksPerMin is nil for deferred attacks (zero observed duration)
	CracksPerMin *float64
	CostSharePct float64
	MarginalROI  float64
	Ineffective  bool
}

// Report joins per-attack aggregates into the ROI table
type Report struct {
	Rows            []Row
	Recommendations []Recommendation
	TotalCracks     int64
	TotalDuration   float64
}

// Analyze computes the ROI table and recommendations from a state
// snapshot. Read-only.
func Analyze(st *types.State) *Report {
	r := &Report{}

	var totalDuration float64
	for _, stats := range st.AttackStats {
		d := stats.AvgTimeSeconds * float64(stats.Attempted)
		if d > 0 {
			totalDuration += d
		}
		r.TotalCracks += stats.TotalCracked
	}
	r.TotalDuration = totalDuration

	for name, stats := range st.AttackStats {
		row := Row{
			Attack:          name,
			Tier:            scheduler.Tier(name),
			Batches:         stats.Attempted,
			Cracks:          stats.TotalCracked,
			Rate:            stats.AvgRate,
			DurationSeconds: stats.AvgTimeSeconds * float64(stats.Attempted),
			Ineffective:     stats.Ineffective,
		}
		if row.DurationSeconds > 0 {
			perMin := float64(row.Cracks) / (row.DurationSeconds / 60)
			row.CracksPerMin = &perMin
			if totalDuration > 0 {
				row.CostSharePct = row.DurationSeconds / totalDuration * 100
			}
			if row.CostSharePct > 0 {
				row.MarginalROI = (row.Rate * 100) / row.CostSharePct
			}
		}
		r.Rows = append(r.Rows, row)
	}
	sort.Slice(r.Rows, func(i, j int) bool {
		return r.Rows[i].Attack < r.Rows[j].Attack
	})

	r.recommend(st)
	return r
}

func (r *Report) recommend(st *types.State) {
	byName := make(map[string]*Row, len(r.Rows))
	for i := range r.Rows {
		byName[r.Rows[i].Attack] = &r.Rows[i]
	}

	for i := range r.Rows {
		row := &r.Rows[i]
		switch {
		case row.Batches >= 3 && row.Rate < 0.0001 && row.Cracks < 10:
			r.add(RecDrop, row.Attack, fmt.Sprintf(
				"%d batches, rate %.5f%%, %d cracks: not earning its slot",
				row.Batches, row.Rate*100, row.Cracks))
		case row.Batches < 3:
			r.add(RecKeepOnTrial, row.Attack, fmt.Sprintf(
				"only %d batches observed, too early to judge", row.Batches))
		}

		if row.CostSharePct > 50 && r.TotalCracks > 0 &&
			float64(row.Cracks)/float64(r.TotalCracks) < 0.3 {
			r.add(RecBudgetAlert, row.Attack, fmt.Sprintf(
				"%.0f%% of GPU time for %.0f%% of cracks",
				row.CostSharePct, float64(row.Cracks)/float64(r.TotalCracks)*100))
		}
	}

	r.recommendReorder(st, byName)
	r.recommendInvestigate(st)
}

// recommendReorder flags adjacent pairs in the current order, within
// the same or adjacent tier, where the lower attack out-cracks the
// upper by 1.5x per minute
func (r *Report) recommendReorder(st *types.State, byName map[string]*Row) {
	order := st.AttackOrder
	if len(order) == 0 {
		order = scheduler.DefaultOrder()
	}

	for i := 0; i+1 < len(order); i++ {
		upper, lower := byName[order[i]], byName[order[i+1]]
		if upper == nil || lower == nil {
			continue
		}
		if upper.CracksPerMin == nil || lower.CracksPerMin == nil {
			continue
		}
		tierGap := upper.Tier - lower.Tier
		if tierGap < -1 || tierGap > 1 {
			continue
		}
		if *lower.CracksPerMin >= 1.5**upper.CracksPerMin {
			r.add(RecReorder, lower.Attack, fmt.Sprintf(
				"%s (%.0f/min) above %s (%.0f/min)",
				lower.Attack, *lower.CracksPerMin,
				upper.Attack, *upper.CracksPerMin))
		}
	}
}

// recommendInvestigate checks feedback-loop health: over the last five
// completed batches, feedback-attack cracks should grow
func (r *Report) recommendInvestigate(st *types.State) {
	var names []string
	for name, rec := range st.Batches {
		if rec.Status == types.BatchStatusCompleted {
			names = append(names, name)
		}
	}
	if len(names) < 5 {
		return
	}
	sort.Strings(names)
	names = names[len(names)-5:]

	cracks := make([]int64, 0, 5)
	for _, name := range names {
		var n int64
		for _, result := range st.Batches[name].AttackResults {
			if spec := scheduler.Lookup(result.Attack); spec != nil && spec.Feedback {
				n += result.NewCracks
			}
		}
		cracks = append(cracks, n)
	}

	first, last := cracks[0], cracks[len(cracks)-1]
	if last <= first {
		r.add(RecInvestigate, "", fmt.Sprintf(
			"feedback cracks not improving %d → %d over the last 5 batches; review BETA.txt quality",
			first, last))
	}
}

func (r *Report) add(kind RecKind, attack, message string) {
	r.Recommendations = append(r.Recommendations, Recommendation{
		Kind:    kind,
		Attack:  attack,
		Message: message,
	})
}

var recColors = map[RecKind]*color.Color{
	RecDrop:        color.New(color.FgRed, color.Bold),
	RecKeepOnTrial: color.New(color.FgCyan),
	RecBudgetAlert: color.New(color.FgYellow, color.Bold),
	RecReorder:     color.New(color.FgMagenta),
	RecInvestigate: color.New(color.FgYellow),
}

// Render writes the ROI table and recommendations
func (r *Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Attack", "Tier", "Batches", "Cracks", "Rate %", "Cracks/min", "Cost %", "mROI"})

	for _, row := range r.Rows {
		perMin := "-"
		if row.CracksPerMin != nil {
			perMin = fmt.Sprintf("%.1f", *row.CracksPerMin)
		}
		name := row.Attack
		if row.Ineffective {
			name += " (ineffective)"
		}
		t.AppendRow(table.Row{
			name,
			row.Tier,
			row.Batches,
			humanize.Comma(row.Cracks),
			fmt.Sprintf("%.4f", row.Rate*100),
			perMin,
			fmt.Sprintf("%.1f", row.CostSharePct),
			fmt.Sprintf("%.2f", row.MarginalROI),
		})
	}
	t.AppendFooter(table.Row{"total", "", "", humanize.Comma(r.TotalCracks), "", "", "", ""})
	t.Render()

	if len(r.Recommendations) == 0 {
		fmt.Fprintln(w, "no recommendations")
		return
	}
	fmt.Fprintln(w)
	for _, rec := range r.Recommendations {
		c := recColors[rec.Kind]
		label := string(rec.Kind)
		if c != nil {
			label = c.Sprint(label)
		}
		if rec.Attack != "" {
			fmt.Fprintf(w, "%s %s: %s\n", label, rec.Attack, rec.Message)
		} else {
			fmt.Fprintf(w, "%s %s\n", label, rec.Message)
		}
	}
}
