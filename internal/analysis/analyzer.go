// Package analysis computes statistics over previously persisted data: the
// Analyzer branch of the workflow. It reads the row store and the knowledge
// graph; it never touches the extraction chain.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fyrsmithlabs/featmine/internal/graph"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
	"github.com/fyrsmithlabs/featmine/internal/store"
)

// DefaultTarget is the property correlations are computed against.
const DefaultTarget = "Ionic_Conductivity_mS_cm"

const (
	minObservations = 3
	topMaterials    = 10
)

// RowSource is the persisted-row read side consumed by the analyzer.
type RowSource interface {
	Rows(ctx context.Context) (map[store.Key]store.Row, error)
}

// PatternSource is the graph read side consumed by the analyzer.
type PatternSource interface {
	TopMaterials(ctx context.Context, propertyType string, limit int) ([]graph.MaterialPattern, error)
}

// Analyzer is the stage handler for the analysis branch.
type Analyzer struct {
	rows     RowSource
	patterns PatternSource
	target   string
	logger   *logging.Logger
}

// New creates the Analyzer. patterns may be nil when the graph is disabled.
func New(rows RowSource, patterns PatternSource, logger *logging.Logger) *Analyzer {
	return &Analyzer{
		rows:     rows,
		patterns: patterns,
		target:   DefaultTarget,
		logger:   logger.Named("analyzer"),
	}
}

func (a *Analyzer) Node() pipeline.Node { return pipeline.NodeAnalyzer }

// Execute runs the analyses the request asks for (all by default) and stores
// the formatted result on the Context.
func (a *Analyzer) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	request := strings.ToLower(wc.Input + " " + wc.Intent)

	// Requests naming several analyses get all of them; no keyword at all
	// gets the full report.
	var sections []string
	if strings.Contains(request, "summary") || strings.Contains(request, "statistic") {
		sections = append(sections, a.summary(ctx))
	}
	if strings.Contains(request, "correlat") {
		sections = append(sections, a.correlations(ctx))
	}
	if strings.Contains(request, "pattern") {
		sections = append(sections, a.graphPatterns(ctx))
	}
	if len(sections) == 0 {
		sections = append(sections, a.summary(ctx), a.correlations(ctx))
		if a.patterns != nil {
			sections = append(sections, a.graphPatterns(ctx))
		}
	}

	wc.AnalysisResult = strings.Join(sections, "\n\n---\n\n")
	a.logger.Info(ctx, "analysis complete")
	return pipeline.Done("analysis complete"), nil
}

// observations groups persisted rows into per-(document, material) feature
// vectors.
func (a *Analyzer) observations(ctx context.Context) (map[string]map[string]float64, error) {
	rows, err := a.rows.Rows(ctx)
	if err != nil {
		return nil, err
	}

	obs := make(map[string]map[string]float64)
	for key, row := range rows {
		id := key.DocumentID + "\x1f" + key.MaterialID
		if obs[id] == nil {
			obs[id] = make(map[string]float64)
		}
		obs[id][key.Property] = row.Value
	}
	return obs, nil
}

type correlation struct {
	feature string
	r       float64
	p       float64
	n       int
}

// correlations renders Pearson correlations of every feature against the
// target, with two-sided p-values.
func (a *Analyzer) correlations(ctx context.Context) string {
	obs, err := a.observations(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading persisted rows: %v", err)
	}
	if len(obs) == 0 {
		return "No persisted data found. Run extraction first."
	}

	features := map[string]bool{}
	for _, fields := range obs {
		for f := range fields {
			if f != a.target {
				features[f] = true
			}
		}
	}

	var results []correlation
	for feature := range features {
		var xs, ys []float64
		for _, fields := range obs {
			x, okX := fields[feature]
			y, okY := fields[a.target]
			if okX && okY {
				xs = append(xs, x)
				ys = append(ys, y)
			}
		}
		if len(xs) < minObservations {
			continue
		}
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) {
			continue
		}
		results = append(results, correlation{
			feature: feature,
			r:       r,
			p:       pValue(r, len(xs)),
			n:       len(xs),
		})
	}

	if len(results) == 0 {
		return "Not enough data for correlation analysis."
	}

	sort.Slice(results, func(i, j int) bool {
		return math.Abs(results[i].r) > math.Abs(results[j].r)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Correlation analysis with '%s':\n\n", a.target)
	b.WriteString("| Feature | Correlation | P-value | Significance |\n")
	b.WriteString("|---------|-------------|---------|---------------|\n")
	for _, res := range results {
		fmt.Fprintf(&b, "| %s | %.4f | %.4f | %s |\n",
			res.feature, res.r, res.p, significanceStars(res.p))
	}
	return strings.TrimRight(b.String(), "\n")
}

// pValue computes the two-sided p-value of a Pearson correlation via the
// Student's t distribution with n-2 degrees of freedom.
func pValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return 2 * dist.CDF(-math.Abs(t))
}

func significanceStars(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return ""
	}
}

// summary renders per-feature descriptive statistics.
func (a *Analyzer) summary(ctx context.Context) string {
	rows, err := a.rows.Rows(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading persisted rows: %v", err)
	}
	if len(rows) == 0 {
		return "No persisted data found. Run extraction first."
	}

	values := map[string][]float64{}
	units := map[string]string{}
	for key, row := range rows {
		values[key.Property] = append(values[key.Property], row.Value)
		units[key.Property] = row.Unit
	}

	properties := make([]string, 0, len(values))
	for p := range values {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	var b strings.Builder
	fmt.Fprintf(&b, "Data summary: %d rows across %d properties.\n\n", len(rows), len(properties))
	b.WriteString("| Property | Count | Mean | Min | Max | Unit |\n")
	b.WriteString("|----------|-------|------|-----|-----|------|\n")
	for _, p := range properties {
		vs := values[p]
		fmt.Fprintf(&b, "| %s | %d | %.4g | %.4g | %.4g | %s |\n",
			p, len(vs), stat.Mean(vs, nil), floats(vs, math.Min), floats(vs, math.Max), units[p])
	}
	return strings.TrimRight(b.String(), "\n")
}

func floats(vs []float64, pick func(float64, float64) float64) float64 {
	out := vs[0]
	for _, v := range vs[1:] {
		out = pick(out, v)
	}
	return out
}

// graphPatterns renders the top materials by the target property.
func (a *Analyzer) graphPatterns(ctx context.Context) string {
	if a.patterns == nil {
		return "Knowledge graph is not configured. Skipping pattern analysis."
	}

	patterns, err := a.patterns.TopMaterials(ctx, a.target, topMaterials)
	if err != nil {
		return fmt.Sprintf("Graph query error: %v", err)
	}
	if len(patterns) == 0 {
		return fmt.Sprintf("No materials found with property '%s'.", a.target)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d materials by %s:\n\n", topMaterials, a.target)
	b.WriteString("| Material | Value | Processes |\n")
	b.WriteString("|----------|-------|----------|\n")
	for _, p := range patterns {
		var procs []string
		for _, proc := range p.Processes {
			procs = append(procs, fmt.Sprintf("%s=%g", proc.Type, proc.Value))
		}
		fmt.Fprintf(&b, "| %s | %g %s | %s |\n",
			p.Material, p.Value, p.Unit, strings.Join(procs, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
