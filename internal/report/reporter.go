// Package report builds the human-facing approval report for a standardized
// batch. The Reporter is a pure projection: it reads the Context and stores
// the report, mutating nothing else.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

const previewRows = 3

// Reporter is the stage handler producing the ApprovalReport.
type Reporter struct {
	canonicalKeys []string
	logger        *logging.Logger
}

// New creates the Reporter. canonicalKeys is the schema the report shows as
// the existing column set.
func New(canonicalKeys []string, logger *logging.Logger) *Reporter {
	return &Reporter{
		canonicalKeys: canonicalKeys,
		logger:        logger.Named("reporter"),
	}
}

func (r *Reporter) Node() pipeline.Node { return pipeline.NodeReporter }

// Execute projects the standardized batch into an ApprovalReport.
func (r *Reporter) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	wc.Report = Build(wc.Standardized)
	r.logger.Info(ctx, "approval report generated")
	return pipeline.Done("report generated"), nil
}

// Build computes the report from a standardized batch.
func Build(records []pipeline.StandardizedRecord) *pipeline.ApprovalReport {
	report := &pipeline.ApprovalReport{
		GeneratedAt: time.Now().UTC(),
	}

	seenMapping := map[string]bool{}
	seenProposed := map[string]bool{}

	for _, rec := range records {
		switch rec.Status {
		case pipeline.ReviewResolved:
			report.Accepted++
			if !seenMapping[rec.SourceField] {
				seenMapping[rec.SourceField] = true
				report.Mappings = append(report.Mappings, pipeline.KeyMapping{
					SourceField:  rec.SourceField,
					CanonicalKey: rec.CanonicalKey,
					Similarity:   rec.Similarity,
				})
			}
		case pipeline.ReviewNeedsReview:
			report.NeedsReview++
			if !seenProposed[rec.SourceField] {
				seenProposed[rec.SourceField] = true
				report.ProposedKeys = append(report.ProposedKeys, rec.SourceField)
			}
		}
		if len(report.Preview) < previewRows {
			report.Preview = append(report.Preview, rec)
		}
	}

	sort.Slice(report.Mappings, func(i, j int) bool {
		return report.Mappings[i].SourceField < report.Mappings[j].SourceField
	})
	sort.Strings(report.ProposedKeys)

	return report
}

// Render formats the report for human review.
func (r *Reporter) Render(report *pipeline.ApprovalReport) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "           SCHEMA EVOLUTION APPROVAL REQUIRED\n")
	fmt.Fprintf(&b, "%s\n\n", rule)

	fmt.Fprintf(&b, "1. EXISTING DB COLUMNS:\n   %s\n\n", strings.Join(r.canonicalKeys, ", "))

	fmt.Fprintf(&b, "2. AUTO-MAPPED COLUMNS (Vector Search):\n")
	if len(report.Mappings) == 0 {
		b.WriteString("   (None)\n")
	}
	for _, m := range report.Mappings {
		fmt.Fprintf(&b, "  - '%s' -> '%s' (score: %.3f)\n", m.SourceField, m.CanonicalKey, m.Similarity)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "3. NEW COLUMNS TO CREATE:\n")
	if len(report.ProposedKeys) == 0 {
		b.WriteString("   (None)\n")
	}
	for _, k := range report.ProposedKeys {
		fmt.Fprintf(&b, "  - '%s'\n", k)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "4. DATA PREVIEW:\n")
	if len(report.Preview) == 0 {
		b.WriteString("   (No data)\n")
	}
	for _, rec := range report.Preview {
		fmt.Fprintf(&b, "   [%s] %s: %s = %g %s (%s)\n",
			rec.DocumentID, rec.MaterialID, rec.SourceField, rec.Value, rec.Unit, rec.Status)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "5. SUMMARY:\n")
	fmt.Fprintf(&b, "   - Records accepted: %d\n", report.Accepted)
	fmt.Fprintf(&b, "   - Records held for review: %d\n", report.NeedsReview)
	fmt.Fprintf(&b, "   - New columns proposed: %d\n", len(report.ProposedKeys))
	fmt.Fprintf(&b, "%s\n", rule)

	return b.String()
}
