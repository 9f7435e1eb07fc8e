// Package graph maintains the knowledge graph of materials, papers,
// properties and processes. Deltas carry deterministic identity keys so
// reapplying a batch converges to the same graph state.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Node labels and relationship types of the graph schema.
const (
	LabelMaterial = "Material"
	LabelPaper    = "Paper"
	LabelProperty = "Property"
	LabelProcess  = "Process"

	RelStudiedIn   = "STUDIED_IN"
	RelHasProperty = "HAS_PROPERTY"
	RelProcessedBy = "PROCESSED_BY"
)

// processKeys are the canonical keys modeled as Process nodes; every other
// resolved key becomes a Property node.
var processKeys = map[string]bool{
	"Sintering_Temp":   true,
	"Ball_Milling_RPM": true,
}

// NodeUpsert is one node merge, identified by Key.
type NodeUpsert struct {
	Key        string
	Label      string
	Properties map[string]any
}

// EdgeUpsert is one relationship merge between two node keys.
type EdgeUpsert struct {
	Key  string
	Type string
	From string
	To   string
}

// Delta is the set of upserts for one batch. Entries are uniquely keyed, so
// applying the same Delta twice is a no-op.
type Delta struct {
	Nodes []NodeUpsert
	Edges []EdgeUpsert
}

// Empty reports whether the delta carries no upserts.
func (d Delta) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// identityKey derives a deterministic key from a label and its identity
// fields.
func identityKey(label string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(label))
	for _, f := range fields {
		h.Write([]byte{0x1f})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// BuildDelta derives the graph upserts for a standardized batch. Only
// resolved records contribute; needs-review records never reach the graph.
func BuildDelta(records []pipeline.StandardizedRecord) Delta {
	var delta Delta
	seenNodes := map[string]bool{}
	seenEdges := map[string]bool{}

	addNode := func(n NodeUpsert) {
		if !seenNodes[n.Key] {
			seenNodes[n.Key] = true
			delta.Nodes = append(delta.Nodes, n)
		}
	}
	addEdge := func(e EdgeUpsert) {
		if !seenEdges[e.Key] {
			seenEdges[e.Key] = true
			delta.Edges = append(delta.Edges, e)
		}
	}

	for _, rec := range records {
		if rec.Status != pipeline.ReviewResolved || rec.MaterialID == "" {
			continue
		}

		materialKey := identityKey(LabelMaterial, rec.MaterialID)
		addNode(NodeUpsert{
			Key:        materialKey,
			Label:      LabelMaterial,
			Properties: map[string]any{"formula": rec.MaterialID},
		})

		if rec.DOI != "" {
			paperKey := identityKey(LabelPaper, rec.DOI)
			addNode(NodeUpsert{
				Key:   paperKey,
				Label: LabelPaper,
				Properties: map[string]any{
					"doi":         rec.DOI,
					"document_id": rec.DocumentID,
				},
			})
			addEdge(EdgeUpsert{
				Key:  identityKey(RelStudiedIn, materialKey, paperKey),
				Type: RelStudiedIn,
				From: materialKey,
				To:   paperKey,
			})
		}

		label, rel := LabelProperty, RelHasProperty
		if processKeys[rec.CanonicalKey] {
			label, rel = LabelProcess, RelProcessedBy
		}

		valueText := strconv.FormatFloat(rec.Value, 'g', -1, 64)
		featureKey := identityKey(label, rec.CanonicalKey, valueText, rec.Unit)
		addNode(NodeUpsert{
			Key:   featureKey,
			Label: label,
			Properties: map[string]any{
				"type":  rec.CanonicalKey,
				"value": rec.Value,
				"unit":  rec.Unit,
			},
		})
		addEdge(EdgeUpsert{
			Key:  identityKey(rel, materialKey, featureKey),
			Type: rel,
			From: materialKey,
			To:   featureKey,
		})
	}

	return delta
}

// validLabel guards the label set interpolated into Cypher.
func validLabel(label string) bool {
	switch label {
	case LabelMaterial, LabelPaper, LabelProperty, LabelProcess:
		return true
	}
	return false
}

// validRelType guards the relationship types interpolated into Cypher.
func validRelType(rel string) bool {
	switch strings.ToUpper(rel) {
	case RelStudiedIn, RelHasProperty, RelProcessedBy:
		return true
	}
	return false
}
