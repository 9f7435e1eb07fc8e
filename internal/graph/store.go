package graph

import (
	"context"
	"sort"
	"sync"
)

// ProcessRef summarizes one process applied to a material.
type ProcessRef struct {
	Type  string
	Value float64
}

// MaterialPattern is one row of a top-materials pattern query.
type MaterialPattern struct {
	Material  string
	Value     float64
	Unit      string
	Processes []ProcessRef
}

// Store is the knowledge graph collaborator.
//
// MergeNodesAndEdges must be idempotent on repeated identical deltas.
type Store interface {
	MergeNodesAndEdges(ctx context.Context, delta Delta) error
	TopMaterials(ctx context.Context, propertyType string, limit int) ([]MaterialPattern, error)
}

// MemoryStore is an in-memory Store for tests and graph-disabled runs.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]NodeUpsert
	edges map[string]EdgeUpsert
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]NodeUpsert),
		edges: make(map[string]EdgeUpsert),
	}
}

// MergeNodesAndEdges upserts the delta by identity key.
func (s *MemoryStore) MergeNodesAndEdges(_ context.Context, delta Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range delta.Nodes {
		s.nodes[n.Key] = n
	}
	for _, e := range delta.Edges {
		s.edges[e.Key] = e
	}
	return nil
}

// NodeCount returns the number of stored nodes.
func (s *MemoryStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of stored edges.
func (s *MemoryStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// TopMaterials scans the graph for materials carrying the property type,
// ordered by value descending.
func (s *MemoryStore) TopMaterials(_ context.Context, propertyType string, limit int) ([]MaterialPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edgesFrom := func(from, relType string) []EdgeUpsert {
		var out []EdgeUpsert
		for _, e := range s.edges {
			if e.From == from && e.Type == relType {
				out = append(out, e)
			}
		}
		return out
	}

	var patterns []MaterialPattern
	for _, n := range s.nodes {
		if n.Label != LabelMaterial {
			continue
		}
		formula, _ := n.Properties["formula"].(string)

		for _, e := range edgesFrom(n.Key, RelHasProperty) {
			prop, ok := s.nodes[e.To]
			if !ok || prop.Properties["type"] != propertyType {
				continue
			}
			value, _ := prop.Properties["value"].(float64)
			unit, _ := prop.Properties["unit"].(string)

			pattern := MaterialPattern{Material: formula, Value: value, Unit: unit}
			for _, pe := range edgesFrom(n.Key, RelProcessedBy) {
				if proc, ok := s.nodes[pe.To]; ok {
					procType, _ := proc.Properties["type"].(string)
					procValue, _ := proc.Properties["value"].(float64)
					pattern.Processes = append(pattern.Processes, ProcessRef{Type: procType, Value: procValue})
				}
			}
			sort.Slice(pattern.Processes, func(i, j int) bool {
				return pattern.Processes[i].Type < pattern.Processes[j].Type
			})
			patterns = append(patterns, pattern)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Value != patterns[j].Value {
			return patterns[i].Value > patterns[j].Value
		}
		return patterns[i].Material < patterns[j].Material
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}
