package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fyrsmithlabs/featmine/internal/config"
)

// Neo4jStore is the production Store backed by a Neo4j database.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity. An unreachable
// database is a fatal configuration error for graph-enabled runs.
func NewNeo4jStore(ctx context.Context, cfg config.GraphConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password.Value(), ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// MergeNodesAndEdges applies the delta in one write transaction. Every node
// and relationship is MERGEd by its identity key, so replays are no-ops.
func (s *Neo4jStore) MergeNodesAndEdges(ctx context.Context, delta Delta) error {
	if delta.Empty() {
		return nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range delta.Nodes {
			if !validLabel(n.Label) {
				return nil, fmt.Errorf("invalid node label %q", n.Label)
			}
			query := fmt.Sprintf("MERGE (n:%s {key: $key}) SET n += $props", n.Label)
			if _, err := tx.Run(ctx, query, map[string]any{
				"key":   n.Key,
				"props": n.Properties,
			}); err != nil {
				return nil, fmt.Errorf("merging %s node: %w", n.Label, err)
			}
		}
		for _, e := range delta.Edges {
			if !validRelType(e.Type) {
				return nil, fmt.Errorf("invalid relationship type %q", e.Type)
			}
			query := fmt.Sprintf(
				"MATCH (a {key: $from}) MATCH (b {key: $to}) MERGE (a)-[:%s]->(b)", e.Type)
			if _, err := tx.Run(ctx, query, map[string]any{
				"from": e.From,
				"to":   e.To,
			}); err != nil {
				return nil, fmt.Errorf("merging %s edge: %w", e.Type, err)
			}
		}
		return nil, nil
	})
	return err
}

// TopMaterials returns the highest-valued materials for a property type with
// their processing conditions.
func (s *Neo4jStore) TopMaterials(ctx context.Context, propertyType string, limit int) ([]MaterialPattern, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	query := `
		MATCH (m:Material)-[:HAS_PROPERTY]->(p:Property {type: $prop_type})
		OPTIONAL MATCH (m)-[:PROCESSED_BY]->(proc:Process)
		RETURN m.formula AS material, p.value AS value, p.unit AS unit,
		       collect(DISTINCT {type: proc.type, value: proc.value}) AS processes
		ORDER BY p.value DESC
		LIMIT $limit`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"prop_type": propertyType,
			"limit":     limit,
		})
		if err != nil {
			return nil, err
		}

		var patterns []MaterialPattern
		for res.Next(ctx) {
			record := res.Record()
			pattern := MaterialPattern{}
			if v, ok := record.Get("material"); ok {
				pattern.Material, _ = v.(string)
			}
			if v, ok := record.Get("value"); ok {
				pattern.Value, _ = v.(float64)
			}
			if v, ok := record.Get("unit"); ok {
				pattern.Unit, _ = v.(string)
			}
			if v, ok := record.Get("processes"); ok {
				if procs, ok := v.([]any); ok {
					for _, p := range procs {
						m, ok := p.(map[string]any)
						if !ok || m["type"] == nil {
							continue
						}
						ref := ProcessRef{}
						ref.Type, _ = m["type"].(string)
						ref.Value, _ = m["value"].(float64)
						pattern.Processes = append(pattern.Processes, ref)
					}
				}
			}
			patterns = append(patterns, pattern)
		}
		return patterns, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying top materials: %w", err)
	}
	return result.([]MaterialPattern), nil
}
