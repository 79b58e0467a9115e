package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// edgesBatchSize keeps multi-row edge INSERTs under the 999-var limit.
const numEdgeCols = 4
const edgesBatchSize = 999 / numEdgeCols

// Edge is a stored graph edge.
type Edge struct {
	ID           int64
	SourceID     string
	TargetID     string
	Relationship graph.Relationship
	Metadata     map[string]any
}

// Direction selects which edges GetRelationships returns.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionAny      Direction = "any"
)

// AddEdge inserts a resolved edge. Edges are not deduplicated.
func (s *Store) AddEdge(e *graph.ResolvedEdge) error {
	_, err := s.db.Exec(`
		INSERT INTO edges (source_id, target_id, relationship, metadata)
		VALUES (?, ?, ?, ?)`,
		e.SourceID, e.TargetID, e.Relationship, marshalAttrs(e.Metadata))
	if err != nil {
		return fmt.Errorf("add edge: %w", err)
	}
	return nil
}

// AddEdges inserts multiple resolved edges in batched multi-row INSERTs.
func (s *Store) AddEdges(edges []*graph.ResolvedEdge) error {
	if len(edges) == 0 {
		return nil
	}
	for i := 0; i < len(edges); i += edgesBatchSize {
		end := i + edgesBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		if err := s.addEdgeChunk(edges[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addEdgeChunk(batch []*graph.ResolvedEdge) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO edges (source_id, target_id, relationship, metadata) VALUES `)

	args := make([]any, 0, len(batch)*numEdgeCols)
	for i, e := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, e.SourceID, e.TargetID, e.Relationship, marshalAttrs(e.Metadata))
	}
	if _, err := s.db.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("add edge batch: %w", err)
	}
	return nil
}

// GetRelationships returns edges touching a node in the given direction.
func (s *Store) GetRelationships(nodeID string, direction Direction) ([]*Edge, error) {
	var query string
	var args []any
	switch direction {
	case DirectionOutbound:
		query = selectEdgeCols + " FROM edges WHERE source_id=?"
		args = []any{nodeID}
	case DirectionInbound:
		query = selectEdgeCols + " FROM edges WHERE target_id=?"
		args = []any{nodeID}
	case DirectionAny, "":
		query = selectEdgeCols + " FROM edges WHERE source_id=? OR target_id=?"
		args = []any{nodeID, nodeID}
	default:
		return nil, fmt.Errorf("unknown direction: %s", direction)
	}

	rows, err := s.db.Query(query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesByRelationship returns every edge with the given relationship, in
// insertion order.
func (s *Store) EdgesByRelationship(rel graph.Relationship) ([]*Edge, error) {
	rows, err := s.db.Query(selectEdgeCols+" FROM edges WHERE relationship=? ORDER BY id", rel)
	if err != nil {
		return nil, fmt.Errorf("edges by relationship: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the number of edges in the store.
func (s *Store) CountEdges() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&count)
	return count, err
}

// CountEdgesByRelationship returns the number of edges with a relationship.
func (s *Store) CountEdgesByRelationship(rel graph.Relationship) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM edges WHERE relationship=?", rel).Scan(&count)
	return count, err
}

const selectEdgeCols = "SELECT id, source_id, target_id, relationship, metadata"

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var result []*Edge
	for rows.Next() {
		var e Edge
		var meta string
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &meta); err != nil {
			return nil, err
		}
		e.Metadata = unmarshalAttrs(meta)
		result = append(result, &e)
	}
	return result, rows.Err()
}
