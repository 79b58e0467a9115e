package store

import (
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// PatternQuery is a parameterized (source)-[relationship]->(target) pattern.
// Empty fields match anything. Name patterns support '*' wildcards; escaping
// happens inside the adapter, never in caller logic.
type PatternQuery struct {
	SourceKind        graph.Kind
	SourceNamePattern string
	Relationship      graph.Relationship
	TargetKind        graph.Kind
	TargetNamePattern string
	Limit             int
}

// Match is one (source, edge, target) triple produced by Query.
type Match struct {
	Source *graph.DeclarationNode
	Edge   *Edge
	Target *graph.DeclarationNode
}

// Query executes a pattern query against the graph with bound parameters.
func (s *Store) Query(q PatternQuery) ([]*Match, error) {
	var conditions []string
	var args []any

	if q.SourceKind != "" {
		conditions = append(conditions, "src.kind=?")
		args = append(args, q.SourceKind)
	}
	if q.SourceNamePattern != "" {
		conditions = append(conditions, "src.name LIKE ? ESCAPE '\\'")
		args = append(args, wildcardToLike(q.SourceNamePattern))
	}
	if q.Relationship != "" {
		conditions = append(conditions, "e.relationship=?")
		args = append(args, q.Relationship)
	}
	if q.TargetKind != "" {
		conditions = append(conditions, "tgt.kind=?")
		args = append(args, q.TargetKind)
	}
	if q.TargetNamePattern != "" {
		conditions = append(conditions, "tgt.name LIKE ? ESCAPE '\\'")
		args = append(args, wildcardToLike(q.TargetNamePattern))
	}

	query := `
		SELECT e.id, e.source_id, e.target_id, e.relationship, e.metadata,
			src.id, src.kind, src.name, src.file_path, src.line, src.col, src.attributes,
			tgt.id, tgt.kind, tgt.name, tgt.file_path, tgt.line, tgt.col, tgt.attributes
		FROM edges e
		JOIN nodes src ON e.source_id = src.id
		JOIN nodes tgt ON e.target_id = tgt.id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("pattern query: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		var e Edge
		var src, tgt graph.DeclarationNode
		var meta, srcAttrs, tgtAttrs string
		if err := rows.Scan(
			&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &meta,
			&src.ID, &src.Kind, &src.Name, &src.File, &src.Line, &src.Column, &srcAttrs,
			&tgt.ID, &tgt.Kind, &tgt.Name, &tgt.File, &tgt.Line, &tgt.Column, &tgtAttrs,
		); err != nil {
			return nil, err
		}
		e.Metadata = unmarshalAttrs(meta)
		src.Attributes = unmarshalAttrs(srcAttrs)
		tgt.Attributes = unmarshalAttrs(tgtAttrs)
		matches = append(matches, &Match{Source: &src, Edge: &e, Target: &tgt})
	}
	return matches, rows.Err()
}
