package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// Formula-derived batch size: SQLite has a 999 bind variable limit.
const numNodeCols = 9
const nodesBatchSize = 999 / numNodeCols

// AddNode inserts or updates a node (idempotent upsert keyed by id).
func (s *Store) AddNode(n *graph.DeclarationNode) error {
	_, err := s.db.Exec(`
		INSERT INTO nodes (id, kind, name, file_path, line, col, attributes, name_embedding, summary_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, name=excluded.name, file_path=excluded.file_path,
			line=excluded.line, col=excluded.col, attributes=excluded.attributes`,
		n.ID, n.Kind, n.Name, n.File, n.Line, n.Column, marshalAttrs(n.Attributes),
		encodeVector(n.NameEmbedding), encodeVector(n.SummaryEmbedding))
	if err != nil {
		return fmt.Errorf("add node: %w", err)
	}
	return nil
}

// AddNodes inserts or updates multiple nodes in batched multi-row INSERTs.
// Embedding columns are not touched on conflict so re-ingestion never
// clobbers vectors attached by a previous run.
func (s *Store) AddNodes(nodes []*graph.DeclarationNode) error {
	if len(nodes) == 0 {
		return nil
	}
	for i := 0; i < len(nodes); i += nodesBatchSize {
		end := i + nodesBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.addNodeChunk(nodes[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addNodeChunk(batch []*graph.DeclarationNode) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO nodes (id, kind, name, file_path, line, col, attributes, name_embedding, summary_embedding) VALUES `)

	args := make([]any, 0, len(batch)*numNodeCols)
	for i, n := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?)")
		args = append(args, n.ID, n.Kind, n.Name, n.File, n.Line, n.Column,
			marshalAttrs(n.Attributes), encodeVector(n.NameEmbedding), encodeVector(n.SummaryEmbedding))
	}
	sb.WriteString(` ON CONFLICT(id) DO UPDATE SET
		kind=excluded.kind, name=excluded.name, file_path=excluded.file_path,
		line=excluded.line, col=excluded.col, attributes=excluded.attributes`)

	if _, err := s.db.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("add node batch: %w", err)
	}
	return nil
}

// AttachEmbeddings sets the name/summary vectors on an existing node.
// Either vector may be nil to leave the column unchanged.
func (s *Store) AttachEmbeddings(id string, name, summary []float32) error {
	if name != nil {
		if _, err := s.db.Exec("UPDATE nodes SET name_embedding=? WHERE id=?", encodeVector(name), id); err != nil {
			return fmt.Errorf("attach name embedding: %w", err)
		}
	}
	if summary != nil {
		if _, err := s.db.Exec("UPDATE nodes SET summary_embedding=? WHERE id=?", encodeVector(summary), id); err != nil {
			return fmt.Errorf("attach summary embedding: %w", err)
		}
	}
	return nil
}

// FindNodeByID finds a node by its id.
func (s *Store) FindNodeByID(id string) (*graph.DeclarationNode, error) {
	row := s.db.QueryRow(selectNodeCols+" FROM nodes WHERE id=?", id)
	return scanNode(row)
}

// FindNodes finds nodes by kind and/or name pattern. Either filter may be
// empty. The pattern supports '*' wildcards, translated to SQL LIKE inside
// the adapter; literal '%' and '_' in the pattern are escaped.
func (s *Store) FindNodes(kind graph.Kind, namePattern string) ([]*graph.DeclarationNode, error) {
	var conditions []string
	var args []any
	if kind != "" {
		conditions = append(conditions, "kind=?")
		args = append(args, kind)
	}
	if namePattern != "" {
		conditions = append(conditions, "name LIKE ? ESCAPE '\\'")
		args = append(args, wildcardToLike(namePattern))
	}
	query := selectNodeCols + " FROM nodes"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllNodes returns every node in insertion order.
func (s *Store) AllNodes() ([]*graph.DeclarationNode, error) {
	rows, err := s.db.Query(selectNodeCols + " FROM nodes ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("all nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByFile returns all nodes declared in a file.
func (s *Store) FindNodesByFile(filePath string) ([]*graph.DeclarationNode, error) {
	rows, err := s.db.Query(selectNodeCols+" FROM nodes WHERE file_path=? ORDER BY rowid", filePath)
	if err != nil {
		return nil, fmt.Errorf("find nodes by file: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes returns the number of nodes in the store.
func (s *Store) CountNodes() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&count)
	return count, err
}

const selectNodeCols = "SELECT id, kind, name, file_path, line, col, attributes, name_embedding, summary_embedding"

// wildcardToLike translates a '*' wildcard pattern to a LIKE pattern,
// escaping LIKE metacharacters so caller input cannot change query shape.
func wildcardToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*graph.DeclarationNode, error) {
	var n graph.DeclarationNode
	var attrs string
	var nameVec, summaryVec []byte
	err := row.Scan(&n.ID, &n.Kind, &n.Name, &n.File, &n.Line, &n.Column, &attrs, &nameVec, &summaryVec)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.Attributes = unmarshalAttrs(attrs)
	n.NameEmbedding = decodeVector(nameVec)
	n.SummaryEmbedding = decodeVector(summaryVec)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*graph.DeclarationNode, error) {
	var result []*graph.DeclarationNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
