package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection for graph storage.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates a SQLite graph database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// A :memory: database exists per connection; pooling would silently
	// split the graph across empty databases.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		line INTEGER NOT NULL DEFAULT 0,
		col INTEGER NOT NULL DEFAULT 0,
		attributes TEXT NOT NULL DEFAULT '{}',
		name_embedding BLOB,
		summary_embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_name_kind ON nodes(name, kind);
	CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);

	-- No uniqueness over (source, target, relationship): call-site
	-- multiplicity is preserved.
	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		relationship TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, relationship);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, relationship);

	CREATE TABLE IF NOT EXISTS file_hashes (
		rel_path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT PRIMARY KEY,
		vector BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Clear removes every node, edge, hash, and cached embedding.
func (s *Store) Clear() error {
	for _, table := range []string{"edges", "nodes", "file_hashes", "embedding_cache"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// ClearFile removes all nodes (and, via cascade, their edges) for one file.
func (s *Store) ClearFile(filePath string) error {
	if _, err := s.db.Exec("DELETE FROM nodes WHERE file_path=?", filePath); err != nil {
		return fmt.Errorf("clear file nodes: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM file_hashes WHERE rel_path=?", filePath); err != nil {
		return fmt.Errorf("clear file hash: %w", err)
	}
	return nil
}

// GetFileHashes returns the stored content hash per file.
func (s *Store) GetFileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT rel_path, hash FROM file_hashes")
	if err != nil {
		return nil, fmt.Errorf("get file hashes: %w", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

// SetFileHash records the content hash for a file.
func (s *Store) SetFileHash(relPath, hash string) error {
	_, err := s.db.Exec(`
		INSERT INTO file_hashes (rel_path, hash) VALUES (?, ?)
		ON CONFLICT(rel_path) DO UPDATE SET hash=excluded.hash`, relPath, hash)
	if err != nil {
		return fmt.Errorf("set file hash: %w", err)
	}
	return nil
}

// GetCachedEmbedding returns the stored vector for a content hash, or nil.
func (s *Store) GetCachedEmbedding(contentHash string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT vector FROM embedding_cache WHERE content_hash=?", contentHash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached embedding: %w", err)
	}
	return decodeVector(blob), nil
}

// PutCachedEmbedding stores a vector under its content hash.
func (s *Store) PutCachedEmbedding(contentHash string, vector []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO embedding_cache (content_hash, vector) VALUES (?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET vector=excluded.vector`,
		contentHash, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("put cached embedding: %w", err)
	}
	return nil
}

// marshalAttrs serializes an attribute bag to JSON.
func marshalAttrs(attrs map[string]any) string {
	if attrs == nil {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// unmarshalAttrs deserializes a JSON attribute bag.
func unmarshalAttrs(data string) map[string]any {
	if data == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// encodeVector packs a float32 vector into little-endian bytes.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 vector.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
