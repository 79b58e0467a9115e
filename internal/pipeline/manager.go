package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/codegraphhq/codegraph/internal/discover"
	"github.com/codegraphhq/codegraph/internal/embed"
	"github.com/codegraphhq/codegraph/internal/extract"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/resolver"
	"github.com/codegraphhq/codegraph/internal/store"
)

// ProcessingStats summarizes one pipeline run.
type ProcessingStats struct {
	FilesProcessed      int
	NodesCreated        int
	EdgesCreated        int
	EmbeddingsGenerated int
	APICallsSaved       int
	Errors              int
	Resolution          *graph.ResolutionStats
}

// Options tunes the pipeline's pools and batches. Zero values take defaults
// sized for the host.
type Options struct {
	ParseWorkers   int
	NodeBatchSize  int
	EdgeBatchSize  int
	ResolveBatch   int
	ResolveWorkers int

	// Embedder enables the embedding stage when non-nil.
	Embedder         embed.Generator
	EmbedBatchSize   int
	EmbedIdleTimeout time.Duration

	// ChangedOnly makes Run skip files whose content hash matches the
	// previous run.
	ChangedOnly bool

	// Discover forwards to file discovery during Run.
	Discover *discover.Options
}

// Manager drives files through parse, embed, and persist stages with
// independently sized concurrency pools, then resolves pending edges once
// every node of the batch is durable.
type Manager struct {
	ctx      context.Context
	store    *store.Store
	registry *extract.Registry
	opts     Options
}

// New creates a Manager. opts fields left zero get defaults.
func New(ctx context.Context, s *store.Store, opts Options) *Manager {
	if opts.ParseWorkers <= 0 {
		opts.ParseWorkers = defaultParseWorkers()
	}
	if opts.NodeBatchSize <= 0 {
		opts.NodeBatchSize = 200
	}
	if opts.EdgeBatchSize <= 0 {
		opts.EdgeBatchSize = 500
	}
	return &Manager{
		ctx:      ctx,
		store:    s,
		registry: extract.NewRegistry(),
		opts:     opts,
	}
}

// HashContent is the incremental-indexing content hash.
func HashContent(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// Run indexes a whole repository: discover, filter unchanged files when
// ChangedOnly is set, process, then record content hashes and drop data for
// files that no longer exist.
func (m *Manager) Run(repoPath string) (*ProcessingStats, error) {
	slog.Info("pipeline.start", "path", repoPath)

	files, err := discover.Discover(m.ctx, repoPath, m.opts.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	previous, err := m.store.GetFileHashes()
	if err != nil {
		return nil, fmt.Errorf("load file hashes: %w", err)
	}

	seen := make(map[string]bool, len(files))
	hashes := make(map[string]string, len(files))
	toProcess := files[:0]
	for _, f := range files {
		seen[f.RelPath] = true
		content, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		h := HashContent(content)
		hashes[f.RelPath] = h
		if m.opts.ChangedOnly && previous[f.RelPath] == h {
			continue
		}
		toProcess = append(toProcess, f)
	}

	// Files indexed before but gone now take their nodes and edges with them.
	for rel := range previous {
		if !seen[rel] {
			if err := m.store.ClearFile(rel); err != nil {
				slog.Warn("pipeline.clear_deleted_failed", "file", rel, "err", err)
			}
		}
	}

	stats, err := m.ProcessFiles(toProcess)
	if err != nil {
		return stats, err
	}

	for _, f := range toProcess {
		if h, ok := hashes[f.RelPath]; ok {
			if err := m.store.SetFileHash(f.RelPath, h); err != nil {
				slog.Warn("pipeline.hash_write_failed", "file", f.RelPath, "err", err)
			}
		}
	}
	return stats, nil
}

// ProcessFiles runs the three stages over the given files and returns stats.
// Per-file failures are counted, never fatal; only store or context failures
// abort the run.
func (m *Manager) ProcessFiles(files []discover.FileInfo) (*ProcessingStats, error) {
	stats := &ProcessingStats{Resolution: graph.NewResolutionStats()}
	if len(files) == 0 {
		return stats, nil
	}

	parsed, parseErrors := m.parseStage(files)
	stats.Errors += parseErrors
	stats.FilesProcessed = len(parsed)

	var nodes []*graph.DeclarationNode
	var pending []*graph.PendingEdge
	for _, pf := range parsed {
		nodes = append(nodes, pf.Nodes...)
		pending = append(pending, pf.PendingEdges...)
	}

	// Re-ingested files shed their previous nodes and edges first so a
	// second run over identical content reproduces identical counts.
	for _, pf := range parsed {
		if err := m.store.ClearFile(pf.Path); err != nil {
			return stats, fmt.Errorf("clear file %s: %w", pf.Path, err)
		}
	}

	if err := m.persistNodes(nodes, stats); err != nil {
		return stats, err
	}

	// Edge resolution reads the store, so it must not start before every
	// node flush above has completed.
	importMaps := m.buildImportMaps(parsed)
	res := resolver.New(m.store,
		resolver.WithBatchSize(m.opts.ResolveBatch),
		resolver.WithWorkers(m.opts.ResolveWorkers))
	resolved, rstats, err := res.Resolve(m.ctx, pending, importMaps)
	if err != nil {
		return stats, fmt.Errorf("resolve edges: %w", err)
	}
	stats.Resolution = rstats

	if err := m.persistEdges(resolved, stats); err != nil {
		return stats, err
	}

	if m.opts.Embedder != nil {
		m.embedStage(parsed, stats)
	}

	slog.Info("pipeline.done",
		"files", stats.FilesProcessed,
		"nodes", stats.NodesCreated,
		"edges", stats.EdgesCreated,
		"embeddings", stats.EmbeddingsGenerated,
		"saved", stats.APICallsSaved,
		"errors", stats.Errors)
	return stats, nil
}

// parseStage fans files across a CPU-sized worker pool. Extraction itself is
// fail-open; only unreadable files count as errors here.
func (m *Manager) parseStage(files []discover.FileInfo) ([]*graph.ParsedFile, int) {
	results := make([]*graph.ParsedFile, len(files))
	workers := m.opts.ParseWorkers
	if workers > len(files) {
		workers = len(files)
	}

	g, gctx := errgroup.WithContext(m.ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	errCount := 0
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(f.Path)
			if err != nil {
				slog.Warn("pipeline.read_failed", "file", f.RelPath, "err", err)
				mu.Lock()
				errCount++
				mu.Unlock()
				return nil
			}
			results[i] = m.registry.Parse(f.RelPath, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("pipeline.parse_interrupted", "err", err)
	}

	parsed := make([]*graph.ParsedFile, 0, len(results))
	for _, r := range results {
		if r != nil {
			parsed = append(parsed, r)
		}
	}
	return parsed, errCount
}

// persistNodes flushes node batches as they fill and always flushes the
// remainder. A failed flush loses that batch and is counted, not retried.
func (m *Manager) persistNodes(nodes []*graph.DeclarationNode, stats *ProcessingStats) error {
	for start := 0; start < len(nodes); start += m.opts.NodeBatchSize {
		end := start + m.opts.NodeBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]
		if err := m.store.AddNodes(batch); err != nil {
			stats.Errors++
			slog.Error("pipeline.node_flush_failed", "count", len(batch), "err", err)
			continue
		}
		stats.NodesCreated += len(batch)
	}
	return m.ctx.Err()
}

func (m *Manager) persistEdges(edges []*graph.ResolvedEdge, stats *ProcessingStats) error {
	for start := 0; start < len(edges); start += m.opts.EdgeBatchSize {
		end := start + m.opts.EdgeBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[start:end]
		if err := m.store.AddEdges(batch); err != nil {
			stats.Errors++
			slog.Error("pipeline.edge_flush_failed", "count", len(batch), "err", err)
			continue
		}
		stats.EdgesCreated += len(batch)
	}
	return m.ctx.Err()
}

// buildImportMaps resolves relative import specifiers against the set of
// files in this batch, so "./util" binds to whichever extension actually
// exists in the repository.
func (m *Manager) buildImportMaps(parsed []*graph.ParsedFile) map[string]graph.ImportMap {
	known := make(map[string]bool, len(parsed))
	for _, pf := range parsed {
		known[pf.Path] = true
	}
	checker := func(rel string) bool { return known[rel] }
	return resolver.NewImportMapBuilder(checker).Build(parsed)
}

// embedStage queues one request per declaration and one per file summary,
// then attaches delivered vectors to the already-persisted nodes.
func (m *Manager) embedStage(parsed []*graph.ParsedFile, stats *ProcessingStats) {
	batcher := embed.NewBatcher(m.ctx, m.opts.Embedder, m.store,
		embed.WithBatchLimit(m.opts.EmbedBatchSize),
		embed.WithIdleTimeout(m.opts.EmbedIdleTimeout))

	var wg sync.WaitGroup
	for _, pf := range parsed {
		for _, node := range pf.Nodes {
			node := node
			wg.Add(1)
			batcher.Enqueue(nodeText(node), func(vec []float32) {
				defer wg.Done()
				if vec == nil {
					return
				}
				if err := m.store.AttachEmbeddings(node.ID, vec, nil); err != nil {
					slog.Warn("pipeline.embed_attach_failed", "node", node.ID, "err", err)
				}
			})
		}

		summary := fileSummary(pf)
		if summary == "" {
			continue
		}
		wg.Add(1)
		batcher.Enqueue(summary, func([]float32) { wg.Done() })
	}
	batcher.Flush()
	wg.Wait()

	stats.EmbeddingsGenerated = batcher.Generated()
	stats.APICallsSaved = batcher.Saved()
	stats.Errors += batcher.Errors()
}

// nodeText is the embedding input for one declaration.
func nodeText(n *graph.DeclarationNode) string {
	return fmt.Sprintf("%s %s in %s", n.Kind, n.Name, n.File)
}

// fileSummary is the embedding input describing a whole file.
func fileSummary(pf *graph.ParsedFile) string {
	if len(pf.Nodes) == 0 {
		return ""
	}
	text := fmt.Sprintf("%s (%s) declares:", pf.Path, pf.Language)
	for _, n := range pf.Nodes {
		text += fmt.Sprintf(" %s %s;", n.Kind, n.Name)
	}
	return text
}

func defaultParseWorkers() int {
	return runtime.NumCPU()
}
