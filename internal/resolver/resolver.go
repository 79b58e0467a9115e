package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/store"
)

const (
	defaultBatchSize = 500
	defaultWorkers   = 8
)

// Resolver turns pending name-based edges into concrete edges between stored
// declaration nodes. It runs in two phases: a closed-world cache build over
// every persisted node, then batched per-edge candidate search.
type Resolver struct {
	store     *store.Store
	batchSize int
	workers   int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBatchSize sets how many edges resolve per batch. Batch size is a
// throughput knob, not a correctness parameter.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWorkers bounds concurrent edge resolution within a batch.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New returns a Resolver reading declarations from s.
func New(s *store.Store, opts ...Option) *Resolver {
	r := &Resolver{store: s, batchSize: defaultBatchSize, workers: defaultWorkers}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type nameKind struct {
	name string
	kind graph.Kind
}

// declCache is the phase-1 closed-world view. It is read-only during
// phase 2, which is what makes concurrent per-edge resolution safe.
type declCache struct {
	byNameKind map[nameKind][]*graph.DeclarationNode // values keep store insertion order
	byID       map[string]*graph.DeclarationNode
	supers     map[string][]string // class node id -> supertype names
}

// Resolve processes pending edges against the current store contents plus
// the given per-file import maps. Unresolved edges are counted and dropped,
// never returned as errors; only store failures abort the run.
func (r *Resolver) Resolve(ctx context.Context, pending []*graph.PendingEdge, importMaps map[string]graph.ImportMap) ([]*graph.ResolvedEdge, *graph.ResolutionStats, error) {
	stats := graph.NewResolutionStats()
	stats.TotalEdges = len(pending)
	if len(pending) == 0 {
		return nil, stats, nil
	}

	cache, err := r.buildCache(pending)
	if err != nil {
		return nil, nil, fmt.Errorf("build resolution cache: %w", err)
	}

	results := make([]*graph.ResolvedEdge, len(pending))
	var mu sync.Mutex

	for start := 0; start < len(pending); start += r.batchSize {
		end := start + r.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				edge, strategy, ambiguous := r.resolveOne(cache, importMaps, pending[i])
				mu.Lock()
				if edge != nil {
					results[i] = edge
					stats.Resolved++
					stats.ByStrategy[strategy]++
				} else {
					stats.Unresolved++
				}
				if ambiguous {
					stats.Ambiguous++
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	resolved := make([]*graph.ResolvedEdge, 0, stats.Resolved)
	for _, e := range results {
		if e != nil {
			resolved = append(resolved, e)
		}
	}
	slog.Info("resolver.done",
		"total", stats.TotalEdges,
		"resolved", stats.Resolved,
		"unresolved", stats.Unresolved,
		"ambiguous", stats.Ambiguous)
	return resolved, stats, nil
}

// buildCache loads every persisted declaration and indexes it, then overlays
// the inheritance links visible in this run's pending edges so the method
// walk can see supertypes that have not been persisted as edges yet.
func (r *Resolver) buildCache(pending []*graph.PendingEdge) (*declCache, error) {
	nodes, err := r.store.AllNodes()
	if err != nil {
		return nil, err
	}
	cache := &declCache{
		byNameKind: make(map[nameKind][]*graph.DeclarationNode, len(nodes)),
		byID:       make(map[string]*graph.DeclarationNode, len(nodes)),
		supers:     make(map[string][]string),
	}
	for _, n := range nodes {
		key := nameKind{name: n.Name, kind: n.Kind}
		cache.byNameKind[key] = append(cache.byNameKind[key], n)
		cache.byID[n.ID] = n
	}

	persisted, err := r.store.EdgesByRelationship(graph.RelExtends)
	if err != nil {
		return nil, err
	}
	for _, e := range persisted {
		if target, ok := cache.byID[e.TargetID]; ok {
			cache.supers[e.SourceID] = append(cache.supers[e.SourceID], target.Name)
		}
	}
	for _, p := range pending {
		if p.Relationship == graph.RelExtends {
			cache.supers[p.SourceID] = append(cache.supers[p.SourceID], p.TargetName)
		}
	}
	return cache, nil
}

// resolveOne searches candidates in strict priority order: same file,
// import source, receiver-type inheritance walk, global. The first
// non-empty step wins; ties within a step are counted as ambiguous and
// broken deterministically.
func (r *Resolver) resolveOne(cache *declCache, importMaps map[string]graph.ImportMap, p *graph.PendingEdge) (*graph.ResolvedEdge, graph.ResolutionStrategy, bool) {
	source, ok := cache.byID[p.SourceID]
	if !ok {
		return nil, "", false
	}
	candidates := cache.byNameKind[nameKind{name: p.TargetName, kind: p.TargetKind}]
	importSource := r.importSource(importMaps, source.File, p)

	// Step 1: same file as the edge's source.
	if sameFile := filterByFile(candidates, source.File); len(sameFile) > 0 {
		target, ambiguous := pick(sameFile, source.File, importSource)
		return resolved(p, target, graph.StrategySameFile), graph.StrategySameFile, ambiguous
	}

	// Step 2: the file the symbol was imported from.
	if importSource != "" {
		if imported := filterByFile(candidates, importSource); len(imported) > 0 {
			target, ambiguous := pick(imported, source.File, importSource)
			return resolved(p, target, graph.StrategyImported), graph.StrategyImported, ambiguous
		}
	}

	// Step 3: method lookup through the receiver's class hierarchy.
	if p.Receiver != "" && p.TargetKind == graph.KindFunction {
		if target, ambiguous, found := r.resolveMethod(cache, source, p); found {
			return resolved(p, target, graph.StrategyMethodCall), graph.StrategyMethodCall, ambiguous
		}
	}

	// Step 4: global fallback.
	if len(candidates) > 0 {
		target, ambiguous := pick(candidates, source.File, importSource)
		return resolved(p, target, graph.StrategyGlobal), graph.StrategyGlobal, ambiguous
	}

	return nil, "", false
}

// importSource returns the resolved module path the target (or receiver)
// name is bound to in the source file, if any.
func (r *Resolver) importSource(importMaps map[string]graph.ImportMap, sourceFile string, p *graph.PendingEdge) string {
	if p.ImportSource != "" {
		return p.ImportSource
	}
	m, ok := importMaps[sourceFile]
	if !ok {
		return ""
	}
	if target, ok := m[p.TargetName]; ok {
		return target.Path
	}
	// Method calls reach imported symbols through the receiver binding.
	if p.Receiver != "" {
		if target, ok := m[p.Receiver]; ok {
			return target.Path
		}
	}
	return ""
}

// resolveMethod finds the class the receiver names, then looks for a method
// that class defines directly, walking extends links depth-first when it
// does not. Class hierarchies should be acyclic; the visited set guards
// against malformed input.
func (r *Resolver) resolveMethod(cache *declCache, source *graph.DeclarationNode, p *graph.PendingEdge) (*graph.DeclarationNode, bool, bool) {
	classes := cache.byNameKind[nameKind{name: p.Receiver, kind: graph.KindClass}]
	if len(classes) == 0 {
		return nil, false, false
	}
	class := classes[0]
	for _, c := range classes {
		if c.File == source.File {
			class = c
			break
		}
	}

	visited := map[string]bool{}
	stack := []*graph.DeclarationNode{class}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current.ID] {
			continue
		}
		visited[current.ID] = true

		if method, ambiguous, found := definedMethod(cache, current, p.TargetName); found {
			return method, ambiguous, true
		}

		// Push supertypes in reverse so the first-declared base is
		// searched first.
		superNames := cache.supers[current.ID]
		for i := len(superNames) - 1; i >= 0; i-- {
			if super := lookupClass(cache, superNames[i], current.File); super != nil {
				stack = append(stack, super)
			}
		}
	}
	return nil, false, false
}

// lookupClass resolves a supertype name to a class node, preferring one
// declared in the subclass's file.
func lookupClass(cache *declCache, name, preferFile string) *graph.DeclarationNode {
	candidates := cache.byNameKind[nameKind{name: name, kind: graph.KindClass}]
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		if c.File == preferFile {
			return c
		}
	}
	return candidates[0]
}

// definedMethod returns the method a class defines directly: a function node
// with the requested name, in the class's file, whose parent attribute names
// the class.
func definedMethod(cache *declCache, class *graph.DeclarationNode, name string) (*graph.DeclarationNode, bool, bool) {
	var matches []*graph.DeclarationNode
	for _, fn := range cache.byNameKind[nameKind{name: name, kind: graph.KindFunction}] {
		if fn.File != class.File {
			continue
		}
		if parent, ok := fn.Attributes["parent"].(string); ok && parent == class.Name {
			matches = append(matches, fn)
		}
	}
	if len(matches) == 0 {
		return nil, false, false
	}
	return matches[0], len(matches) > 1, true
}

// filterByFile returns the candidates declared in file, preserving order.
func filterByFile(candidates []*graph.DeclarationNode, file string) []*graph.DeclarationNode {
	var out []*graph.DeclarationNode
	for _, c := range candidates {
		if c.File == file {
			out = append(out, c)
		}
	}
	return out
}

// pick breaks ties deterministically: same file first, then the import
// source file, then cache-insertion order. More than one candidate is
// reported as ambiguous regardless of which one wins.
func pick(candidates []*graph.DeclarationNode, sourceFile, importSource string) (*graph.DeclarationNode, bool) {
	if len(candidates) == 1 {
		return candidates[0], false
	}
	for _, c := range candidates {
		if c.File == sourceFile {
			return c, true
		}
	}
	if importSource != "" {
		for _, c := range candidates {
			if c.File == importSource {
				return c, true
			}
		}
	}
	return candidates[0], true
}

func resolved(p *graph.PendingEdge, target *graph.DeclarationNode, strategy graph.ResolutionStrategy) *graph.ResolvedEdge {
	return &graph.ResolvedEdge{
		SourceID:     p.SourceID,
		TargetID:     target.ID,
		Relationship: p.Relationship,
		Metadata: map[string]any{
			"resolutionType": string(strategy),
		},
	}
}
