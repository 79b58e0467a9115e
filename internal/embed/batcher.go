package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/codegraphhq/codegraph/internal/store"
)

const (
	defaultBatchSize   = 64
	defaultIdleTimeout = 200 * time.Millisecond
)

// HashText returns the content hash used for embedding deduplication.
// Byte-identical texts share one vector.
func HashText(text string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(text))
}

type pendingText struct {
	hash string
	text string
	subs []func([]float32)
}

// Batcher queues embedding requests and flushes them to the Generator when
// a batch fills or the queue sits idle, whichever comes first. Requests with
// identical content are collapsed into one API input; hits against the
// in-run cache or the store's persistent cache are counted as saved calls.
type Batcher struct {
	ctx         context.Context
	gen         Generator
	store       *store.Store
	batchSize   int
	idleTimeout time.Duration

	mu        sync.Mutex
	queue     []*pendingText
	index     map[string]*pendingText
	known     map[string][]float32
	timer     *time.Timer
	generated int
	saved     int
	errors    int
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatchLimit sets the flush threshold.
func WithBatchLimit(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithIdleTimeout sets how long a partial batch may wait before flushing.
func WithIdleTimeout(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.idleTimeout = d
		}
	}
}

// NewBatcher wraps gen with batching and deduplication. s may be nil to run
// without the persistent cache.
func NewBatcher(ctx context.Context, gen Generator, s *store.Store, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		ctx:         ctx,
		gen:         gen,
		store:       s,
		batchSize:   defaultBatchSize,
		idleTimeout: defaultIdleTimeout,
		index:       make(map[string]*pendingText),
		known:       make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue registers text for embedding. deliver is called exactly once with
// the vector, or with nil if the flush carrying this text failed.
func (b *Batcher) Enqueue(text string, deliver func([]float32)) {
	hash := HashText(text)

	b.mu.Lock()
	if vec, ok := b.known[hash]; ok {
		b.saved++
		b.mu.Unlock()
		deliver(vec)
		return
	}
	if entry, ok := b.index[hash]; ok {
		b.saved++
		entry.subs = append(entry.subs, deliver)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// Persistent cache lookup happens outside the lock; a concurrent miss
	// on the same hash just queues once below.
	if b.store != nil {
		if vec, err := b.store.GetCachedEmbedding(hash); err == nil && vec != nil {
			b.mu.Lock()
			b.known[hash] = vec
			b.saved++
			b.mu.Unlock()
			deliver(vec)
			return
		}
	}

	b.mu.Lock()
	if vec, ok := b.known[hash]; ok {
		b.saved++
		b.mu.Unlock()
		deliver(vec)
		return
	}
	if entry, ok := b.index[hash]; ok {
		b.saved++
		entry.subs = append(entry.subs, deliver)
		b.mu.Unlock()
		return
	}
	entry := &pendingText{hash: hash, text: text, subs: []func([]float32){deliver}}
	b.queue = append(b.queue, entry)
	b.index[hash] = entry

	if len(b.queue) >= b.batchSize {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.flush(batch)
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.idleTimeout, b.flushIdle)
	}
	b.mu.Unlock()
}

// Flush drains everything still queued. Call once after the last Enqueue.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(batch)
}

func (b *Batcher) flushIdle() {
	b.mu.Lock()
	b.timer = nil
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(batch)
}

// takeLocked removes the current queue for flushing. Caller holds b.mu.
func (b *Batcher) takeLocked() []*pendingText {
	batch := b.queue
	b.queue = nil
	for _, entry := range batch {
		delete(b.index, entry.hash)
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

func (b *Batcher) flush(batch []*pendingText) {
	if len(batch) == 0 {
		return
	}
	texts := make([]string, len(batch))
	for i, entry := range batch {
		texts[i] = entry.text
	}

	vectors, err := b.gen.Embed(b.ctx, texts)
	if err != nil {
		// The batch is lost: subscribers get nil and the caller's error
		// count carries the signal.
		slog.Error("embed.flush_failed", "texts", len(texts), "err", err)
		b.mu.Lock()
		b.errors++
		b.mu.Unlock()
		for _, entry := range batch {
			for _, deliver := range entry.subs {
				deliver(nil)
			}
		}
		return
	}

	b.mu.Lock()
	for i, entry := range batch {
		b.known[entry.hash] = vectors[i]
		b.generated++
	}
	b.mu.Unlock()

	for i, entry := range batch {
		if b.store != nil {
			if err := b.store.PutCachedEmbedding(entry.hash, vectors[i]); err != nil {
				slog.Warn("embed.cache_write_failed", "err", err)
			}
		}
		for _, deliver := range entry.subs {
			deliver(vectors[i])
		}
	}
}

// Generated returns how many vectors the API produced.
func (b *Batcher) Generated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generated
}

// Saved returns how many API inputs deduplication avoided.
func (b *Batcher) Saved() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved
}

// Errors returns how many flushes failed.
func (b *Batcher) Errors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors
}
