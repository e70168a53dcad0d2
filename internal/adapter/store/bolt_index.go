package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"rolerag/internal/domain"
	"rolerag/internal/port"
)

// BoltIndex keeps an immutable in-memory snapshot of a bbolt file and serves
// brute-force cosine search from it. Rebuilds write a new file next to the
// old one and rename it into place, then swap the snapshot.
type BoltIndex struct {
	path      string
	model     string
	dimension int
	logger    *slog.Logger

	mu     sync.RWMutex // guards snap and closed
	snap   *snapshot
	closed bool

	buildMu sync.Mutex // serializes rebuilds and reloads
}

type snapshot struct {
	info    SchemaInfo
	entries []entry // sorted by chunk ID
	byDept  map[string]int
	// err is set when the file on disk cannot serve this embedder.
	err error
}

type entry struct {
	chunk  domain.Chunk
	vector []float32
	norm   float64
}

var _ port.Index = (*BoltIndex)(nil)

// OpenBoltIndex loads the index at path. A missing file opens as an empty
// index for the given embedding model.
func OpenBoltIndex(path, model string, dimension int, logger *slog.Logger) (*BoltIndex, error) {
	idx := &BoltIndex{
		path:      path,
		model:     model,
		dimension: dimension,
		logger:    logger,
	}
	if err := idx.Reload(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reload re-reads the index file, picking up a rebuild done by another
// process.
func (idx *BoltIndex) Reload() error {
	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	snap, err := idx.load()
	if err != nil {
		return err
	}
	if snap.err != nil {
		idx.logger.Warn("index cannot serve queries", "path", idx.path, "error", snap.err)
	}

	idx.swap(snap)
	return nil
}

func (idx *BoltIndex) load() (*snapshot, error) {
	if _, err := os.Stat(idx.path); errors.Is(err, os.ErrNotExist) {
		return newSnapshot(SchemaInfo{Version: CurrentSchemaVersion, Model: idx.model, Dimension: idx.dimension}, nil), nil
	}

	db, err := bbolt.Open(idx.path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %v", domain.ErrIndexUnavailable, err)
	}
	defer db.Close()

	var info SchemaInfo
	var entries []entry
	skipped := 0
	err = db.View(func(tx *bbolt.Tx) error {
		var err error
		if info, err = readSchemaInfo(tx); err != nil {
			return err
		}

		b := tx.Bucket(bucketChunks)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			chunk, vector, err := decodeChunk(string(k), v)
			if err != nil {
				skipped++
				return nil
			}
			entries = append(entries, newEntry(chunk, vector))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read index: %v", domain.ErrIndexUnavailable, err)
	}
	if skipped > 0 {
		idx.logger.Warn("skipped corrupted index entries", "count", skipped)
	}

	snap := newSnapshot(info, entries)
	snap.err = info.compatible(idx.model, idx.dimension)
	return snap, nil
}

func newEntry(chunk domain.Chunk, vector []float32) entry {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	return entry{chunk: chunk, vector: vector, norm: math.Sqrt(norm)}
}

func newSnapshot(info SchemaInfo, entries []entry) *snapshot {
	sort.Slice(entries, func(i, j int) bool { return entries[i].chunk.ID < entries[j].chunk.ID })

	byDept := make(map[string]int)
	for _, e := range entries {
		byDept[e.chunk.Department]++
	}
	return &snapshot{info: info, entries: entries, byDept: byDept}
}

func (idx *BoltIndex) current() (*snapshot, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("%w: index is closed", domain.ErrIndexUnavailable)
	}
	return idx.snap, nil
}

func (idx *BoltIndex) swap(snap *snapshot) {
	idx.mu.Lock()
	idx.snap = snap
	idx.mu.Unlock()
}

// Search finds the k nearest chunks passing filter using cosine similarity.
// The filter is applied to every candidate before ranking.
func (idx *BoltIndex) Search(ctx context.Context, query []float32, k int, filter *port.Filter) ([]domain.ScoredChunk, error) {
	snap, err := idx.current()
	if err != nil {
		return nil, err
	}
	if snap.err != nil {
		return nil, snap.err
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrIndexUnavailable, idx.dimension, len(query))
	}
	if k <= 0 || len(snap.entries) == 0 {
		return nil, nil
	}

	var queryNorm float64
	for _, v := range query {
		queryNorm += float64(v) * float64(v)
	}
	queryNorm = math.Sqrt(queryNorm)

	scores := make([]domain.ScoredChunk, 0, len(snap.entries))
	for i := range snap.entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := &snap.entries[i]
		if !filter.Matches(e.chunk.Department) {
			continue
		}
		scores = append(scores, domain.ScoredChunk{
			Chunk: e.chunk,
			Score: cosineSimilarity(query, queryNorm, e.vector, e.norm),
		})
	}

	// Ties break on chunk ID so identical indexes rank identically.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Chunk.ID < scores[j].Chunk.ID
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Rebuild writes a complete new index through fn. Nothing is replaced unless
// fn and the commit succeed.
func (idx *BoltIndex) Rebuild(ctx context.Context, fn func(w port.IndexWriter) error) error {
	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	if _, err := idx.current(); err != nil {
		return err
	}

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(idx.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary index: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	info := SchemaInfo{
		Version:   CurrentSchemaVersion,
		Model:     idx.model,
		Dimension: idx.dimension,
		BuiltAt:   time.Now().UTC(),
	}
	entries, err := idx.writeFile(ctx, tmpPath, info, fn)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, idx.path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	committed = true
	syncDir(dir)

	idx.swap(newSnapshot(info, entries))
	idx.logger.Info("index rebuilt", "path", idx.path, "chunks", len(entries))
	return nil
}

func (idx *BoltIndex) writeFile(ctx context.Context, path string, info SchemaInfo, fn func(w port.IndexWriter) error) ([]entry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	w := &boltWriter{ctx: ctx, dimension: idx.dimension, positions: make(map[string]int)}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}
		w.bucket = b
		if err := fn(w); err != nil {
			return err
		}
		return writeSchemaInfo(tx, info)
	})
	if closeErr := db.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close bolt db: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}
	return w.entries, nil
}

// syncDir makes a rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

type boltWriter struct {
	ctx       context.Context
	bucket    *bbolt.Bucket
	dimension int
	entries   []entry
	positions map[string]int
}

// Upsert stores chunk; a repeated ID replaces the earlier write.
func (w *boltWriter) Upsert(chunk domain.Chunk, vector []float32) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if chunk.ID == "" {
		return fmt.Errorf("chunk has empty ID")
	}
	if chunk.Department == "" {
		return fmt.Errorf("chunk %s has no department tag", chunk.ID)
	}
	if len(vector) != w.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", w.dimension, len(vector))
	}

	data, err := encodeChunk(chunk, vector)
	if err != nil {
		return err
	}
	if err := w.bucket.Put([]byte(chunk.ID), data); err != nil {
		return err
	}

	e := newEntry(chunk, vector)
	if pos, ok := w.positions[chunk.ID]; ok {
		w.entries[pos] = e
		return nil
	}
	w.positions[chunk.ID] = len(w.entries)
	w.entries = append(w.entries, e)
	return nil
}

// Stats describes the snapshot currently served.
func (idx *BoltIndex) Stats() domain.IndexStats {
	idx.mu.RLock()
	snap := idx.snap
	idx.mu.RUnlock()

	byDept := make(map[string]int, len(snap.byDept))
	for d, n := range snap.byDept {
		byDept[d] = n
	}
	return domain.IndexStats{
		Chunks:        len(snap.entries),
		ByDepartment:  byDept,
		Model:         snap.info.Model,
		Dimension:     snap.info.Dimension,
		BuiltAt:       snap.info.BuiltAt,
		SchemaVersion: snap.info.Version,
	}
}

// Close stops the index from serving. The file is left in place.
func (idx *BoltIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors
// given their precomputed norms.
func cosineSimilarity(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}

	var dotProduct float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
	}
	return dotProduct / (normA * normB)
}
