package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rolerag/internal/adapter/chunker"
	"rolerag/internal/adapter/embedding"
	"rolerag/internal/adapter/fs"
	"rolerag/internal/adapter/memstore"
	"rolerag/internal/domain"
	"rolerag/internal/logging"
	"rolerag/internal/port"
)

// recordingIndex returns canned results and records every search call.
type recordingIndex struct {
	mu      sync.Mutex
	calls   []searchCall
	results [][]domain.ScoredChunk
	err     error
}

type searchCall struct {
	k      int
	filter *port.Filter
}

func (f *recordingIndex) Search(ctx context.Context, vector []float32, k int, filter *port.Filter) ([]domain.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{k: k, filter: filter})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next, nil
}

func (f *recordingIndex) Rebuild(ctx context.Context, fn func(w port.IndexWriter) error) error {
	return errors.New("not supported")
}

func (f *recordingIndex) Stats() domain.IndexStats { return domain.IndexStats{} }
func (f *recordingIndex) Close() error             { return nil }

// stubEmbedder returns a constant vector, or err.
type stubEmbedder struct {
	dim   int
	err   error
	calls int
	mu    sync.Mutex
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, e.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int    { return e.dim }
func (e *stubEmbedder) ModelName() string { return "stub" }

func scored(id, dept string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, Text: "text of " + id, Department: dept, SourcePath: dept + "/" + id + ".md"},
		Score: score,
	}
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

type pipeline struct {
	ingest    *IngestUseCase
	retriever *Retriever
	index     *memstore.MemoryIndex
}

// newPipeline wires the real loader, chunker and hash embedder over an
// in-memory index.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := logging.Discard()
	loader := fs.NewLoader([]string{"**/*.md", "**/*.txt", "**/*.csv"}, []string{"**/.*"}, logger)
	wc, err := chunker.NewWindowChunker(500, 50)
	require.NoError(t, err)
	embedder := embedding.NewHashEmbedder(384, true)
	index := memstore.NewMemoryIndex(embedder.ModelName(), embedder.Dimension())
	return &pipeline{
		ingest:    NewIngestUseCase(loader, wc, embedder, index, 8, 4, logger),
		retriever: NewRetriever(index, embedder, DefaultRetrieveOptions(), logger),
		index:     index,
	}
}
