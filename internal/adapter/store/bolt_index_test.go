package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"rolerag/internal/domain"
	"rolerag/internal/logging"
	"rolerag/internal/port"
)

const testDim = 4

func openTestIndex(t *testing.T, path string) *BoltIndex {
	t.Helper()
	idx, err := OpenBoltIndex(path, "test-model", testDim, logging.Discard())
	if err != nil {
		t.Fatalf("OpenBoltIndex failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testChunk(id, dept string) domain.Chunk {
	return domain.Chunk{ID: id, Text: "text " + id, Department: dept, DocumentID: "doc-" + id, SourcePath: dept + "/" + id + ".md"}
}

func writeAll(items map[domain.Chunk][]float32) func(port.IndexWriter) error {
	return func(w port.IndexWriter) error {
		for c, v := range items {
			if err := w.Upsert(c, v); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if idx.Stats().Chunks != 0 {
		t.Errorf("expected 0 chunks, got %d", idx.Stats().Chunks)
	}
}

func TestSearchFiltersBeforeTopK(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	// Ten engineering chunks sit closer to the query than the one finance chunk.
	err := idx.Rebuild(ctx, func(w port.IndexWriter) error {
		for i := 0; i < 10; i++ {
			if err := w.Upsert(testChunk(fmt.Sprintf("eng-%02d", i), "engineering"), []float32{1, 0.01 * float32(i), 0, 0}); err != nil {
				return err
			}
		}
		return w.Upsert(testChunk("fin-1", "finance"), []float32{0.2, 1, 0, 0})
	})
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3, &port.Filter{Departments: []string{"finance"}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "fin-1" {
		t.Fatalf("expected only fin-1, got %+v", results)
	}
}

func TestSearchOrdering(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	err := idx.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{
		testChunk("b", "hr"):        {1, 0, 0, 0},
		testChunk("a", "hr"):        {1, 0, 0, 0},
		testChunk("c", "general"):   {0, 1, 0, 0},
		testChunk("d", "finance"):   {0.7, 0.7, 0, 0},
		testChunk("e", "marketing"): {0, 0, 0, 1},
	}))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []string{"a", "b", "d"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].Chunk.ID != id {
			t.Errorf("result %d: expected %s, got %s", i, id, results[i].Chunk.ID)
		}
	}
	if results[0].Score < results[2].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

func TestSearchMembershipFilter(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	err := idx.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{
		testChunk("h", "hr"):      {1, 0, 0, 0},
		testChunk("g", "general"): {1, 0, 0, 0},
		testChunk("x", "legal"):   {1, 0, 0, 0},
	}))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, &port.Filter{Departments: []string{"hr", "general"}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.Department == "legal" {
			t.Errorf("unfiltered department leaked: %+v", r.Chunk)
		}
	}
}

func TestRebuildFailureKeepsOldIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	idx := openTestIndex(t, path)
	ctx := context.Background()

	if err := idx.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{testChunk("old", "hr"): {1, 0, 0, 0}})); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	boom := errors.New("boom")
	err := idx.Rebuild(ctx, func(w port.IndexWriter) error {
		if err := w.Upsert(testChunk("new", "hr"), []float32{1, 0, 0, 0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "old" {
		t.Errorf("expected old index to keep serving, got %+v", results)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temporary files to be removed, found %d entries", len(entries))
	}
}

func TestRebuildPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	first := openTestIndex(t, path)
	if err := first.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{
		testChunk("p", "finance"): {0, 0, 1, 0},
		testChunk("q", "general"): {0, 1, 0, 0},
	})); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	first.Close()

	second := openTestIndex(t, path)
	stats := second.Stats()
	if stats.Chunks != 2 {
		t.Errorf("expected 2 chunks, got %d", stats.Chunks)
	}
	if stats.ByDepartment["finance"] != 1 || stats.ByDepartment["general"] != 1 {
		t.Errorf("unexpected department counts: %v", stats.ByDepartment)
	}
	if stats.Model != "test-model" || stats.Dimension != testDim || stats.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("unexpected stats: %+v", stats)
	}

	results, err := second.Search(ctx, []float32{0, 0, 1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "p" {
		t.Fatalf("expected p, got %+v", results)
	}
	if results[0].Chunk.SourcePath != "finance/p.md" || results[0].Chunk.DocumentID != "doc-p" {
		t.Errorf("chunk metadata not persisted: %+v", results[0].Chunk)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()
	items := map[domain.Chunk][]float32{
		testChunk("a", "hr"):      {1, 0, 0, 0},
		testChunk("b", "finance"): {0, 1, 0, 0},
	}

	for i := 0; i < 2; i++ {
		if err := idx.Rebuild(ctx, writeAll(items)); err != nil {
			t.Fatalf("Rebuild %d failed: %v", i, err)
		}
	}
	if got := idx.Stats().Chunks; got != 2 {
		t.Errorf("expected 2 chunks after repeated rebuild, got %d", got)
	}
}

func TestUpsertReplacesDuplicateID(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	err := idx.Rebuild(ctx, func(w port.IndexWriter) error {
		if err := w.Upsert(testChunk("a", "hr"), []float32{1, 0, 0, 0}); err != nil {
			return err
		}
		return w.Upsert(testChunk("a", "hr"), []float32{0, 1, 0, 0})
	})
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := idx.Search(ctx, []float32{0, 1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Score < 0.99 {
		t.Errorf("expected single replaced chunk, got %+v", results)
	}
}

func TestUpsertRejectsInvalidChunks(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	tests := []struct {
		name   string
		chunk  domain.Chunk
		vector []float32
	}{
		{"missing department", domain.Chunk{ID: "a"}, []float32{1, 0, 0, 0}},
		{"missing id", domain.Chunk{Department: "hr"}, []float32{1, 0, 0, 0}},
		{"wrong dimension", testChunk("a", "hr"), []float32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := idx.Rebuild(ctx, func(w port.IndexWriter) error {
				return w.Upsert(tt.chunk, tt.vector)
			})
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDimensionMismatchIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx := openTestIndex(t, path)
	if err := idx.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{testChunk("a", "hr"): {1, 0, 0, 0}})); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	idx.Close()

	other, err := OpenBoltIndex(path, "test-model", 8, logging.Discard())
	if err != nil {
		t.Fatalf("OpenBoltIndex failed: %v", err)
	}
	defer other.Close()

	_, err = other.Search(ctx, make([]float32, 8), 3, nil)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}

	_, err = openTestIndex(t, path).Search(ctx, []float32{1, 0}, 3, nil)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable for short query, got %v", err)
	}
}

func TestSearchAfterCloseFails(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	idx.Close()

	_, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 3, nil)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestReloadPicksUpExternalRebuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	server := openTestIndex(t, path)
	builder := openTestIndex(t, path)
	if err := builder.Rebuild(ctx, writeAll(map[domain.Chunk][]float32{testChunk("a", "hr"): {1, 0, 0, 0}})); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if server.Stats().Chunks != 0 {
		t.Fatal("expected server snapshot to be unchanged before reload")
	}
	if err := server.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if server.Stats().Chunks != 1 {
		t.Errorf("expected 1 chunk after reload, got %d", server.Stats().Chunks)
	}
}

func TestConcurrentSearchDuringRebuild(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	items := map[domain.Chunk][]float32{
		testChunk("a", "hr"):      {1, 0, 0, 0},
		testChunk("b", "hr"):      {0.9, 0.1, 0, 0},
		testChunk("c", "general"): {0, 1, 0, 0},
	}
	if err := idx.Rebuild(ctx, writeAll(items)); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
				if err != nil {
					errs <- err
					return
				}
				if len(results) != 3 {
					errs <- fmt.Errorf("saw partial index with %d chunks", len(results))
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		if err := idx.Rebuild(ctx, writeAll(items)); err != nil {
			t.Fatalf("Rebuild failed: %v", err)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
