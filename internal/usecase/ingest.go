package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"rolerag/internal/adapter/fs"
	"rolerag/internal/domain"
	"rolerag/internal/port"
)

// ErrEmptyCorpus is returned when a corpus walk produces no chunks. The
// existing index is left in place.
var ErrEmptyCorpus = errors.New("corpus produced no chunks")

// IngestUseCase rebuilds the index from the corpus tree.
type IngestUseCase struct {
	loader    *fs.Loader
	chunker   port.Chunker
	embedder  port.Embedder
	index     port.Index
	batchSize int
	workers   int
	logger    *slog.Logger

	// Progress, when set, is called after each embedded batch. Calls are
	// serialized.
	Progress func(done, total int)
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(
	loader *fs.Loader,
	chunker port.Chunker,
	embedder port.Embedder,
	index port.Index,
	batchSize, workers int,
	logger *slog.Logger,
) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &IngestUseCase{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
	}
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	Report       *fs.LoadReport
	Chunks       int
	ByDepartment map[string]int
	Batches      int
	Duration     time.Duration
}

// Ingest loads, chunks and embeds the corpus under root and replaces the
// index with the result. Any embedding failure aborts the run before the
// index is touched.
func (u *IngestUseCase) Ingest(ctx context.Context, root string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{ByDepartment: make(map[string]int)}

	var chunks []domain.Chunk
	report, err := u.loader.Walk(ctx, root, func(batch fs.DepartmentBatch) error {
		deptChunks := u.chunker.Chunk(batch.Department, batch.Documents)
		u.logger.Debug("chunked department",
			"department", batch.Department,
			"documents", len(batch.Documents),
			"chunks", len(deptChunks))
		for _, c := range deptChunks {
			result.ByDepartment[c.Department]++
		}
		chunks = append(chunks, deptChunks...)
		return nil
	})
	result.Report = report
	if err != nil {
		return result, fmt.Errorf("failed to load corpus: %w", err)
	}
	if len(chunks) == 0 {
		return result, ErrEmptyCorpus
	}

	vectors, batches, err := u.embedAll(ctx, chunks)
	result.Batches = batches
	if err != nil {
		return result, err
	}

	err = u.index.Rebuild(ctx, func(w port.IndexWriter) error {
		for i, c := range chunks {
			if err := w.Upsert(c, vectors[i]); err != nil {
				return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to rebuild index: %w", err)
	}

	result.Chunks = len(chunks)
	result.Duration = time.Since(start)
	u.logger.Info("ingestion complete",
		"departments", report.Departments,
		"documents", report.Documents,
		"chunks", result.Chunks,
		"skipped_files", report.Skipped,
		"load_errors", len(report.Errors),
		"duration", result.Duration)
	return result, nil
}

// embedAll embeds chunk texts in batches on a worker pool. Each batch owns
// its slot in the result, so workers share nothing but the error.
func (u *IngestUseCase) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	pool, err := ants.NewPool(u.workers)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	numBatches := (len(chunks) + u.batchSize - 1) / u.batchSize
	results := make([][][]float32, numBatches)

	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
		done       int
	)
	for b := 0; b < numBatches; b++ {
		lo := b * u.batchSize
		hi := min(lo+u.batchSize, len(chunks))
		texts := make([]string, hi-lo)
		for i := range texts {
			texts[i] = chunks[lo+i].Text
		}

		wg.Add(1)
		slot := b
		err := pool.Submit(func() {
			// Recover before Done so the failure is recorded before Wait returns.
			defer func() {
				if p := recover(); p != nil {
					fail(fmt.Errorf("%w: embedding worker panicked: %v", domain.ErrEmbeddingUnavailable, p))
				}
				wg.Done()
			}()
			if ctx.Err() != nil {
				return
			}
			vecs, err := u.embedder.Embed(ctx, texts)
			if err != nil {
				fail(embeddingError(err))
				return
			}
			if len(vecs) != len(texts) {
				fail(fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbeddingUnavailable, len(texts), len(vecs)))
				return
			}
			results[slot] = vecs

			progressMu.Lock()
			done++
			if u.Progress != nil {
				u.Progress(done, numBatches)
			}
			progressMu.Unlock()
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, numBatches, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, numBatches, err
	}

	vectors := make([][]float32, 0, len(chunks))
	for _, vecs := range results {
		vectors = append(vectors, vecs...)
	}
	if len(vectors) != len(chunks) {
		return nil, numBatches, fmt.Errorf("%w: embedded %d of %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}
	return vectors, numBatches, nil
}

func embeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
}
