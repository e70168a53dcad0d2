package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rolerag/internal/domain"
	"rolerag/internal/policy"
	"rolerag/internal/port"
)

// RetrieveOptions tunes the retriever.
type RetrieveOptions struct {
	TopK      int
	FallbackK int
	// MinScore drops results scoring at or below it.
	MinScore float64
	Timeout  time.Duration
}

// DefaultRetrieveOptions returns the stock search sizes.
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{TopK: 3, FallbackK: 5, Timeout: 10 * time.Second}
}

// Retriever applies the access policy to every search it issues. It holds no
// per-query state and is safe for concurrent use.
type Retriever struct {
	index    port.Index
	embedder port.Embedder
	opts     RetrieveOptions
	logger   *slog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(index port.Index, embedder port.Embedder, opts RetrieveOptions, logger *slog.Logger) *Retriever {
	defaults := DefaultRetrieveOptions()
	if opts.TopK <= 0 {
		opts.TopK = defaults.TopK
	}
	if opts.FallbackK <= 0 {
		opts.FallbackK = defaults.FallbackK
	}
	return &Retriever{
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve answers question within the access scope of role. An
// unrecognized role is treated as employee. Finding nothing is reported
// through QueryResult.NoData, not as an error.
func (r *Retriever) Retrieve(ctx context.Context, role, question string) (*domain.QueryResult, error) {
	resolved, ok := domain.ParseRole(role)
	if !ok {
		r.logger.Warn("unrecognized role, using most restrictive access", "role", role, "resolved", resolved)
	}

	result := &domain.QueryResult{Role: resolved, RequestedRole: role}
	if strings.TrimSpace(question) == "" {
		result.NoData = true
		return result, nil
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, queryError(ctx, domain.ErrEmbeddingUnavailable, "failed to embed question", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", domain.ErrEmbeddingUnavailable, len(vectors))
	}
	vector := vectors[0]

	access := policy.AccessPolicy(resolved)
	var chunks []domain.ScoredChunk
	switch access.Kind {
	case policy.Unfiltered:
		// The broadened search runs only when the index itself returned
		// nothing; the score threshold is applied afterwards.
		chunks, err = r.index.Search(ctx, vector, r.opts.TopK, nil)
		if err == nil && len(chunks) == 0 {
			r.logger.Debug("primary search empty, broadening", "role", resolved)
			result.UsedFallback = true
			chunks, err = r.index.Search(ctx, vector, r.opts.FallbackK, &port.Filter{Departments: policy.FallbackDepartments()})
		}
	case policy.Department, policy.General:
		chunks, err = r.index.Search(ctx, vector, r.opts.TopK, &port.Filter{Departments: []string{access.Tag()}})
	}
	if err != nil {
		return nil, queryError(ctx, domain.ErrIndexUnavailable, "search failed", err)
	}

	chunks = r.filterByThreshold(chunks)
	result.Chunks = chunks
	result.NoData = len(chunks) == 0
	return result, nil
}

// filterByThreshold removes results at or below the minimum score. Results
// arrive sorted, so the survivors are still the top of the filtered set.
func (r *Retriever) filterByThreshold(results []domain.ScoredChunk) []domain.ScoredChunk {
	filtered := make([]domain.ScoredChunk, 0, len(results))
	for _, res := range results {
		if res.Score > r.opts.MinScore {
			filtered = append(filtered, res)
		}
	}
	return filtered
}

// queryError tags err with kind, reporting a deadline as the cause when the
// call ran out of time.
func queryError(ctx context.Context, kind error, msg string, err error) error {
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", kind, msg, ctx.Err())
	}
	return fmt.Errorf("%w: %s: %v", kind, msg, err)
}
