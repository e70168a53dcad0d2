package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"rolerag/internal/adapter/analyzer"
)

// HashEmbedder maps text to a bag-of-words vector by feature hashing. It is
// deterministic and needs no backend, so identical text always yields the
// identical vector.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
	stemming  bool
}

func NewHashEmbedder(dimension int, stemming bool) *HashEmbedder {
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(stemming),
		stemming:  stemming,
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		embeddings[i] = e.embed(text)
	}
	return embeddings, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range e.tokenizer.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		// The top bit picks the sign so colliding tokens tend to cancel
		// rather than pile up.
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	if e.stemming {
		return fmt.Sprintf("hash-bow-%d-stem", e.dimension)
	}
	return fmt.Sprintf("hash-bow-%d", e.dimension)
}
