package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"rolerag/internal/domain"
)

// WindowChunker splits text into fixed-size, overlapping windows of runes.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &WindowChunker{
		size:    size,
		overlap: overlap,
	}, nil
}

// Chunk splits every document of one department, in input order. Windows
// never cross document boundaries and every chunk is tagged with the
// lower-cased department.
func (c *WindowChunker) Chunk(department string, docs []domain.Document) []domain.Chunk {
	tag := NormalizeDepartment(department)

	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.chunkDocument(tag, doc)...)
	}
	return chunks
}

func (c *WindowChunker) chunkDocument(tag string, doc domain.Document) []domain.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	runes := []rune(doc.Text)
	if len(runes) <= c.size {
		return []domain.Chunk{newChunk(tag, doc, doc.Text, 0)}
	}

	stride := c.size - c.overlap
	var chunks []domain.Chunk
	for start := 0; ; start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, newChunk(tag, doc, string(runes[start:end]), start))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func newChunk(tag string, doc domain.Document, text string, offset int) domain.Chunk {
	return domain.Chunk{
		ID:         generateChunkID(doc.ID, offset),
		Text:       text,
		Department: tag,
		DocumentID: doc.ID,
		SourcePath: doc.SourcePath,
		Offset:     offset,
	}
}

// NormalizeDepartment is the tag form of a department directory name.
func NormalizeDepartment(department string) string {
	return strings.ToLower(strings.TrimSpace(department))
}

func generateChunkID(docID string, offset int) string {
	data := fmt.Sprintf("%s:%d", docID, offset)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
