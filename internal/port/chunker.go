package port

import "rolerag/internal/domain"

type Chunker interface {
	Chunk(department string, docs []domain.Document) []domain.Chunk
}
