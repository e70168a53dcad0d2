package domain

import "time"

// GeneralDepartment tags material that every role may read.
const GeneralDepartment = "general"

type Document struct {
	ID         string
	SourcePath string
	Department string
	Text       string
}

type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Department string `json:"department"`
	DocumentID string `json:"document_id"`
	SourcePath string `json:"source_path"`
	Offset     int    `json:"offset"`
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type Principal struct {
	Username string
	Role     Role
}

// QueryResult is the outcome of one retrieval. NoData is a normal outcome,
// not a failure.
type QueryResult struct {
	Role          Role
	RequestedRole string
	Chunks        []ScoredChunk
	UsedFallback  bool
	NoData        bool
}

// Texts returns chunk texts in result order.
func (r *QueryResult) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		texts[i] = c.Chunk.Text
	}
	return texts
}

// Sources returns the distinct source paths of the result, in result order.
func (r *QueryResult) Sources() []string {
	seen := make(map[string]struct{}, len(r.Chunks))
	var sources []string
	for _, c := range r.Chunks {
		if _, ok := seen[c.Chunk.SourcePath]; ok {
			continue
		}
		seen[c.Chunk.SourcePath] = struct{}{}
		sources = append(sources, c.Chunk.SourcePath)
	}
	return sources
}

type IndexStats struct {
	Chunks        int            `json:"chunks"`
	ByDepartment  map[string]int `json:"by_department"`
	Model         string         `json:"model,omitempty"`
	Dimension     int            `json:"dimension,omitempty"`
	BuiltAt       time.Time      `json:"built_at,omitempty"`
	SchemaVersion int            `json:"schema_version,omitempty"`
}
