package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
	"rolerag/internal/domain"
)

// CurrentSchemaVersion is the current on-disk format version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")

	keySchemaVersion = []byte("schema_version")
	keyModel         = []byte("embedding_model")
	keyDimension     = []byte("dimension")
	keyBuiltAt       = []byte("built_at")
)

// SchemaInfo describes how an index file was built.
type SchemaInfo struct {
	Version   int
	Model     string
	Dimension int
	BuiltAt   time.Time
}

// readSchemaInfo reads the meta bucket. A file without one reports version 0.
func readSchemaInfo(tx *bbolt.Tx) (SchemaInfo, error) {
	var info SchemaInfo
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return info, nil
	}

	if data := b.Get(keySchemaVersion); data != nil {
		v, err := strconv.Atoi(string(data))
		if err != nil {
			return info, fmt.Errorf("invalid schema version %q", data)
		}
		info.Version = v
	}
	info.Model = string(b.Get(keyModel))
	if data := b.Get(keyDimension); data != nil {
		d, err := strconv.Atoi(string(data))
		if err != nil {
			return info, fmt.Errorf("invalid dimension %q", data)
		}
		info.Dimension = d
	}
	if data := b.Get(keyBuiltAt); data != nil {
		if err := info.BuiltAt.UnmarshalText(data); err != nil {
			return info, fmt.Errorf("invalid build time %q", data)
		}
	}
	return info, nil
}

func writeSchemaInfo(tx *bbolt.Tx, info SchemaInfo) error {
	b, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}
	builtAt, err := info.BuiltAt.MarshalText()
	if err != nil {
		return err
	}
	pairs := map[string][]byte{
		string(keySchemaVersion): []byte(strconv.Itoa(info.Version)),
		string(keyModel):         []byte(info.Model),
		string(keyDimension):     []byte(strconv.Itoa(info.Dimension)),
		string(keyBuiltAt):       builtAt,
	}
	for k, v := range pairs {
		if err := b.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// compatible reports why an index cannot serve queries for the given
// embedding model, or nil.
func (s SchemaInfo) compatible(model string, dimension int) error {
	if s.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: schema version %d is newer than supported %d", domain.ErrIndexUnavailable, s.Version, CurrentSchemaVersion)
	}
	if s.Dimension != dimension {
		return fmt.Errorf("%w: index has dimension %d, embedder has %d; re-run ingest", domain.ErrIndexUnavailable, s.Dimension, dimension)
	}
	if s.Model != model {
		return fmt.Errorf("%w: index built with model %q, embedder is %q; re-run ingest", domain.ErrIndexUnavailable, s.Model, model)
	}
	return nil
}

type storedChunk struct {
	Text       string    `json:"text"`
	Department string    `json:"dept"`
	DocumentID string    `json:"doc"`
	SourcePath string    `json:"src"`
	Offset     int       `json:"off"`
	Vector     []float32 `json:"v"`
}

func encodeChunk(chunk domain.Chunk, vector []float32) ([]byte, error) {
	return json.Marshal(storedChunk{
		Text:       chunk.Text,
		Department: chunk.Department,
		DocumentID: chunk.DocumentID,
		SourcePath: chunk.SourcePath,
		Offset:     chunk.Offset,
		Vector:     vector,
	})
}

func decodeChunk(id string, data []byte) (domain.Chunk, []float32, error) {
	var stored storedChunk
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.Chunk{}, nil, err
	}
	return domain.Chunk{
		ID:         id,
		Text:       stored.Text,
		Department: stored.Department,
		DocumentID: stored.DocumentID,
		SourcePath: stored.SourcePath,
		Offset:     stored.Offset,
	}, stored.Vector, nil
}
