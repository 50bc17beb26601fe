package model

type ChunkMetadata struct {
	ChunkIndex int   `json:"chunkIndex"`
	WordCount  int   `json:"wordCount"`
	CreatedAt  int64 `json:"createdAt"`
}

type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId"`
	Content    string        `json:"content"`
	StartIndex int           `json:"startIndex"`
	EndIndex   int           `json:"endIndex"`
	Embedding  []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ScoredChunk is a chunk with the similarity computed for one query.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
