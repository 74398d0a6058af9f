package entity

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one embedded segment of an entity's source text.
// Chunks for an entity are contiguous by ChunkIndex and are replaced as a
// whole when the entity is reprocessed.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	EntityID   string    `json:"entity_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
