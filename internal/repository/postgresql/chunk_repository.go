package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"embedding-pipeline/internal/entity"
)

// ErrDimensionMismatch: a vector of the wrong length reached the store.
// Comparing vectors of differing provenance is a fatal error, never a
// silent zero-result.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ChunkRepository persists chunk embeddings in a pgvector column and runs
// cosine-similarity queries over them.
type ChunkRepository struct {
	pool    *pgxpool.Pool
	dim     int
	timeout time.Duration
}

func NewChunkRepository(pool *pgxpool.Pool, dimension int, timeout time.Duration) *ChunkRepository {
	return &ChunkRepository{pool: pool, dim: dimension, timeout: timeout}
}

// ReplaceForEntity atomically swaps all chunks for the entity:
// delete-then-insert in one transaction, so readers never observe a mix of
// old and new chunks.
func (r *ChunkRepository) ReplaceForEntity(ctx context.Context, entityID string, chunks []entity.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != r.dim {
			return fmt.Errorf("%w: chunk %d has %d dims, store has %d", ErrDimensionMismatch, c.ChunkIndex, len(c.Embedding), r.dim)
		}
	}

	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE entity_id = $1;`, entityID); err != nil {
			return err
		}

		const ins = `
INSERT INTO chunks (entity_id, chunk_index, text, token_count, embedding)
VALUES ($1, $2, $3, $4, $5);`
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(ins, entityID, c.ChunkIndex, c.Text, c.TokenCount, pgvector.NewVector(c.Embedding))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ListByEntity returns the entity's chunks in chunk_index order, with
// embeddings.
func (r *ChunkRepository) ListByEntity(ctx context.Context, entityID string) ([]entity.Chunk, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT id, entity_id, chunk_index, text, token_count, embedding, created_at
FROM chunks
WHERE entity_id = $1
ORDER BY chunk_index;`
	rows, err := r.pool.Query(ctx, q, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []entity.Chunk
	for rows.Next() {
		var (
			c   entity.Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.EntityID, &c.ChunkIndex, &c.Text, &c.TokenCount, &vec, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchSimilarEntities ranks entities by cosine similarity of their best
// chunk against the query vector. Results are strictly descending, ties
// broken by entity id; pagination happens internally so no single-page row
// limit truncates the set.
func (r *ChunkRepository) SearchSimilarEntities(ctx context.Context, query []float32, opts SearchOptions) ([]entity.ScoredEntity, error) {
	if len(query) != r.dim {
		return nil, fmt.Errorf("%w: query has %d dims, store has %d", ErrDimensionMismatch, len(query), r.dim)
	}

	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT entity_id, 1 - MIN(embedding <=> $1) AS similarity
FROM chunks
GROUP BY entity_id
ORDER BY similarity DESC, entity_id ASC
LIMIT $2 OFFSET $3;`

	vec := pgvector.NewVector(query)
	return collectRanked(ctx, opts, func(ctx context.Context, limit, offset int) ([]entity.ScoredEntity, error) {
		rows, err := r.pool.Query(ctx, q, vec, limit, offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var page []entity.ScoredEntity
		for rows.Next() {
			var hit entity.ScoredEntity
			if err := rows.Scan(&hit.EntityID, &hit.Similarity); err != nil {
				return nil, err
			}
			page = append(page, hit)
		}
		return page, rows.Err()
	})
}
