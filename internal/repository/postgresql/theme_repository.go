package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"embedding-pipeline/internal/entity"
)

// ThemeRepository reads the pre-embedded theme catalog and maintains
// entity-theme links. The catalog is mutated offline only; the pipeline
// treats it as read-only reference data.
type ThemeRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewThemeRepository(pool *pgxpool.Pool, timeout time.Duration) *ThemeRepository {
	return &ThemeRepository{pool: pool, timeout: timeout}
}

// ListCatalog returns every catalog entry in code order. The catalog is
// small enough (hundreds to low thousands) to scan per entity.
func (r *ThemeRepository) ListCatalog(ctx context.Context) ([]entity.ThemeCatalogEntry, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `SELECT code, label, embedding FROM theme_catalog ORDER BY code;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []entity.ThemeCatalogEntry
	for rows.Next() {
		var (
			e   entity.ThemeCatalogEntry
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.Code, &e.Label, &vec); err != nil {
			return nil, err
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ThemeRepository) GetByCode(ctx context.Context, code string) (*entity.ThemeCatalogEntry, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `SELECT code, label, embedding FROM theme_catalog WHERE code = $1;`
	var (
		e   entity.ThemeCatalogEntry
		vec pgvector.Vector
	)
	if err := r.pool.QueryRow(ctx, q, code).Scan(&e.Code, &e.Label, &vec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Embedding = vec.Slice()
	return &e, nil
}

// ReplaceLinks swaps the entity's theme links as a unit: old links removed
// and new ones inserted in one transaction, so no stale partial state is
// ever visible.
func (r *ThemeRepository) ReplaceLinks(ctx context.Context, entityID string, links []entity.EntityThemeLink) error {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM entity_themes WHERE entity_id = $1;`, entityID); err != nil {
			return err
		}

		const ins = `INSERT INTO entity_themes (entity_id, theme_code, similarity) VALUES ($1, $2, $3);`
		batch := &pgx.Batch{}
		for _, l := range links {
			batch.Queue(ins, entityID, l.ThemeCode, l.Similarity)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ThemesForEntity returns the entity's links ordered by similarity, ties
// broken by code. An untagged entity yields an empty list, not an error:
// "not yet tagged" is a normal state.
func (r *ThemeRepository) ThemesForEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT entity_id, theme_code, similarity
FROM entity_themes
WHERE entity_id = $1
ORDER BY similarity DESC, theme_code ASC;`
	rows, err := r.pool.Query(ctx, q, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]entity.EntityThemeLink, 0)
	for rows.Next() {
		var l entity.EntityThemeLink
		if err := rows.Scan(&l.EntityID, &l.ThemeCode, &l.Similarity); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// EntitiesForTheme is the inverse lookup, paginated internally like the
// chunk search.
func (r *ThemeRepository) EntitiesForTheme(ctx context.Context, code string, opts SearchOptions) ([]entity.ScoredEntity, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT entity_id, similarity
FROM entity_themes
WHERE theme_code = $1
ORDER BY similarity DESC, entity_id ASC
LIMIT $2 OFFSET $3;`

	return collectRanked(ctx, opts, func(ctx context.Context, limit, offset int) ([]entity.ScoredEntity, error) {
		rows, err := r.pool.Query(ctx, q, code, limit, offset)
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
