package service

import (
	"context"

	"embedding-pipeline/internal/entity"
	"embedding-pipeline/internal/repository/postgresql"
)

// defaultTopN bounds ranked queries when the caller specifies neither a
// threshold nor an explicit top-N.
const defaultTopN = 10

// maxThresholdResults is the sanity cap paired with threshold semantics.
const maxThresholdResults = 1000

// ChunkSearcher is the similarity-query port backed by the chunk store.
type ChunkSearcher interface {
	SearchSimilarEntities(ctx context.Context, query []float32, opts postgresql.SearchOptions) ([]entity.ScoredEntity, error)
}

// ThemeReader serves the consumer-side theme lookups.
type ThemeReader interface {
	ThemesForEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error)
	EntitiesForTheme(ctx context.Context, code string, opts postgresql.SearchOptions) ([]entity.ScoredEntity, error)
}

// SearchService exposes the downstream retrieval surface. Missing data
// degrades to empty results: an entity still pending or processing simply
// has no themes yet.
type SearchService struct {
	chunks ChunkSearcher
	themes ThemeReader
}

func NewSearchService(chunks ChunkSearcher, themes ThemeReader) *SearchService {
	return &SearchService{chunks: chunks, themes: themes}
}

// rankedOptions resolves the exactly-one-of contract: a threshold, if
// given, wins and is paired with the sanity cap; otherwise top-N applies.
func rankedOptions(threshold *float64, topN int) postgresql.SearchOptions {
	if threshold != nil {
		limit := topN
		if limit <= 0 || limit > maxThresholdResults {
			limit = maxThresholdResults
		}
		return postgresql.SearchOptions{Threshold: threshold, TopN: limit}
	}
	if topN <= 0 {
		topN = defaultTopN
	}
	return postgresql.SearchOptions{TopN: topN}
}

func (s *SearchService) SearchSimilarEntities(ctx context.Context, query []float32, threshold *float64, topN int) ([]entity.ScoredEntity, error) {
	return s.chunks.SearchSimilarEntities(ctx, query, rankedOptions(threshold, topN))
}

func (s *SearchService) ThemesForEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error) {
	return s.themes.ThemesForEntity(ctx, entityID)
}

func (s *SearchService) EntitiesForTheme(ctx context.Context, code string, threshold *float64, topN int) ([]entity.ScoredEntity, error) {
	return s.themes.EntitiesForTheme(ctx, code, rankedOptions(threshold, topN))
}
