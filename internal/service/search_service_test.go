package service_test

import (
	"context"
	"testing"

	"embedding-pipeline/internal/entity"
	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/service"
)

type fakeSearcher struct {
	lastOpts postgresql.SearchOptions
	hits     []entity.ScoredEntity
}

func (f *fakeSearcher) SearchSimilarEntities(ctx context.Context, query []float32, opts postgresql.SearchOptions) ([]entity.ScoredEntity, error) {
	f.lastOpts = opts
	return f.hits, nil
}

type fakeThemeReader struct {
	lastCode string
	lastOpts postgresql.SearchOptions
	links    []entity.EntityThemeLink
	hits     []entity.ScoredEntity
}

func (f *fakeThemeReader) ThemesForEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error) {
	return f.links, nil
}

func (f *fakeThemeReader) EntitiesForTheme(ctx context.Context, code string, opts postgresql.SearchOptions) ([]entity.ScoredEntity, error) {
	f.lastCode = code
	f.lastOpts = opts
	return f.hits, nil
}

func TestSearch_DefaultsToTopN(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := service.NewSearchService(searcher, &fakeThemeReader{})

	if _, err := svc.SearchSimilarEntities(context.Background(), []float32{1, 0}, nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastOpts.Threshold != nil {
		t.Fatalf("expected no threshold")
	}
	if searcher.lastOpts.TopN != 10 {
		t.Fatalf("expected default top-N of 10, got %d", searcher.lastOpts.TopN)
	}
}

func TestSearch_ExplicitTopN(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := service.NewSearchService(searcher, &fakeThemeReader{})

	if _, err := svc.SearchSimilarEntities(context.Background(), []float32{1, 0}, nil, 25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastOpts.TopN != 25 {
		t.Fatalf("expected top-N of 25, got %d", searcher.lastOpts.TopN)
	}
}

func TestSearch_ThresholdGetsSanityCap(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := service.NewSearchService(searcher, &fakeThemeReader{})

	threshold := 0.4
	if _, err := svc.SearchSimilarEntities(context.Background(), []float32{1, 0}, &threshold, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastOpts.Threshold == nil || *searcher.lastOpts.Threshold != 0.4 {
		t.Fatalf("threshold not propagated: %#v", searcher.lastOpts.Threshold)
	}
	if searcher.lastOpts.TopN != 1000 {
		t.Fatalf("expected sanity cap of 1000, got %d", searcher.lastOpts.TopN)
	}
}

func TestSearch_ThresholdWithExplicitCap(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := service.NewSearchService(searcher, &fakeThemeReader{})

	threshold := 0.4
	if _, err := svc.SearchSimilarEntities(context.Background(), []float32{1, 0}, &threshold, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastOpts.TopN != 5 {
		t.Fatalf("expected explicit cap of 5, got %d", searcher.lastOpts.TopN)
	}
}

func TestEntitiesForTheme_UsesSameOptionRules(t *testing.T) {
	themes := &fakeThemeReader{}
	svc := service.NewSearchService(&fakeSearcher{}, themes)

	if _, err := svc.EntitiesForTheme(context.Background(), "flying", nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if themes.lastCode != "flying" {
		t.Fatalf("expected code propagated, got %q", themes.lastCode)
	}
	if themes.lastOpts.TopN != 10 {
		t.Fatalf("expected default top-N, got %d", themes.lastOpts.TopN)
	}
}
