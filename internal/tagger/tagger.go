package tagger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"embedding-pipeline/internal/entity"
)

// Policy selects how aggregated similarities become links.
type Policy string

const (
	// PolicyTopN keeps exactly N best themes per entity, regardless of
	// absolute score. Predictable link cardinality.
	PolicyTopN Policy = "top-n"
	// PolicyThreshold keeps every theme clearing the cutoff. Variable
	// cardinality; always paired with a sanity cap because a clustered
	// catalog at a low cutoff can produce pathologically many links.
	PolicyThreshold Policy = "threshold"
)

// ErrEmptyCatalog: tagging is meaningless without catalog entries, and a
// missing catalog will not fix itself on retry.
var ErrEmptyCatalog = errors.New("theme catalog is empty")

// ErrDimensionMismatch: a chunk and a catalog entry disagree on vector
// length. Fatal, never a silent zero score.
var ErrDimensionMismatch = errors.New("chunk and catalog embedding dimensions differ")

type Config struct {
	Policy    Policy
	TopN      int
	Threshold float64
	// MaxLinks caps threshold-mode results per entity.
	MaxLinks int
	// ClampNegative maps negative cosine values to 0 so stored
	// similarities stay in [0,1].
	ClampNegative bool
}

func (c Config) normalized() Config {
	if c.Policy != PolicyThreshold {
		c.Policy = PolicyTopN
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = 100
	}
	return c
}

type ChunkSource interface {
	ListByEntity(ctx context.Context, entityID string) ([]entity.Chunk, error)
}

type Catalog interface {
	ListCatalog(ctx context.Context) ([]entity.ThemeCatalogEntry, error)
}

type LinkStore interface {
	ReplaceLinks(ctx context.Context, entityID string, links []entity.EntityThemeLink) error
}

// Tagger scores an entity's chunks against the theme catalog and replaces
// the entity's links with the selected set.
type Tagger struct {
	chunks  ChunkSource
	catalog Catalog
	links   LinkStore
	cfg     Config
	log     *zap.SugaredLogger
}

func New(chunks ChunkSource, catalog Catalog, links LinkStore, cfg Config, log *zap.SugaredLogger) *Tagger {
	return &Tagger{chunks: chunks, catalog: catalog, links: links, cfg: cfg.normalized(), log: log}
}

// TagEntity computes per-theme similarity for the entity and persists the
// selected links, replacing any previous set. Aggregation across chunks is
// max: a theme present strongly in any one chunk counts for the whole
// entity (average would under-weight short, highly relevant passages).
func (t *Tagger) TagEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error) {
	chunks, err := t.chunks.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for %s: %w", entityID, err)
	}
	if len(chunks) == 0 {
		// Nothing embedded yet; replacing with the empty set keeps the
		// links consistent with the store.
		if err := t.links.ReplaceLinks(ctx, entityID, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	catalog, err := t.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading theme catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}

	best := make(map[string]float64, len(catalog))
	for _, c := range chunks {
		for _, th := range catalog {
			sim, err := cosine(c.Embedding, th.Embedding)
			if err != nil {
				return nil, err
			}
			if t.cfg.ClampNegative && sim < 0 {
				sim = 0
			}
			if cur, ok := best[th.Code]; !ok || sim > cur {
				best[th.Code] = sim
			}
		}
	}

	links := t.selectLinks(entityID, best)
	if err := t.links.ReplaceLinks(ctx, entityID, links); err != nil {
		return nil, fmt.Errorf("replacing theme links for %s: %w", entityID, err)
	}

	t.log.Infow("entity tagged", "entity_id", entityID, "chunks", len(chunks), "themes", len(links), "policy", string(t.cfg.Policy))
	return links, nil
}

// selectLinks applies the configured policy. Ordering is similarity
// descending with ties broken by theme code, so the result is
// deterministic for identical inputs.
func (t *Tagger) selectLinks(entityID string, best map[string]float64) []entity.EntityThemeLink {
	ranked := make([]entity.EntityThemeLink, 0, len(best))
	for code, sim := range best {
		ranked = append(ranked, entity.EntityThemeLink{EntityID: entityID, ThemeCode: code, Similarity: sim})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].ThemeCode < ranked[j].ThemeCode
	})

	switch t.cfg.Policy {
	case PolicyThreshold:
		kept := ranked[:0]
		for _, l := range ranked {
			if l.Similarity >= t.cfg.Threshold {
				kept = append(kept, l)
			}
		}
		if len(kept) > t.cfg.MaxLinks {
			kept = kept[:t.cfg.MaxLinks]
		}
		return kept
	default:
		if len(ranked) > t.cfg.TopN {
			ranked = ranked[:t.cfg.TopN]
		}
		return ranked
	}
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
