package postgresql

import (
	"context"

	"embedding-pipeline/internal/entity"
)

// SearchOptions select either threshold or top-N semantics for a ranked
// query. When Threshold is set, TopN acts as a sanity cap on result count.
type SearchOptions struct {
	Threshold *float64
	TopN      int
}

// searchPageSize keeps every underlying query inside a single storage page;
// result sets larger than one page are gathered by iterating offsets
// instead of trusting a single call to return everything.
const searchPageSize = 500

// collectRanked drains a descending-ordered ranked query page by page,
// stopping early once the threshold floor or the top-N cap is reached.
func collectRanked(ctx context.Context, opts SearchOptions, fetch func(ctx context.Context, limit, offset int) ([]entity.ScoredEntity, error)) ([]entity.ScoredEntity, error) {
	results := make([]entity.ScoredEntity, 0)
	offset := 0

	for {
		page, err := fetch(ctx, searchPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, hit := range page {
			if opts.Threshold != nil && hit.Similarity < *opts.Threshold {
				return results, nil
			}
			results = append(results, hit)
			if opts.TopN > 0 && len(results) >= opts.TopN {
				return results, nil
			}
		}

		if len(page) < searchPageSize {
			return results, nil
		}
		offset += searchPageSize
	}
}
