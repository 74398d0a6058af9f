package entity

// ScoredEntity is one ranked similarity-search hit.
type ScoredEntity struct {
	EntityID   string  `json:"entity_id"`
	Similarity float64 `json:"similarity"`
}
