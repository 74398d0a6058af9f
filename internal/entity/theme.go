package entity

// ThemeCatalogEntry is static reference data: a pre-embedded semantic tag.
// The catalog is maintained offline and is read-only to the pipeline.
type ThemeCatalogEntry struct {
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Embedding []float32 `json:"-"`
}

// EntityThemeLink associates an entity with a theme at a given similarity.
// Links for an entity are replaced as a unit by the tagger.
type EntityThemeLink struct {
	EntityID   string  `json:"entity_id"`
	ThemeCode  string  `json:"theme_code"`
	Similarity float64 `json:"similarity"`
}
