package models

import "github.com/cityair/cityair/internal/catalog"

// AutocompleteResponse is returned by GET /api/autocomplete.
type AutocompleteResponse struct {
	Suggestions []catalog.CityRecord `json:"suggestions"`
}

// ReloadResponse is returned by POST /api/catalog/reload.
type ReloadResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}
