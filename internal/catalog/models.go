// Package catalog provides the known-city catalog used for autocomplete.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Catalog errors.
var (
	ErrCorruptStore = errors.New("catalog store is corrupt")
)

// CityRecord is a known (city, state, country) tuple.
// SearchString is derived from the other fields and is never set independently.
type CityRecord struct {
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	SearchString string `json:"search_string"`
}

// NewCityRecord creates a CityRecord with its derived search string.
func NewCityRecord(city, state, country string) CityRecord {
	return CityRecord{
		City:         city,
		State:        state,
		Country:      country,
		SearchString: SearchString(city, state, country),
	}
}

// SearchString returns the lowercased "city, state, country" form used for matching.
func SearchString(city, state, country string) string {
	return strings.ToLower(fmt.Sprintf("%s, %s, %s", city, state, country))
}

// Key returns the case-insensitive uniqueness key of the record.
func (r CityRecord) Key() string {
	return recordKey(r.City, r.State, r.Country)
}

func recordKey(city, state, country string) string {
	return strings.ToLower(city) + "\x00" + strings.ToLower(state) + "\x00" + strings.ToLower(country)
}
