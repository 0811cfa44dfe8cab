package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds configuration for the catalog.
type Config struct {
	// Store persists the records.
	Store Store

	// Logger for catalog operations.
	Logger zerolog.Logger
}

// Catalog is the in-memory set of known cities, loaded from its store at
// startup and refreshed explicitly with Reload.
type Catalog struct {
	store  Store
	logger zerolog.Logger

	mu      sync.RWMutex
	records []CityRecord
	index   map[string]int
}

// New creates an empty catalog. Call Reload to load the stored records.
func New(cfg Config) *Catalog {
	return &Catalog{
		store:  cfg.Store,
		logger: cfg.Logger,
		index:  make(map[string]int),
	}
}

// Open creates a catalog and loads its stored records.
func Open(cfg Config) (*Catalog, error) {
	c := New(cfg)
	if _, err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the in-memory records with the stored ones and returns the
// number of records loaded. A missing store loads as empty. A corrupt store
// is logged and loads as empty.
func (c *Catalog) Reload() (int, error) {
	records, err := c.store.Load()
	if err != nil {
		if !errors.Is(err, ErrCorruptStore) {
			return 0, err
		}
		c.logger.Warn().Err(err).Msg("catalog store is corrupt, starting with an empty catalog")
		records = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(records)

	c.logger.Debug().Int("records", len(c.records)).Msg("catalog loaded")
	return len(c.records), nil
}

// Records returns a copy of all records in catalog order.
func (c *Catalog) Records() []CityRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]CityRecord, len(c.records))
	copy(records, c.records)
	return records
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Contains reports whether the catalog holds the given city, compared case-insensitively.
func (c *Catalog) Contains(city, state, country string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[recordKey(city, state, country)]
	return ok
}

// AddIfAbsent appends the city and persists the catalog unless an equal
// record already exists. It reports whether a record was added.
func (c *Catalog) AddIfAbsent(city, state, country string) (bool, error) {
	record := NewCityRecord(city, state, country)
	key := record.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; ok {
		return false, nil
	}

	c.records = append(c.records, record)
	c.index[key] = len(c.records) - 1

	if err := c.store.Save(c.records); err != nil {
		c.records = c.records[:len(c.records)-1]
		delete(c.index, key)
		return false, fmt.Errorf("save catalog: %w", err)
	}

	c.logger.Info().
		Str("city", city).
		Str("state", state).
		Str("country", country).
		Msg("city added to catalog")
	return true, nil
}

// Replace swaps the catalog content for the given records, dropping
// duplicates, and persists the result.
func (c *Catalog) Replace(records []CityRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.records
	c.setLocked(records)

	if err := c.store.Save(c.records); err != nil {
		c.setLocked(previous)
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// setLocked rebuilds records and index. Callers must hold the write lock.
func (c *Catalog) setLocked(records []CityRecord) {
	deduped := make([]CityRecord, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		r.SearchString = SearchString(r.City, r.State, r.Country)
		key := r.Key()
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, r)
	}
	c.records = deduped
	c.index = index
}
