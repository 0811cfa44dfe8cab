package catalog_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityair/cityair/internal/catalog"
)

func newTestCatalog(t *testing.T) (*catalog.Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities_database.json")
	c, err := catalog.Open(catalog.Config{
		Store:  catalog.NewFileStore(path),
		Logger: zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return c, path
}

func readStored(t *testing.T, path string) []catalog.CityRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []catalog.CityRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestNewCityRecord_DerivesSearchString(t *testing.T) {
	r := catalog.NewCityRecord("São Paulo", "Sao Paulo", "Brazil")
	assert.Equal(t, "são paulo, sao paulo, brazil", r.SearchString)
}

func TestOpen_MissingStoreIsEmpty(t *testing.T) {
	c, _ := newTestCatalog(t)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Records())
}

func TestOpen_CorruptStoreIsEmptyAndLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities_database.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var buf bytes.Buffer
	c, err := catalog.Open(catalog.Config{
		Store:  catalog.NewFileStore(path),
		Logger: zerolog.New(&buf),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, c.Len())
	assert.Contains(t, buf.String(), "catalog store is corrupt")
}

func TestAddIfAbsent_AppendsAndPersists(t *testing.T) {
	c, path := newTestCatalog(t)

	added, err := c.AddIfAbsent("Curitiba", "Parana", "Brazil")
	require.NoError(t, err)
	assert.True(t, added)

	stored := readStored(t, path)
	require.Len(t, stored, 1)
	assert.Equal(t, catalog.NewCityRecord("Curitiba", "Parana", "Brazil"), stored[0])
}

func TestAddIfAbsent_IsIdempotent(t *testing.T) {
	c, path := newTestCatalog(t)

	_, err := c.AddIfAbsent("Springfield", "IL", "USA")
	require.NoError(t, err)

	added, err := c.AddIfAbsent("springfield", "il", "usa")
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, c.Len())
	assert.Len(t, readStored(t, path), 1)
	assert.True(t, c.Contains("SPRINGFIELD", "IL", "USA"))
}

func TestAddIfAbsent_DistinctStatesAreDistinct(t *testing.T) {
	c, _ := newTestCatalog(t)

	_, err := c.AddIfAbsent("Springfield", "IL", "USA")
	require.NoError(t, err)
	added, err := c.AddIfAbsent("Springfield", "MO", "USA")
	require.NoError(t, err)

	assert.True(t, added)
	assert.Equal(t, 2, c.Len())
}

type failingStore struct {
	records []catalog.CityRecord
	saveErr error
}

func (s *failingStore) Load() ([]catalog.CityRecord, error) { return s.records, nil }

func (s *failingStore) Save([]catalog.CityRecord) error { return s.saveErr }

func TestAddIfAbsent_SaveFailureRollsBack(t *testing.T) {
	store := &failingStore{saveErr: errors.New("disk full")}
	c, err := catalog.Open(catalog.Config{Store: store, Logger: zerolog.New(io.Discard)})
	require.NoError(t, err)

	added, err := c.AddIfAbsent("Recife", "Pernambuco", "Brazil")
	require.Error(t, err)
	assert.False(t, added)
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains("Recife", "Pernambuco", "Brazil"))
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	c, path := newTestCatalog(t)

	other := catalog.NewFileStore(path)
	require.NoError(t, other.Save([]catalog.CityRecord{
		catalog.NewCityRecord("Natal", "Rio Grande do Norte", "Brazil"),
	}))
	assert.Equal(t, 0, c.Len())

	n, err := c.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, c.Contains("Natal", "Rio Grande do Norte", "Brazil"))
}

func TestReplace_DeduplicatesAndPersists(t *testing.T) {
	c, path := newTestCatalog(t)

	err := c.Replace([]catalog.CityRecord{
		catalog.NewCityRecord("Salvador", "Bahia", "Brazil"),
		catalog.NewCityRecord("SALVADOR", "bahia", "brazil"),
		{City: "Manaus", State: "Amazonas", Country: "Brazil"},
	})
	require.NoError(t, err)

	records := c.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Salvador", records[0].City)
	assert.Equal(t, "manaus, amazonas, brazil", records[1].SearchString)
	assert.Len(t, readStored(t, path), 2)
}

func TestRecords_ReturnsCopy(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.AddIfAbsent("Belém", "Para", "Brazil")
	require.NoError(t, err)

	records := c.Records()
	records[0].City = "changed"

	assert.Equal(t, "Belém", c.Records()[0].City)
}
