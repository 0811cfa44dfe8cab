package worker_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityair/cityair/internal/airquality"
	"github.com/cityair/cityair/internal/catalog"
	"github.com/cityair/cityair/internal/worker"
)

// fakeLister replays scripted errors per call before answering.
type fakeLister struct {
	mu sync.Mutex

	states      []string
	stateErrs   []error
	cities      map[string][]string
	cityErrs    map[string][]error
	stateCalls  int
	cityCalls   map[string]int
	onCityCalls func(state string)
}

func (f *fakeLister) States(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateCalls++
	if f.stateCalls <= len(f.stateErrs) {
		return nil, f.stateErrs[f.stateCalls-1]
	}
	return f.states, nil
}

func (f *fakeLister) Cities(_ context.Context, state, _ string) ([]string, error) {
	f.mu.Lock()
	if f.cityCalls == nil {
		f.cityCalls = make(map[string]int)
	}
	f.cityCalls[state]++
	n := f.cityCalls[state]
	errs := f.cityErrs[state]
	hook := f.onCityCalls
	f.mu.Unlock()

	if hook != nil {
		hook(state)
	}
	if n <= len(errs) {
		return nil, errs[n-1]
	}
	return f.cities[state], nil
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(catalog.Config{
		Store:  catalog.NewFileStore(filepath.Join(t.TempDir(), "cities_database.json")),
		Logger: zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return c
}

func fastConfig() worker.PopulateConfig {
	return worker.PopulateConfig{
		Country:    "Brazil",
		StateDelay: 0,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
}

func newJob(cfg worker.PopulateConfig, lister worker.Lister, c worker.CatalogWriter) *worker.PopulateJob {
	return worker.NewPopulateJob(worker.PopulateJobConfig{
		Config:  cfg,
		Lister:  lister,
		Catalog: c,
		Logger:  zerolog.New(io.Discard),
	})
}

func TestPopulateJob_FillsCatalog(t *testing.T) {
	lister := &fakeLister{
		states: []string{"Parana", "Pernambuco"},
		cities: map[string][]string{
			"Parana":     {"Curitiba", "Londrina"},
			"Pernambuco": {"Recife"},
		},
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.StatesTotal)
	assert.Equal(t, 2, result.StatesProcessed)
	assert.Equal(t, 3, result.CitiesAdded)
	assert.False(t, result.Partial)

	records := c.Records()
	require.Len(t, records, 3)
	assert.Equal(t, catalog.NewCityRecord("Curitiba", "Parana", "Brazil"), records[0])
	assert.Equal(t, "recife, pernambuco, brazil", records[2].SearchString)
}

func TestPopulateJob_SkipsPopulatedCatalog(t *testing.T) {
	c := newCatalog(t)
	_, err := c.AddIfAbsent("Curitiba", "Parana", "Brazil")
	require.NoError(t, err)

	lister := &fakeLister{}
	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Zero(t, lister.stateCalls)
}

func TestPopulateJob_ForceRepopulates(t *testing.T) {
	c := newCatalog(t)
	_, err := c.AddIfAbsent("Old", "Town", "Brazil")
	require.NoError(t, err)

	cfg := fastConfig()
	cfg.Force = true
	lister := &fakeLister{states: []string{"Parana"}, cities: map[string][]string{"Parana": {"Curitiba"}}}

	_, err = newJob(cfg, lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, c.Contains("Old", "Town", "Brazil"))
	assert.True(t, c.Contains("Curitiba", "Parana", "Brazil"))
}

func TestPopulateJob_RetriesStates(t *testing.T) {
	lister := &fakeLister{
		stateErrs: []error{&airquality.RateLimitError{Attempts: 1}, &airquality.RequestError{Err: errors.New("reset")}},
		states:    []string{"Parana"},
		cities:    map[string][]string{"Parana": {"Curitiba"}},
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, lister.stateCalls)
	assert.Equal(t, 1, result.CitiesAdded)
}

func TestPopulateJob_StatesExhausted(t *testing.T) {
	rateErr := &airquality.RateLimitError{Attempts: 1}
	lister := &fakeLister{stateErrs: []error{rateErr, rateErr, rateErr}}
	c := newCatalog(t)

	_, err := newJob(fastConfig(), lister, c).Run(context.Background())

	var got *airquality.RateLimitError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 3, lister.stateCalls)
	assert.Zero(t, c.Len())
}

func TestPopulateJob_NoStates(t *testing.T) {
	c := newCatalog(t)

	_, err := newJob(fastConfig(), &fakeLister{}, c).Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrNoStates)
}

func TestPopulateJob_SkipsRejectedStateWithoutRetry(t *testing.T) {
	lister := &fakeLister{
		states: []string{"Alagoas", "Parana"},
		cities: map[string][]string{"Parana": {"Curitiba"}},
		cityErrs: map[string][]error{
			"Alagoas": {&airquality.HTTPError{StatusCode: http.StatusBadRequest}},
		},
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, lister.cityCalls["Alagoas"])
	assert.Equal(t, 1, result.StatesSkipped)
	assert.Equal(t, 1, result.StatesProcessed)
	assert.Equal(t, 1, c.Len())
}

func TestPopulateJob_RetriesCitiesThenGivesUpOnState(t *testing.T) {
	statusErr := &airquality.StatusError{Status: "fail", StatusCode: http.StatusOK}
	lister := &fakeLister{
		states: []string{"Bahia", "Parana"},
		cities: map[string][]string{"Bahia": {"Salvador"}, "Parana": {"Curitiba"}},
		cityErrs: map[string][]error{
			"Bahia":  {statusErr, statusErr, statusErr},
			"Parana": {&airquality.RateLimitError{Attempts: 1}},
		},
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, lister.cityCalls["Bahia"])
	assert.Equal(t, 2, lister.cityCalls["Parana"])
	assert.Equal(t, 1, result.StatesFailed)
	assert.Equal(t, 1, result.StatesProcessed)
	assert.False(t, c.Contains("Salvador", "Bahia", "Brazil"))
	assert.True(t, c.Contains("Curitiba", "Parana", "Brazil"))
}

func TestPopulateJob_CancellationSavesPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &fakeLister{
		states: []string{"Parana", "Pernambuco", "Bahia"},
		cities: map[string][]string{
			"Parana":     {"Curitiba"},
			"Pernambuco": {"Recife"},
			"Bahia":      {"Salvador"},
		},
	}
	lister.onCityCalls = func(state string) {
		if state == "Pernambuco" {
			cancel()
		}
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, result.Partial)
	assert.True(t, c.Contains("Curitiba", "Parana", "Brazil"))
	assert.True(t, c.Contains("Recife", "Pernambuco", "Brazil"))
	assert.False(t, c.Contains("Salvador", "Bahia", "Brazil"))
}

func TestPopulateJob_NothingCollectedLeavesCatalog(t *testing.T) {
	lister := &fakeLister{
		states:   []string{"Alagoas"},
		cityErrs: map[string][]error{"Alagoas": {&airquality.HTTPError{StatusCode: http.StatusBadRequest}}},
	}
	c := newCatalog(t)

	result, err := newJob(fastConfig(), lister, c).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.StatesSkipped)
	assert.Zero(t, c.Len())
}

func TestDefaultPopulateConfig(t *testing.T) {
	cfg := worker.DefaultPopulateConfig()

	assert.Equal(t, "Brazil", cfg.Country)
	assert.Equal(t, 60*time.Second, cfg.StateDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.RetryDelay)
	assert.False(t, cfg.Force)
}
