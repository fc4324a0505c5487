// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package opendata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// steppingRand walks [0,1) in fixed increments so synthesized values are
// reproducible.
type steppingRand struct {
	mu sync.Mutex
	v  float64
}

func (r *steppingRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.v += 0.137
	if r.v >= 1 {
		r.v -= 1
	}
	return r.v
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingRecorder) RecordFetch(_ string, outcome Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *recordingRecorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func newTestGateway(clock *fakeClock, opts ...Option) *Gateway {
	base := []Option{WithClock(clock), WithRand(&steppingRand{})}
	return NewGateway(append(base, opts...)...)
}

func sourceByID(t *testing.T, id string) Source {
	t.Helper()
	for _, s := range DefaultSources() {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("source %s not in catalog", id)
	return Source{}
}

// =============================================================================
// Routing
// =============================================================================

func TestFetch_KnownSourceReturnsDemoReadings(t *testing.T) {
	clock := newFakeClock()
	gw := newTestGateway(clock)

	resp := gw.Fetch(context.Background(), DataQuery{Source: "ispra_water_quality", Parameter: "temperature"})

	require.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "ispra_water_quality", resp.Source)
	assert.Equal(t, QualityDemo, resp.Metadata.Quality)
	assert.Equal(t, 10, resp.Metadata.DataCount)
	require.Len(t, resp.Readings, 10)
	assert.Contains(t, resp.Metadata.Citation, "Demo Mode")

	for _, r := range resp.Readings {
		assert.Equal(t, "°C", r.Unit)
		assert.Equal(t, "Mediterraneo", r.Location)
		assert.Equal(t, FamilyISPRA, r.Family)
		assert.InDelta(t, 19.0, r.Value, 10.0)
	}
	assert.True(t, resp.Degraded())
}

func TestFetch_UnknownSource(t *testing.T) {
	gw := newTestGateway(newFakeClock())

	resp := gw.Fetch(context.Background(), DataQuery{Source: "noaa_buoys", Parameter: "temperature"})

	assert.False(t, resp.Success)
	assert.Equal(t, ErrMsgSourceNotFound, resp.Error)
	assert.NotNil(t, resp.Readings)
	assert.Empty(t, resp.Readings)
	assert.Equal(t, QualityError, resp.Metadata.Quality)
}

func TestFetch_UnknownFamily(t *testing.T) {
	gw := newTestGateway(newFakeClock(), WithSources([]Source{
		{ID: "noaa_buoys", RateLimit: 10, Parameters: []string{"temperature"}},
	}))

	resp := gw.Fetch(context.Background(), DataQuery{Source: "noaa_buoys", Parameter: "temperature"})

	assert.False(t, resp.Success)
	assert.Equal(t, ErrMsgUnknownFamily, resp.Error)
}

func TestFetch_EMODnetReadingsCarryCoordinates(t *testing.T) {
	gw := newTestGateway(newFakeClock())

	resp := gw.Fetch(context.Background(), DataQuery{Source: "emodnet_physics", Parameter: "salinity"})

	require.True(t, resp.Success)
	require.Len(t, resp.Readings, 15)
	for _, r := range resp.Readings {
		require.True(t, r.HasCoordinates())
		assert.GreaterOrEqual(t, *r.Latitude, 40.0)
		assert.LessOrEqual(t, *r.Latitude, 45.0)
		assert.GreaterOrEqual(t, *r.Longitude, 12.0)
		assert.LessOrEqual(t, *r.Longitude, 20.0)
		assert.Equal(t, "PSU", r.Unit)
	}
}

func TestSource_Lookup(t *testing.T) {
	gw := newTestGateway(newFakeClock())

	src, err := gw.Source("emodnet_biology")
	require.NoError(t, err)
	assert.Equal(t, "EMODnet Biology", src.Name)

	_, err = gw.Source("missing")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		id   string
		want Family
		ok   bool
	}{
		{"ispra_rmn", FamilyISPRA, true},
		{"emodnet_physics", FamilyEMODnet, true},
		{"copernicus_mediterranean", FamilyCopernicus, true},
		{"noaa_buoys", "", false},
		{"ispra", "", false},
	}
	for _, tt := range tests {
		got, ok := FamilyOf(tt.id)
		assert.Equal(t, tt.want, got, tt.id)
		assert.Equal(t, tt.ok, ok, tt.id)
	}
}

// =============================================================================
// Cache
// =============================================================================

func TestFetch_CachedWithinTTL(t *testing.T) {
	clock := newFakeClock()
	gw := newTestGateway(clock)
	q := DataQuery{Source: "ispra_water_quality", Parameter: "temperature", Location: "Tirreno"}

	first := gw.Fetch(context.Background(), q)
	clock.Advance(time.Minute)
	second := gw.Fetch(context.Background(), q)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), gw.CacheStats().Hits)

	clock.Advance(5 * time.Minute)
	third := gw.Fetch(context.Background(), q)

	assert.NotEqual(t, first.Metadata.QueryTime, third.Metadata.QueryTime)
	assert.Equal(t, int64(1), gw.CacheStats().Hits)
}

func TestFetch_CachedResponseIsIsolatedFromCallers(t *testing.T) {
	gw := newTestGateway(newFakeClock())
	q := DataQuery{Source: "ispra_rmn", Parameter: "sea_level"}

	first := gw.Fetch(context.Background(), q)
	first.Readings[0].Value = -999

	second := gw.Fetch(context.Background(), q)
	assert.NotEqual(t, -999.0, second.Readings[0].Value)
}

func TestFetch_CacheCapacityEvictsOldestInsertion(t *testing.T) {
	gw := newTestGateway(newFakeClock(), WithCache(time.Hour, 2))
	ctx := context.Background()

	for _, p := range []string{"ph", "turbidity", "chlorophyll"} {
		gw.Fetch(ctx, DataQuery{Source: "ispra_water_quality", Parameter: p})
	}

	stats := gw.CacheStats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)

	// "ph" was inserted first and is gone; "chlorophyll" is still served.
	gw.Fetch(ctx, DataQuery{Source: "ispra_water_quality", Parameter: "chlorophyll"})
	assert.Equal(t, int64(1), gw.CacheStats().Hits)
	gw.Fetch(ctx, DataQuery{Source: "ispra_water_quality", Parameter: "ph"})
	assert.Equal(t, int64(1), gw.CacheStats().Hits)
}

func TestDataQuery_CacheKey(t *testing.T) {
	assert.Equal(t, "ispra_rmn_sea_level_all_recent",
		DataQuery{Source: "ispra_rmn", Parameter: "sea_level"}.CacheKey())
	assert.Equal(t, "ispra_rmn_sea_level_Adriatico_2025-01-01",
		DataQuery{Source: "ispra_rmn", Parameter: "sea_level", Location: "Adriatico", DateFrom: "2025-01-01"}.CacheKey())
}

// =============================================================================
// Rate Limiting
// =============================================================================

func TestFetch_RateLimitPerSource(t *testing.T) {
	clock := newFakeClock()
	gw := newTestGateway(clock, WithSources([]Source{
		{ID: "ispra_test", RateLimit: 2, Parameters: []string{"ph"}},
		{ID: "emodnet_test", RateLimit: 2, Parameters: []string{"ph"}},
	}))
	ctx := context.Background()
	q := DataQuery{Source: "ispra_test", Parameter: "ph"}

	assert.True(t, gw.Fetch(ctx, q).Success)
	assert.True(t, gw.Fetch(ctx, q).Success)

	limited := gw.Fetch(ctx, q)
	assert.False(t, limited.Success)
	assert.Equal(t, ErrMsgRateLimited, limited.Error)

	// Other sources have their own budget.
	assert.True(t, gw.Fetch(ctx, DataQuery{Source: "emodnet_test", Parameter: "ph"}).Success)

	clock.Advance(60 * time.Second)
	assert.True(t, gw.Fetch(ctx, q).Success)
}

func TestFetch_RateLimitHoldsForWholeWindow(t *testing.T) {
	clock := newFakeClock()
	gw := newTestGateway(clock, WithSources([]Source{
		{ID: "ispra_test", RateLimit: 2, Parameters: []string{"ph"}},
	}))
	ctx := context.Background()
	q := DataQuery{Source: "ispra_test", Parameter: "ph"}

	require.True(t, gw.Fetch(ctx, q).Success)
	require.True(t, gw.Fetch(ctx, q).Success)

	clock.Advance(40 * time.Second)
	limited := gw.Fetch(ctx, q)
	assert.False(t, limited.Success, "no budget comes back before the window closes")
	assert.Equal(t, ErrMsgRateLimited, limited.Error)

	clock.Advance(19 * time.Second)
	assert.False(t, gw.Fetch(ctx, q).Success)

	clock.Advance(time.Second)
	assert.True(t, gw.Fetch(ctx, q).Success)
}

func TestLimiterSet_Windows(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		calls []time.Duration // offsets from start
		want  []bool
	}{
		{
			name:  "limit then reject",
			calls: []time.Duration{0, time.Second, 2 * time.Second, 59 * time.Second},
			want:  []bool{true, true, true, false},
		},
		{
			name:  "window opens at the first call",
			calls: []time.Duration{0, 30 * time.Second, 60 * time.Second, 61 * time.Second, 62 * time.Second, 63 * time.Second},
			want:  []bool{true, true, true, true, true, false},
		},
		{
			name:  "next window starts after expiry, not on a grid",
			calls: []time.Duration{0, 0, 0, 90 * time.Second, 90 * time.Second, 90 * time.Second, 149 * time.Second, 150 * time.Second},
			want:  []bool{true, true, true, true, true, true, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newLimiterSet()
			for i, offset := range tt.calls {
				got := set.allow("ispra_rmn", 3, start.Add(offset))
				assert.Equal(t, tt.want[i], got, "call %d at +%s", i, offset)
			}
		})
	}
}

func TestLimiterSet_ZeroLimitIsUnlimited(t *testing.T) {
	set := newLimiterSet()
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.True(t, set.allow("open", 0, now))
	}
}

// =============================================================================
// Fan-out
// =============================================================================

func TestFetchAll_OnlySuccessfulInCatalogOrder(t *testing.T) {
	sources := append(DefaultSources(), Source{ID: "noaa_buoys", RateLimit: 10, Parameters: []string{"temperature"}})
	gw := newTestGateway(newFakeClock(), WithSources(sources))

	responses := gw.FetchAll(context.Background(), "temperature", "")

	var ids []string
	for _, r := range responses {
		assert.True(t, r.Success)
		ids = append(ids, r.Source)
	}
	assert.Equal(t, []string{
		"ispra_water_quality",
		"emodnet_chemistry",
		"emodnet_physics",
		"copernicus_mediterranean",
	}, ids)
}

func TestFetchMany_PreservesOrder(t *testing.T) {
	gw := newTestGateway(newFakeClock())

	responses := gw.FetchMany(context.Background(), []DataQuery{
		{Source: "emodnet_biology", Parameter: "biomass"},
		{Source: "missing", Parameter: "ph"},
		{Source: "ispra_ron", Parameter: "wave_height"},
	})

	require.Len(t, responses, 3)
	assert.Equal(t, "emodnet_biology", responses[0].Source)
	assert.False(t, responses[1].Success)
	assert.Equal(t, "ispra_ron", responses[2].Source)
	assert.Len(t, Successful(responses), 2)
}

func TestHealthCheck_AllDemoSourcesHealthy(t *testing.T) {
	gw := newTestGateway(newFakeClock())

	health := gw.HealthCheck(context.Background())

	assert.Len(t, health, len(DefaultSources()))
	for id, ok := range health {
		assert.True(t, ok, id)
	}
}

func TestFetch_RecordsOutcomes(t *testing.T) {
	rec := &recordingRecorder{}
	gw := newTestGateway(newFakeClock(), WithRecorder(rec))
	ctx := context.Background()
	q := DataQuery{Source: "ispra_rmn", Parameter: "sea_level"}

	gw.Fetch(ctx, q)
	gw.Fetch(ctx, q)
	gw.Fetch(ctx, DataQuery{Source: "missing", Parameter: "x"})

	assert.Equal(t, []Outcome{OutcomeDegraded, OutcomeCacheHit, OutcomeError}, rec.all())
}

// =============================================================================
// Copernicus
// =============================================================================

func copernicusAt(t *testing.T, baseURL string) []Source {
	src := sourceByID(t, "copernicus_mediterranean")
	src.BaseURL = baseURL
	return []Source{src}
}

func TestFetchCopernicus_NoKeySimulates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gw := newTestGateway(newFakeClock(), WithSources(copernicusAt(t, srv.URL)))

	resp := gw.Fetch(context.Background(), DataQuery{Source: "copernicus_mediterranean", Parameter: "temperature"})

	require.True(t, resp.Success)
	assert.Equal(t, QualitySimulated, resp.Metadata.Quality)
	assert.Equal(t, "Copernicus Marine Service (Mock Data)", resp.Metadata.Citation)
	assert.Equal(t, "Demo License", resp.Metadata.License)
	require.Len(t, resp.Readings, 1)
	assert.Equal(t, "Mediterranean Sea", resp.Readings[0].Location)
	assert.Equal(t, 40.0, *resp.Readings[0].Latitude)
	assert.Equal(t, 15.0, *resp.Readings[0].Longitude)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetchCopernicus_ExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dataset/extract", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var body copernicusExtractRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, copernicusDataset, body.DatasetID)
		assert.Equal(t, []string{"temperature"}, body.Variables)
		assert.Equal(t, [2]string{"2025-06-08", "2025-06-15"}, body.TimeRange)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"time":"2025-06-14T00:00:00Z","temperature":18.5,"lat":41.1,"lon":12.3,"depth":1.5},
			{"time":"2025-06-15T00:00:00Z","temperature":"19.25","lat":41.1,"lon":12.3,"depth":1.5}
		]}`))
	}))
	defer srv.Close()

	gw := newTestGateway(newFakeClock(),
		WithSources(copernicusAt(t, srv.URL)),
		WithCopernicusKey(func() string { return "secret-token" }),
	)

	resp := gw.Fetch(context.Background(), DataQuery{Source: "copernicus_mediterranean", Parameter: "temperature"})

	require.True(t, resp.Success)
	assert.Equal(t, QualitySatelliteDerived, resp.Metadata.Quality)
	assert.Contains(t, resp.Metadata.Citation, "Copernicus Marine Service (2025)")
	require.Len(t, resp.Readings, 2)
	assert.Equal(t, 18.5, resp.Readings[0].Value)
	assert.Equal(t, 19.25, resp.Readings[1].Value)
	assert.Equal(t, "41.10, 12.30", resp.Readings[0].Location)
	assert.Equal(t, "satellite", resp.Readings[0].Quality)
	assert.Equal(t, FamilyCopernicus, resp.Readings[0].Family)
	assert.False(t, resp.Degraded())
}

func TestFetchCopernicus_UpstreamFailureFallsBackUncached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := newTestGateway(newFakeClock(),
		WithSources(copernicusAt(t, srv.URL)),
		WithCopernicusKey(func() string { return "secret-token" }),
	)
	q := DataQuery{Source: "copernicus_mediterranean", Parameter: "salinity"}

	resp := gw.Fetch(context.Background(), q)
	require.True(t, resp.Success)
	assert.Equal(t, QualitySimulated, resp.Metadata.Quality)
	require.Len(t, resp.Readings, 1)
	assert.GreaterOrEqual(t, resp.Readings[0].Value, 35.0)
	assert.LessOrEqual(t, resp.Readings[0].Value, 39.0)

	gw.Fetch(context.Background(), q)
	assert.Equal(t, int32(2), hits.Load())
}

// =============================================================================
// ISPRA datastore
// =============================================================================

func TestFetchISPRA_DatastoreRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "res-1", r.URL.Query().Get("resource_id"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "Ancona", r.URL.Query().Get("q"))

		_, _ = w.Write([]byte(`{"success":true,"result":{"records":[
			{"timestamp":"2025-06-14T10:00:00Z","temperature":"17.2","station":"ANC01","location":"Ancona"},
			{"time":"not a date","temperature":1}
		]}}`))
	}))
	defer srv.Close()

	src := sourceByID(t, "ispra_water_quality")
	src.BaseURL = srv.URL
	gw := newTestGateway(newFakeClock(),
		WithSources([]Source{src}),
		WithISPRAResources(map[string]string{"ispra_water_quality/temperature": "res-1"}),
	)

	resp := gw.Fetch(context.Background(), DataQuery{Source: "ispra_water_quality", Parameter: "temperature", Location: "Ancona"})

	require.True(t, resp.Success)
	assert.Equal(t, QualityOfficial, resp.Metadata.Quality)
	assert.Equal(t, "Qualità Acque Costiere ISPRA - ISPRA (2025)", resp.Metadata.Citation)
	require.Len(t, resp.Readings, 1)
	assert.Equal(t, 17.2, resp.Readings[0].Value)
	assert.Equal(t, "ANC01", resp.Readings[0].Station)
	assert.Equal(t, "Ancona", resp.Readings[0].Location)
}

func TestFetchISPRA_DatastoreFailureFallsBackToDemo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	src := sourceByID(t, "ispra_rmn")
	src.BaseURL = srv.URL
	gw := newTestGateway(newFakeClock(),
		WithSources([]Source{src}),
		WithISPRAResources(map[string]string{"ispra_rmn/sea_level": "res-2"}),
	)

	resp := gw.Fetch(context.Background(), DataQuery{Source: "ispra_rmn", Parameter: "sea_level"})

	require.True(t, resp.Success)
	assert.Equal(t, QualityDemo, resp.Metadata.Quality)
	assert.Len(t, resp.Readings, 10)
}
