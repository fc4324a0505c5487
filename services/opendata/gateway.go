// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package opendata is the gateway to Italian and European marine open-data
// services.
//
// # Description
//
// Every source belongs to one of three families selected by id prefix:
//
//   - ispra_       national agency (CKAN datastore)
//   - emodnet_     European observation network
//   - copernicus_  satellite service (bearer-token REST)
//
// Each family builds its own requests and shapes its own payloads, and all
// of them converge on DataResponse. When a family cannot reach a real
// endpoint the gateway synthesizes plausible values tagged "demo" or
// "simulated" and still reports success.
//
// # Failure Contract
//
// Fetch never returns an error value and never panics. Unknown sources,
// rate-limit breaches and internal failures come back as DataResponse with
// Success=false and a non-empty Error.
//
// # Thread Safety
//
// Gateway is safe for concurrent use. Limiters and cache carry their own
// locks; concurrent identical cache misses are collapsed with singleflight.
package opendata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("proteo/opendata")

// Error strings carried in DataResponse.Error.
const (
	ErrMsgSourceNotFound = "Source not found"
	ErrMsgRateLimited    = "Rate limit exceeded"
	ErrMsgUnknownFamily  = "Unknown source type"
)

// ErrUnknownSource is returned by Source for ids not in the catalog.
var ErrUnknownSource = errors.New("unknown open data source")

// DefaultRequestTimeout bounds every outbound HTTP request.
const DefaultRequestTimeout = 10 * time.Second

// =============================================================================
// Dependencies
// =============================================================================

// HTTPClient allows injecting fake transports for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock supplies the current time for limiters, cache expiry and demo
// timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RandSource supplies uniform values in [0,1) for synthesized data.
type RandSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Outcome labels a fetch for metrics.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeCacheHit    Outcome = "cache_hit"
	OutcomeDegraded    Outcome = "degraded"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeError       Outcome = "error"
)

// Recorder receives one outcome per Fetch.
type Recorder interface {
	RecordFetch(source string, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) RecordFetch(string, Outcome) {}

// =============================================================================
// Gateway
// =============================================================================

// Gateway routes DataQuery values to the family integrations.
type Gateway struct {
	sources []Source
	index   map[string]int

	httpClient     HTTPClient
	clock          Clock
	rand           RandSource
	recorder       Recorder
	logger         *slog.Logger
	requestTimeout time.Duration

	copernicusKey  func() string
	ispraResources map[string]string

	limiters *limiterSet
	cache    *responseCache
	flight   singleflight.Group

	cacheTTL      time.Duration
	cacheCapacity int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSources replaces the built-in catalog.
func WithSources(sources []Source) Option {
	return func(g *Gateway) { g.sources = sources }
}

// WithHTTPClient injects the transport used for upstream calls.
func WithHTTPClient(c HTTPClient) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithRand injects the random source for synthesized data.
func WithRand(r RandSource) Option {
	return func(g *Gateway) { g.rand = r }
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithRequestTimeout bounds each upstream HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.requestTimeout = d }
}

// WithCopernicusKey provides the satellite-service bearer token lazily.
// An empty return value selects the simulated path.
func WithCopernicusKey(key func() string) Option {
	return func(g *Gateway) { g.copernicusKey = key }
}

// WithISPRAResources maps "source/parameter" to a CKAN resource id.
// Pairs without a resource id are served from demo data.
func WithISPRAResources(resources map[string]string) Option {
	return func(g *Gateway) { g.ispraResources = resources }
}

// WithCache overrides the cache TTL and capacity.
func WithCache(ttl time.Duration, capacity int) Option {
	return func(g *Gateway) {
		g.cacheTTL = ttl
		g.cacheCapacity = capacity
	}
}

// NewGateway creates a gateway over the built-in source catalog.
//
// # Examples
//
//	gw := opendata.NewGateway(
//	    opendata.WithCopernicusKey(secrets.CopernicusKey),
//	    opendata.WithRequestTimeout(5*time.Second),
//	)
//	resp := gw.Fetch(ctx, opendata.DataQuery{Source: "ispra_rmn", Parameter: "sea_level"})
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		sources:        DefaultSources(),
		httpClient:     &http.Client{},
		clock:          systemClock{},
		rand:           globalRand{},
		recorder:       nopRecorder{},
		logger:         slog.Default(),
		requestTimeout: DefaultRequestTimeout,
		copernicusKey:  func() string { return "" },
		cacheTTL:       DefaultCacheTTL,
		cacheCapacity:  DefaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.index = make(map[string]int, len(g.sources))
	for i, s := range g.sources {
		g.index[s.ID] = i
	}
	g.limiters = newLimiterSet()
	g.cache = newResponseCache(g.cacheTTL, g.cacheCapacity)
	return g
}

// Sources returns the catalog in routing order.
func (g *Gateway) Sources() []Source {
	out := make([]Source, len(g.sources))
	copy(out, g.sources)
	return out
}

// Source looks up a descriptor by id.
func (g *Gateway) Source(id string) (Source, error) {
	i, ok := g.index[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	return g.sources[i], nil
}

// SourcesFor returns, in catalog order, the sources declaring parameter.
func (g *Gateway) SourcesFor(parameter string) []Source {
	var out []Source
	for _, s := range g.sources {
		if s.Supports(parameter) {
			out = append(out, s)
		}
	}
	return out
}

// CacheStats reports cache effectiveness.
func (g *Gateway) CacheStats() CacheStats {
	return g.cache.stats()
}

// Fetch executes one query.
//
// # Description
//
// Looks up the source, routes by family prefix and returns the family's
// DataResponse. Unknown ids return "Source not found"; ids with no family
// prefix return "Unknown source type".
//
// # Inputs
//
//   - ctx: Cancels upstream HTTP calls. Demo paths ignore it.
//   - q: The query. Source and Parameter should be set.
//
// # Outputs
//
//   - DataResponse: Always well-formed. Check Success.
func (g *Gateway) Fetch(ctx context.Context, q DataQuery) (resp DataResponse) {
	ctx, span := tracer.Start(ctx, "opendata.Fetch", trace.WithAttributes(
		attribute.String("opendata.source", q.Source),
		attribute.String("opendata.parameter", q.Parameter),
	))
	defer span.End()

	outcome := OutcomeError
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("open data fetch panicked", "source", q.Source, "parameter", q.Parameter, "panic", r)
			resp = g.errorResponse(q.Source, fmt.Sprintf("internal error: %v", r))
			outcome = OutcomeError
		}
		span.SetAttributes(attribute.String("opendata.outcome", string(outcome)))
		g.recorder.RecordFetch(q.Source, outcome)
	}()

	src, err := g.Source(q.Source)
	if err != nil {
		return g.errorResponse(q.Source, ErrMsgSourceNotFound)
	}

	family, ok := FamilyOf(src.ID)
	if !ok {
		return g.errorResponse(q.Source, ErrMsgUnknownFamily)
	}

	switch family {
	case FamilyISPRA:
		resp, outcome = g.fetchCached(ctx, src, q, g.loadISPRA)
	case FamilyEMODnet:
		resp, outcome = g.fetchCached(ctx, src, q, g.loadEMODnet)
	case FamilyCopernicus:
		resp, outcome = g.fetchCopernicus(ctx, src, q)
	}
	return resp
}

// loader produces a response for a cache miss. It must not fail: fallbacks
// to synthesized data happen inside the loader.
type loader func(ctx context.Context, src Source, q DataQuery) DataResponse

// fetchCached applies the shared rate-limit, cache, singleflight sequence.
func (g *Gateway) fetchCached(ctx context.Context, src Source, q DataQuery, load loader) (DataResponse, Outcome) {
	now := g.clock.Now()
	if !g.limiters.allow(src.ID, src.RateLimit, now) {
		g.logger.Warn("open data rate limit exceeded", "source", src.ID, "limit_per_minute", src.RateLimit)
		return g.errorResponse(src.ID, ErrMsgRateLimited), OutcomeRateLimited
	}

	key := q.CacheKey()
	if cached, ok := g.cache.get(key, now); ok {
		return cached, OutcomeCacheHit
	}

	v, _, _ := g.flight.Do(key, func() (any, error) {
		resp := load(ctx, src, q)
		if resp.Success {
			g.cache.set(key, resp, g.clock.Now())
		}
		return resp, nil
	})
	resp := v.(DataResponse).clone()

	if resp.Degraded() {
		return resp, OutcomeDegraded
	}
	return resp, OutcomeSuccess
}

// FetchMany runs queries concurrently and returns every response in query
// order. A failing query never cancels its siblings.
func (g *Gateway) FetchMany(ctx context.Context, queries []DataQuery) []DataResponse {
	results := make([]DataResponse, len(queries))

	var eg errgroup.Group
	for i, q := range queries {
		eg.Go(func() error {
			results[i] = g.Fetch(ctx, q)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// FetchAll queries every source that supports parameter for the last
// seven days and returns only the successful responses, in catalog order.
func (g *Gateway) FetchAll(ctx context.Context, parameter, location string) []DataResponse {
	from, to := g.RecentRange()

	var queries []DataQuery
	for _, s := range g.SourcesFor(parameter) {
		queries = append(queries, DataQuery{
			Source:    s.ID,
			Parameter: parameter,
			Location:  location,
			DateFrom:  from,
			DateTo:    to,
		})
	}
	return Successful(g.FetchMany(ctx, queries))
}

// RecentRange returns the last seven days as YYYY-MM-DD strings.
func (g *Gateway) RecentRange() (from, to string) {
	now := g.clock.Now()
	return now.Add(-7 * 24 * time.Hour).Format(time.DateOnly), now.Format(time.DateOnly)
}

// HealthCheck fetches each source's first parameter and reports success
// per source id.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]bool {
	yesterday := g.clock.Now().Add(-24 * time.Hour).Format(time.DateOnly)

	var queries []DataQuery
	var ids []string
	for _, s := range g.sources {
		if len(s.Parameters) == 0 {
			continue
		}
		ids = append(ids, s.ID)
		queries = append(queries, DataQuery{Source: s.ID, Parameter: s.Parameters[0], DateFrom: yesterday})
	}

	out := make(map[string]bool, len(ids))
	for i, resp := range g.FetchMany(ctx, queries) {
		out[ids[i]] = resp.Success
	}
	return out
}

// Successful filters out failed responses, preserving order.
func Successful(responses []DataResponse) []DataResponse {
	var out []DataResponse
	for _, r := range responses {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gateway) errorResponse(source, msg string) DataResponse {
	return DataResponse{
		Source:    source,
		Parameter: "",
		Readings:  []Reading{},
		Metadata: Metadata{
			QueryTime: g.clock.Now(),
			Quality:   QualityError,
		},
		Success: false,
		Error:   msg,
	}
}

// do sends req with the gateway's request timeout applied.
func (g *Gateway) do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	resp, err := g.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}
