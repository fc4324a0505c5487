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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cast"
)

// copernicusDataset is the Mediterranean physics analysis/forecast product.
const copernicusDataset = "med-analysis-forecast-phy-006-013"

// mediterraneanBBox is [south, north, west, east] in degrees.
var mediterraneanBBox = [4]float64{30, 45, 6, 42}

type copernicusExtractRequest struct {
	DatasetID string     `json:"dataset_id"`
	Variables []string   `json:"variables"`
	Region    [4]float64 `json:"region"`
	TimeRange [2]string  `json:"time_range"`
}

// fetchCopernicus serves the satellite family.
//
// Without an API key the simulated point is returned at once, bypassing
// the limiter and cache. With a key the extract endpoint is called and any
// failure degrades to the simulated point, which is not cached.
func (g *Gateway) fetchCopernicus(ctx context.Context, src Source, q DataQuery) (DataResponse, Outcome) {
	key := g.copernicusKey()
	if key == "" {
		return g.simulatedCopernicus(src, q), OutcomeDegraded
	}

	now := g.clock.Now()
	if !g.limiters.allow(src.ID, src.RateLimit, now) {
		return g.errorResponse(src.ID, ErrMsgRateLimited), OutcomeRateLimited
	}

	cacheKey := q.CacheKey()
	if cached, ok := g.cache.get(cacheKey, now); ok {
		return cached, OutcomeCacheHit
	}

	v, _, _ := g.flight.Do(cacheKey, func() (any, error) {
		resp, err := g.extractCopernicus(ctx, src, q, key)
		if err != nil {
			g.logger.Warn("Copernicus extract failed, using simulated data",
				"source", src.ID, "parameter", q.Parameter, "error", err)
			return g.simulatedCopernicus(src, q), nil
		}
		g.cache.set(cacheKey, resp, g.clock.Now())
		return resp, nil
	})
	resp := v.(DataResponse).clone()

	if resp.Degraded() {
		return resp, OutcomeDegraded
	}
	return resp, OutcomeSuccess
}

func (g *Gateway) extractCopernicus(ctx context.Context, src Source, q DataQuery, key string) (DataResponse, error) {
	from, to := q.DateFrom, q.DateTo
	if from == "" || to == "" {
		from, to = g.RecentRange()
	}

	body, err := json.Marshal(copernicusExtractRequest{
		DatasetID: copernicusDataset,
		Variables: []string{q.Parameter},
		Region:    mediterraneanBBox,
		TimeRange: [2]string{from, to},
	})
	if err != nil {
		return DataResponse{}, fmt.Errorf("encoding extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, src.BaseURL+"/dataset/extract", bytes.NewReader(body))
	if err != nil {
		return DataResponse{}, fmt.Errorf("building extract request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, cancel, err := g.do(ctx, req)
	if err != nil {
		return DataResponse{}, fmt.Errorf("extract request failed: %w", err)
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DataResponse{}, fmt.Errorf("extract returned HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return DataResponse{}, fmt.Errorf("decoding extract response: %w", err)
	}

	records := shapeSatelliteRecords(payload, q.Parameter)
	readings := normalizeAll(records, Unit(q.Parameter))
	now := g.clock.Now()
	return DataResponse{
		Source:    src.ID,
		Parameter: q.Parameter,
		Readings:  readings,
		Metadata: Metadata{
			QueryTime: now,
			DataCount: len(readings),
			Quality:   QualitySatelliteDerived,
			Citation:  fmt.Sprintf("%s - Copernicus Marine Service (%d)", src.NameEn, now.Year()),
			License:   src.License,
			URL:       src.BaseURL,
		},
		Success: true,
	}, nil
}

// shapeSatelliteRecords reads payload["data"] as a list of loosely typed
// records keyed by time, lat, lon, depth and the parameter name.
func shapeSatelliteRecords(payload map[string]any, parameter string) []SatelliteRecord {
	rows, err := cast.ToSliceE(payload["data"])
	if err != nil {
		return nil
	}

	records := make([]SatelliteRecord, 0, len(rows))
	for _, row := range rows {
		fields, err := cast.ToStringMapE(row)
		if err != nil {
			continue
		}
		ts, _ := cast.ToTimeE(fields["time"])
		records = append(records, SatelliteRecord{
			Time:      ts,
			Value:     cast.ToFloat64(fields[parameter]),
			Latitude:  cast.ToFloat64(fields["lat"]),
			Longitude: cast.ToFloat64(fields["lon"]),
			Depth:     cast.ToFloat64(fields["depth"]),
			Quality:   "satellite",
		})
	}
	return records
}

// simulatedCopernicus returns the single-point fallback.
func (g *Gateway) simulatedCopernicus(src Source, q DataQuery) DataResponse {
	now := g.clock.Now()
	lo, hi := plausibleRange(q.Parameter)

	records := []SatelliteRecord{{
		Time:      now.UTC().Truncate(time.Second),
		Value:     round2(lo + g.rand.Float64()*(hi-lo)),
		Latitude:  40.0,
		Longitude: 15.0,
		Location:  "Mediterranean Sea",
		Quality:   QualitySimulated,
	}}
	readings := normalizeAll(records, Unit(q.Parameter))

	return DataResponse{
		Source:    src.ID,
		Parameter: q.Parameter,
		Readings:  readings,
		Metadata: Metadata{
			QueryTime: now,
			DataCount: len(readings),
			Quality:   QualitySimulated,
			Citation:  "Copernicus Marine Service (Mock Data)",
			License:   "Demo License",
		},
		Success: true,
	}
}
