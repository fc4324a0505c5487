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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

const ispraDemoPoints = 10

// ckanSearchResponse is the envelope of CKAN datastore_search.
type ckanSearchResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []map[string]any `json:"records"`
	} `json:"result"`
}

// loadISPRA queries the CKAN datastore when a resource id is configured
// for the source/parameter pair and falls back to demo data otherwise.
func (g *Gateway) loadISPRA(ctx context.Context, src Source, q DataQuery) DataResponse {
	resourceID := g.ispraResources[src.ID+"/"+q.Parameter]
	if resourceID == "" {
		return g.demoISPRA(src, q)
	}

	records, err := g.searchDatastore(ctx, src, resourceID, q)
	if err != nil {
		g.logger.Warn("ISPRA datastore unavailable, using demo data",
			"source", src.ID, "parameter", q.Parameter, "error", err)
		return g.demoISPRA(src, q)
	}

	readings := normalizeAll(records, Unit(q.Parameter))
	return DataResponse{
		Source:    src.ID,
		Parameter: q.Parameter,
		Readings:  readings,
		Metadata: Metadata{
			QueryTime: g.clock.Now(),
			DataCount: len(readings),
			Quality:   QualityOfficial,
			Citation:  fmt.Sprintf("%s - ISPRA (%d)", src.Name, g.clock.Now().Year()),
			License:   src.License,
			URL:       src.BaseURL,
		},
		Success: true,
	}
}

func (g *Gateway) searchDatastore(ctx context.Context, src Source, resourceID string, q DataQuery) ([]ISPRARecord, error) {
	params := url.Values{}
	params.Set("resource_id", resourceID)
	params.Set("limit", "100")
	if q.Location != "" {
		params.Set("q", q.Location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building datastore request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, cancel, err := g.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("datastore request failed: %w", err)
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("datastore returned HTTP %d", resp.StatusCode)
	}

	var envelope ckanSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding datastore response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("datastore reported success=false")
	}

	var records []ISPRARecord
	for _, raw := range envelope.Result.Records {
		rec, ok := shapeISPRARecord(raw, q.Parameter)
		if ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("datastore returned no usable records")
	}
	return records, nil
}

// shapeISPRARecord converts one loosely typed datastore row. Rows without
// a parsable timestamp or value are skipped.
func shapeISPRARecord(raw map[string]any, parameter string) (ISPRARecord, bool) {
	var ts time.Time
	for _, field := range []string{"timestamp", "time", "data"} {
		if v, ok := raw[field]; ok {
			if t, err := cast.ToTimeE(v); err == nil {
				ts = t
				break
			}
		}
	}
	if ts.IsZero() {
		return ISPRARecord{}, false
	}

	var value float64
	found := false
	for _, field := range []string{parameter, "value", "valore"} {
		if v, ok := raw[field]; ok {
			if f, err := cast.ToFloat64E(v); err == nil {
				value, found = f, true
				break
			}
		}
	}
	if !found {
		return ISPRARecord{}, false
	}

	return ISPRARecord{
		Time:     ts,
		Value:    value,
		Station:  cast.ToString(raw["station"]),
		Location: cast.ToString(raw["location"]),
		Quality:  "good",
	}, true
}

// demoISPRA synthesizes ten daily station readings ending now.
func (g *Gateway) demoISPRA(src Source, q DataQuery) DataResponse {
	now := g.clock.Now()
	lo, hi := plausibleRange(q.Parameter)
	span := hi - lo
	base := lo + g.rand.Float64()*span

	location := q.Location
	if location == "" {
		location = "Mediterraneo"
	}

	records := make([]ISPRARecord, 0, ispraDemoPoints)
	for i := 0; i < ispraDemoPoints; i++ {
		records = append(records, ISPRARecord{
			Time:     now.Add(-time.Duration(i) * 24 * time.Hour),
			Value:    round2(base + (g.rand.Float64()-0.5)*span*0.1),
			Station:  "ISPRA_" + strconv.Itoa(int(g.rand.Float64()*100)),
			Location: location,
			Quality:  "good",
		})
	}

	readings := normalizeAll(records, Unit(q.Parameter))
	return DataResponse{
		Source:    src.ID,
		Parameter: q.Parameter,
		Readings:  readings,
		Metadata: Metadata{
			QueryTime: now,
			DataCount: len(readings),
			Quality:   QualityDemo,
			Citation:  fmt.Sprintf("%s - ISPRA (%d) - Demo Mode", src.Name, now.Year()),
			License:   src.License,
			Note:      "Mock data for demonstration - production requires valid ISPRA resource IDs",
		},
		Success: true,
	}
}
