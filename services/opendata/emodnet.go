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
	"fmt"
	"time"
)

const emodnetDemoPoints = 15

// loadEMODnet serves EMODnet sources. The network publishes catalogue
// products rather than a per-parameter query API, so readings are
// synthesized and tagged as demo data.
func (g *Gateway) loadEMODnet(_ context.Context, src Source, q DataQuery) DataResponse {
	now := g.clock.Now()
	lo, hi := plausibleRange(q.Parameter)
	span := hi - lo
	base := lo + g.rand.Float64()*span

	records := make([]EMODnetRecord, 0, emodnetDemoPoints)
	for i := 0; i < emodnetDemoPoints; i++ {
		records = append(records, EMODnetRecord{
			Time:      now.Add(-time.Duration(i) * 12 * time.Hour),
			Value:     round2(base + (g.rand.Float64()-0.5)*span*0.05),
			Latitude:  round2(40.0 + g.rand.Float64()*5),
			Longitude: round2(12.0 + g.rand.Float64()*8),
			Depth:     round2(g.rand.Float64() * 100),
			Parameter: q.Parameter,
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
			Citation:  fmt.Sprintf("%s - EMODnet (%d) - Demo Mode", src.NameEn, now.Year()),
			License:   src.License,
			URL:       src.BaseURL,
			Note:      "Mock data for demonstration - EMODnet products are not queryable per parameter",
		},
		Success: true,
	}
}
