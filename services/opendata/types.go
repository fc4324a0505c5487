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
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Source Descriptors
// =============================================================================

// Family identifies the integration backing a source.
type Family string

const (
	FamilyISPRA      Family = "ispra"
	FamilyEMODnet    Family = "emodnet"
	FamilyCopernicus Family = "copernicus"
)

// FamilyOf selects the family from the source id prefix. The second
// return value is false for ids with no known prefix.
func FamilyOf(sourceID string) (Family, bool) {
	switch {
	case strings.HasPrefix(sourceID, "ispra_"):
		return FamilyISPRA, true
	case strings.HasPrefix(sourceID, "emodnet_"):
		return FamilyEMODnet, true
	case strings.HasPrefix(sourceID, "copernicus_"):
		return FamilyCopernicus, true
	default:
		return "", false
	}
}

// Source describes one open-data endpoint.
type Source struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NameEn          string   `json:"name_en"`
	BaseURL         string   `json:"base_url"`
	APIType         string   `json:"api_type"`
	AuthRequired    bool     `json:"auth_required"`
	RateLimit       int      `json:"rate_limit"` // requests per minute
	Parameters      []string `json:"parameters"`
	Regions         []string `json:"regions"`
	UpdateFrequency string   `json:"update_frequency"`
	DataFormat      string   `json:"data_format"`
	License         string   `json:"license"`
}

// Supports reports whether the source declares the parameter.
func (s Source) Supports(parameter string) bool {
	for _, p := range s.Parameters {
		if p == parameter {
			return true
		}
	}
	return false
}

// =============================================================================
// Query / Response Contract
// =============================================================================

// DataQuery names a source and parameter with optional filters.
// Dates are YYYY-MM-DD; empty means unbounded.
type DataQuery struct {
	Source    string `json:"source" binding:"required"`
	Parameter string `json:"parameter" binding:"required"`
	Location  string `json:"location,omitempty"`
	DateFrom  string `json:"date_from,omitempty"`
	DateTo    string `json:"date_to,omitempty"`
}

// CacheKey is source_parameter_(location|all)_(dateFrom|recent).
func (q DataQuery) CacheKey() string {
	location := q.Location
	if location == "" {
		location = "all"
	}
	from := q.DateFrom
	if from == "" {
		from = "recent"
	}
	return fmt.Sprintf("%s_%s_%s_%s", q.Source, q.Parameter, location, from)
}

// Quality labels carried in Metadata.Quality.
const (
	QualityDemo             = "demo"
	QualitySimulated        = "simulated"
	QualitySatelliteDerived = "satellite_derived"
	QualityOfficial         = "official"
	QualityError            = "error"
)

// Metadata describes where a DataResponse came from.
type Metadata struct {
	QueryTime time.Time `json:"query_time"`
	DataCount int       `json:"data_count"`
	Quality   string    `json:"quality"`
	Citation  string    `json:"citation"`
	License   string    `json:"license"`
	URL       string    `json:"url,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// DataResponse is returned by every gateway call, success or failure.
type DataResponse struct {
	Source    string    `json:"source"`
	Parameter string    `json:"parameter"`
	Readings  []Reading `json:"data"`
	Metadata  Metadata  `json:"metadata"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Degraded reports whether the readings were synthesized locally.
func (r DataResponse) Degraded() bool {
	return r.Metadata.Quality == QualityDemo || r.Metadata.Quality == QualitySimulated
}

func (r DataResponse) clone() DataResponse {
	out := r
	out.Readings = make([]Reading, len(r.Readings))
	copy(out.Readings, r.Readings)
	return out
}

// =============================================================================
// Readings
// =============================================================================

// Reading is the normalized data point every family converges on.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Location  string    `json:"location,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Depth     *float64  `json:"depth,omitempty"`
	Station   string    `json:"station,omitempty"`
	Quality   string    `json:"quality"`
	Family    Family    `json:"family"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r Reading) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// record is implemented by each family's raw payload.
type record interface {
	normalize(unit string) Reading
}

// ISPRARecord is a station measurement from the national agency.
type ISPRARecord struct {
	Time     time.Time
	Value    float64
	Station  string
	Location string
	Quality  string
}

func (r ISPRARecord) normalize(unit string) Reading {
	return Reading{
		Timestamp: r.Time,
		Value:     r.Value,
		Unit:      unit,
		Location:  r.Location,
		Station:   r.Station,
		Quality:   r.Quality,
		Family:    FamilyISPRA,
	}
}

// EMODnetRecord is a geo-located sample from the European network.
type EMODnetRecord struct {
	Time      time.Time
	Value     float64
	Latitude  float64
	Longitude float64
	Depth     float64
	Parameter string
}

func (r EMODnetRecord) normalize(unit string) Reading {
	lat, lon, depth := r.Latitude, r.Longitude, r.Depth
	return Reading{
		Timestamp: r.Time,
		Value:     r.Value,
		Unit:      unit,
		Latitude:  &lat,
		Longitude: &lon,
		Depth:     &depth,
		Quality:   QualityDemo,
		Family:    FamilyEMODnet,
	}
}

// SatelliteRecord is a gridded value from the satellite service.
type SatelliteRecord struct {
	Time      time.Time
	Value     float64
	Latitude  float64
	Longitude float64
	Depth     float64
	Location  string
	Quality   string
}

func (r SatelliteRecord) normalize(unit string) Reading {
	lat, lon, depth := r.Latitude, r.Longitude, r.Depth
	location := r.Location
	if location == "" {
		location = fmt.Sprintf("%.2f, %.2f", lat, lon)
	}
	return Reading{
		Timestamp: r.Time,
		Value:     r.Value,
		Unit:      unit,
		Location:  location,
		Latitude:  &lat,
		Longitude: &lon,
		Depth:     &depth,
		Quality:   r.Quality,
		Family:    FamilyCopernicus,
	}
}

func normalizeAll[T record](records []T, unit string) []Reading {
	out := make([]Reading, 0, len(records))
	for _, r := range records {
		out = append(out, r.normalize(unit))
	}
	return out
}
