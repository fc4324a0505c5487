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

import "math"

const (
	ispraDatastoreURL = "https://dati.isprambiente.it/api/3/action/datastore_search"
	licenseCCBY       = "CC BY 4.0"
)

// DefaultSources returns the built-in catalog in routing order:
// ISPRA, then EMODnet, then Copernicus.
func DefaultSources() []Source {
	return []Source{
		{
			ID:              "ispra_rmn",
			Name:            "Rete Mareografica Nazionale ISPRA",
			NameEn:          "ISPRA National Tide Gauge Network",
			BaseURL:         ispraDatastoreURL,
			APIType:         "REST",
			RateLimit:       1000,
			Parameters:      []string{"sea_level", "tide_height", "atmospheric_pressure"},
			Regions:         []string{"Adriatico", "Tirreno", "Ionio", "Ligure", "Sardegna", "Sicilia"},
			UpdateFrequency: "realtime",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "ispra_ron",
			Name:            "Rete Ondametrica Nazionale ISPRA",
			NameEn:          "ISPRA National Wave Network",
			BaseURL:         ispraDatastoreURL,
			APIType:         "REST",
			RateLimit:       1000,
			Parameters:      []string{"wave_height", "wave_period", "wave_direction", "sea_temperature"},
			Regions:         []string{"Adriatico", "Tirreno", "Ionio", "Ligure"},
			UpdateFrequency: "hourly",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "ispra_water_quality",
			Name:            "Qualità Acque Costiere ISPRA",
			NameEn:          "ISPRA Coastal Water Quality",
			BaseURL:         ispraDatastoreURL,
			APIType:         "REST",
			RateLimit:       1000,
			Parameters:      []string{"ph", "dissolved_oxygen", "turbidity", "chlorophyll", "temperature"},
			Regions:         []string{"Italia"},
			UpdateFrequency: "weekly",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "emodnet_chemistry",
			Name:            "EMODnet Chemistry",
			NameEn:          "EMODnet Chemistry",
			BaseURL:         "https://www.emodnet-chemistry.eu/products/catalogue",
			APIType:         "REST",
			RateLimit:       600,
			Parameters:      []string{"nutrients", "ph", "oxygen", "chlorophyll", "temperature", "salinity"},
			Regions:         []string{"Mediterranean", "Adriatic", "Tyrrhenian", "Ionian"},
			UpdateFrequency: "daily",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "emodnet_physics",
			Name:            "EMODnet Physics",
			NameEn:          "EMODnet Physics",
			BaseURL:         "https://www.emodnet-physics.eu/api",
			APIType:         "REST",
			RateLimit:       600,
			Parameters:      []string{"temperature", "salinity", "currents", "waves", "sea_level"},
			Regions:         []string{"Mediterranean"},
			UpdateFrequency: "realtime",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "emodnet_biology",
			Name:            "EMODnet Biology",
			NameEn:          "EMODnet Biology",
			BaseURL:         "https://www.emodnet-biology.eu/api",
			APIType:         "REST",
			RateLimit:       600,
			Parameters:      []string{"species_occurrence", "abundance", "biomass", "biodiversity_indices"},
			Regions:         []string{"Mediterranean"},
			UpdateFrequency: "weekly",
			DataFormat:      "JSON",
			License:         licenseCCBY,
		},
		{
			ID:              "copernicus_mediterranean",
			Name:            "Copernicus Mediterranean Sea",
			NameEn:          "Copernicus Mediterranean Sea Analysis and Forecast",
			BaseURL:         "https://data.marine.copernicus.eu/api",
			APIType:         "REST",
			AuthRequired:    true,
			RateLimit:       100,
			Parameters:      []string{"temperature", "salinity", "chlorophyll", "currents", "ssh"},
			Regions:         []string{"Mediterranean"},
			UpdateFrequency: "daily",
			DataFormat:      "NetCDF",
			License:         "Copernicus License",
		},
	}
}

var parameterUnits = map[string]string{
	"temperature":      "°C",
	"sea_temperature":  "°C",
	"ph":               "",
	"dissolved_oxygen": "mg/L",
	"chlorophyll":      "µg/L",
	"salinity":         "PSU",
	"wave_height":      "m",
	"sea_level":        "m",
	"turbidity":        "NTU",
	"nutrients":        "µmol/L",
}

// Unit returns the standard unit for a parameter, or "unit" when unknown.
func Unit(parameter string) string {
	if u, ok := parameterUnits[parameter]; ok {
		return u
	}
	return "unit"
}

// plausibleRanges bound synthesized values per parameter.
var plausibleRanges = map[string][2]float64{
	"temperature":      {10, 28},
	"sea_temperature":  {10, 28},
	"chlorophyll":      {0.1, 5.0},
	"wave_height":      {0.2, 3.0},
	"ph":               {7.8, 8.3},
	"salinity":         {35, 39},
	"dissolved_oxygen": {4, 8},
	"oxygen":           {4, 8},
}

func plausibleRange(parameter string) (lo, hi float64) {
	if r, ok := plausibleRanges[parameter]; ok {
		return r[0], r[1]
	}
	return 0, 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
