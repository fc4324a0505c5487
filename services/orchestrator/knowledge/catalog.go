// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

// RelationSpec describes a relation before ids are assigned.
type RelationSpec struct {
	From     string
	To       string
	Type     RelationType
	Strength float64
}

func parameter(id, name, unit string, lo, hi float64, aliases ...string) KnowledgeNode {
	return KnowledgeNode{
		ID:      id,
		Type:    NodeParameter,
		Name:    name,
		Aliases: aliases,
		Properties: map[string]any{
			"unit":       unit,
			"range":      []float64{lo, hi},
			"category":   "physical_chemical",
			"measurable": true,
		},
	}
}

func location(id, name string, lat, lon float64, aliases ...string) KnowledgeNode {
	return KnowledgeNode{
		ID:      id,
		Type:    NodeLocation,
		Name:    name,
		Aliases: aliases,
		Properties: map[string]any{
			"coordinates": []float64{lat, lon},
			"type":        "marine_area",
			"country":     "Italy",
		},
	}
}

func species(id, name, common, status, habitat string, aliases ...string) KnowledgeNode {
	return KnowledgeNode{
		ID:      id,
		Type:    NodeSpecies,
		Name:    name,
		Aliases: aliases,
		Properties: map[string]any{
			"common_name":         common,
			"conservation_status": status,
			"habitat":             habitat,
			"endemic":             true,
		},
	}
}

// MarineNodes returns the Italian marine catalog in match order:
// parameters, locations, species, projects.
func MarineNodes() []KnowledgeNode {
	return []KnowledgeNode{
		parameter("temperature", "Temperatura marina", "°C", 10, 30, "temperatura"),
		parameter("chlorophyll", "Concentrazione clorofilla", "µg/L", 0.1, 10, "clorofilla"),
		parameter("ph", "pH marino", "", 7.8, 8.3),
		parameter("salinity", "Salinità", "PSU", 35, 39),
		parameter("oxygen", "Ossigeno disciolto", "mg/L", 4, 8, "ossigeno"),
		parameter("waves", "Altezza onde", "m", 0.1, 5, "onde"),

		location("adriatico", "Mare Adriatico", 42.5, 15.0),
		location("tirreno", "Mare Tirreno", 40.0, 12.0),
		location("ionio", "Mare Ionio", 38.0, 17.0),
		location("ligure", "Mare Ligure", 43.5, 8.5),
		location("sardegna", "Acque della Sardegna", 40.0, 9.0),
		location("sicilia", "Acque della Sicilia", 37.5, 14.0),

		species("posidonia_oceanica", "Posidonia oceanica", "Posidonia", "protected", "seagrass_meadows", "posidonia"),
		species("pinna_nobilis", "Pinna nobilis", "Nacchera comune", "critically_endangered", "sandy_bottoms", "nacchera"),
		species("cymodocea_nodosa", "Cymodocea nodosa", "Alga marina", "stable", "shallow_waters", "cymodocea"),

		{
			ID:      "mer_project",
			Type:    NodeProject,
			Name:    "Marine Ecosystem Restoration",
			Aliases: []string{"progetto mer"},
			Properties: map[string]any{
				"type":     "restoration",
				"budget":   "400M EUR",
				"duration": "2022-2026",
				"scope":    "regional",
			},
		},
		{
			ID:   "ispra_monitoring",
			Type: NodeProject,
			Name: "ISPRA Marine Monitoring Network",
			Properties: map[string]any{
				"type":     "monitoring",
				"budget":   "undisclosed",
				"duration": "ongoing",
				"scope":    "national",
			},
		},
	}
}

// MarineRelations returns the weighted relations of the marine catalog.
// Order matters: ids are assigned rel_0..rel_N in this order and
// expansion walks relations in this order.
func MarineRelations() []RelationSpec {
	return []RelationSpec{
		{"temperature", "posidonia_oceanica", RelAffects, 0.8},
		{"ph", "pinna_nobilis", RelAffects, 0.9},
		{"oxygen", "posidonia_oceanica", RelAffects, 0.7},
		{"posidonia_oceanica", "adriatico", RelLocatedIn, 0.9},
		{"posidonia_oceanica", "tirreno", RelLocatedIn, 0.8},
		{"pinna_nobilis", "adriatico", RelLocatedIn, 0.6},
		{"mer_project", "posidonia_oceanica", RelStudies, 1.0},
		{"mer_project", "pinna_nobilis", RelStudies, 0.8},
		{"temperature", "chlorophyll", RelCorrelatesWith, 0.6},
		{"ph", "oxygen", RelCorrelatesWith, 0.7},
		{"ispra_monitoring", "temperature", RelMeasures, 1.0},
		{"ispra_monitoring", "chlorophyll", RelMeasures, 1.0},
		{"ispra_monitoring", "ph", RelMeasures, 0.9},
	}
}
