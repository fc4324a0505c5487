// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import "strings"

// Publication is an entry of the fixed bibliography the composer cites.
type Publication struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Journal   string   `json:"journal"`
	Year      int      `json:"year"`
	DOI       string   `json:"doi"`
	Abstract  string   `json:"abstract"`
	Relevance float64  `json:"relevance"`
}

// DOIURL returns the resolver URL for the publication.
func (p Publication) DOIURL() string {
	return "https://doi.org/" + p.DOI
}

// Publications returns the built-in bibliography.
func Publications() []Publication {
	return []Publication{
		{
			ID:        "pub_1",
			Title:     "Mediterranean Sea Temperature Trends and Marine Ecosystem Impact",
			Authors:   []string{"Rossi, M.", "Bianchi, L.", "Verdi, G."},
			Journal:   "Marine Environmental Research",
			Year:      2023,
			DOI:       "10.1016/j.marenvres.2023.12345",
			Abstract:  "Analysis of temperature trends in Mediterranean Sea and impacts on marine ecosystems...",
			Relevance: 0.9,
		},
		{
			ID:        "pub_2",
			Title:     "Posidonia oceanica Meadows: Climate Change Adaptation Strategies",
			Authors:   []string{"Marino, A.", "Costa, F."},
			Journal:   "Journal of Marine Biology",
			Year:      2024,
			DOI:       "10.1007/s12345-024-01234-5",
			Abstract:  "Comprehensive study on Posidonia oceanica adaptation to climate change...",
			Relevance: 0.8,
		},
	}
}

// matchPublications keeps, in catalog order, the publications whose title
// or abstract contains any of terms, case-insensitively.
func matchPublications(catalog []Publication, terms []string) []Publication {
	var out []Publication
	for _, p := range catalog {
		title := strings.ToLower(p.Title)
		abstract := strings.ToLower(p.Abstract)
		for _, term := range terms {
			t := strings.ToLower(term)
			if t == "" {
				continue
			}
			if strings.Contains(title, t) || strings.Contains(abstract, t) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
