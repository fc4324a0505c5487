// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"
	"sort"
	"strings"
)

// marineParameters are matched as substrings of the user message. Italian
// and English forms are distinct parameters.
var marineParameters = []string{
	"temperatura", "temperature", "clorofilla", "chlorophyll",
	"onde", "waves", "ph", "salinità", "salinity", "ossigeno", "oxygen",
	"biodiversità", "biodiversity", "posidonia", "pinna", "marea", "tide",
	"inquinamento", "pollution", "qualità", "quality", "conservazione",
}

func detectParameters(message string) []string {
	lower := strings.ToLower(message)
	out := []string{}
	for _, p := range marineParameters {
		if strings.Contains(lower, p) {
			out = append(out, p)
		}
	}
	return out
}

// citationMarkers maps a case-sensitive marker in the assistant text to
// the citation it implies.
var citationMarkers = []struct{ marker, citation string }{
	{"ISPRA", "ISPRA"},
	{"Copernicus", "Copernicus Marine Service"},
	{"EMODnet", "EMODnet"},
	{"MER", "Progetto MER"},
}

func extractCitations(response string) []string {
	out := []string{}
	for _, m := range citationMarkers {
		if strings.Contains(response, m.marker) {
			out = append(out, m.citation)
		}
	}
	return out
}

var queryTypeRules = []struct {
	queryType QueryType
	keywords  []string
}{
	{QueryMERProject, []string{"mer", "progetto", "ripristino"}},
	{QueryNavigation, []string{"come", "dove", "navigare"}},
	{QueryEducation, []string{"curiosità", "impara", "specie"}},
}

func classifyQuery(message string) QueryType {
	lower := strings.ToLower(message)
	for _, rule := range queryTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.queryType
			}
		}
	}
	return QueryData
}

// retentionScore ranks turns for pruning. Confidence dominates; the
// timestamp term only separates turns of equal confidence.
func retentionScore(t ConversationTurn) float64 {
	return t.Context.Confidence + float64(t.Timestamp.UnixMilli())/1e12
}

// prune keeps the limit highest-scoring turns and preserves their
// chronological order.
func prune(turns []ConversationTurn, limit int) []ConversationTurn {
	if len(turns) <= limit {
		return turns
	}

	idx := make([]int, len(turns))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return retentionScore(turns[idx[a]]) > retentionScore(turns[idx[b]])
	})

	keep := idx[:limit]
	sort.Ints(keep)

	out := make([]ConversationTurn, 0, limit)
	for _, i := range keep {
		out = append(out, turns[i])
	}
	return out
}

// counter counts keys and remembers first-seen order for ties.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// ranked returns keys by descending count, first-seen order on ties.
func (c *counter) ranked() []string {
	out := append([]string{}, c.order...)
	sort.SliceStable(out, func(a, b int) bool {
		return c.counts[out[a]] > c.counts[out[b]]
	})
	return out
}

// updateSummary recomputes key topics and the summary sentence.
func updateSummary(session *ConversationSession) {
	params := newCounter()
	topics := newCounter()
	for _, t := range session.Turns {
		for _, p := range t.Context.DetectedParameters {
			params.add(p)
		}
		topics.add(string(t.Metadata.QueryType))
	}

	keyTopics := params.ranked()
	if len(keyTopics) > 5 {
		keyTopics = keyTopics[:5]
	}
	session.KeyTopics = keyTopics

	topParam := "dati marini"
	if len(keyTopics) > 0 {
		topParam = keyTopics[0]
	}
	topType := "generale"
	if ranked := topics.ranked(); len(ranked) > 0 {
		topType = ranked[0]
	}

	session.Summary = fmt.Sprintf("Sessione focalizzata su %s con %d domande di tipo %s",
		topParam, session.TotalQueries, topType)
}
