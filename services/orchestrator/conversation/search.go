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
	"math"
	"sort"
	"strings"
	"time"
)

// Score weights for Search.
const (
	similarityWeight = 0.7
	recencyWeight    = 0.2
	confidenceWeight = 0.1

	recencyWindow = 24 * time.Hour

	// patternWindow is how many recent turns the trend patterns inspect.
	patternWindow = 5

	// recurringMentions is the turn count at which a parameter becomes a
	// recurring interest.
	recurringMentions = 3

	maxSuggestions = 3
)

// Pattern texts.
const (
	patternRecurringPrefix = "Interesse ricorrente per "
	patternTechnical       = "Domande sempre più specifiche e tecniche"
	patternProgression     = "Progressione da apprendimento generale a dati specifici"
)

type scoredTurn struct {
	turn  ConversationTurn
	score float64
}

// Search ranks the session's turns against query.
//
// # Description
//
// Each turn scores 0.7 × similarity(query, user+assistant text) +
// 0.2 × recency (linear decay to 0 over 24h) + 0.1 × confidence. Turns
// above the relevance threshold are returned in descending score order,
// truncated to limit. Patterns are computed over the whole history and
// suggestions from the recalled turns and the patterns.
//
// # Outputs
//
//   - SearchResult: Confidence is 0.8 when any turn was recalled, 0.2
//     otherwise, and 0 for an unknown session.
func (s *Store) Search(query, sessionID string, limit int) SearchResult {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return SearchResult{
			RelevantTurns: []ConversationTurn{},
			Patterns:      []string{},
			Suggestions:   []string{},
		}
	}

	relevant := s.rankLocked(query, session.Turns, now, limit)
	patterns := s.patterns(session.Turns)
	suggestions := suggest(relevant, patterns)

	confidence := 0.2
	if len(relevant) > 0 {
		confidence = 0.8
	}
	return SearchResult{
		RelevantTurns: relevant,
		Patterns:      patterns,
		Suggestions:   suggestions,
		Confidence:    confidence,
	}
}

func (s *Store) rankLocked(query string, turns []ConversationTurn, now time.Time, limit int) []ConversationTurn {
	q := s.embedder.Embed(query)

	var scored []scoredTurn
	for _, t := range turns {
		score := s.relevance(q, t, now)
		if score > s.thresholds.Relevance {
			scored = append(scored, scoredTurn{turn: t, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]ConversationTurn, 0, len(scored))
	for _, st := range scored {
		out = append(out, st.turn.clone())
	}
	return out
}

func (s *Store) relevance(query []float64, t ConversationTurn, now time.Time) float64 {
	similarity := s.embedder.Similarity(query, s.embedder.Embed(t.UserMessage+" "+t.AssistantResponse))
	recency := math.Max(0, 1-float64(now.Sub(t.Timestamp))/float64(recencyWindow))
	return similarity*similarityWeight + recency*recencyWeight + t.Context.Confidence*confidenceWeight
}

// patterns derives usage patterns from the full history.
func (s *Store) patterns(turns []ConversationTurn) []string {
	out := []string{}

	params := newCounter()
	for _, t := range turns {
		for _, p := range t.Context.DetectedParameters {
			params.add(p)
		}
	}
	for _, p := range params.order {
		if params.counts[p] >= recurringMentions {
			out = append(out, patternRecurringPrefix+p)
		}
	}

	recent := turns
	if len(recent) > patternWindow {
		recent = recent[len(recent)-patternWindow:]
	}

	if len(recent) >= 3 {
		var sum float64
		for _, t := range recent {
			sum += t.Context.Confidence
		}
		if sum/float64(len(recent)) > s.thresholds.Technical {
			out = append(out, patternTechnical)
		}
	}

	var sawEducation, sawData bool
	for _, t := range recent {
		switch t.Metadata.QueryType {
		case QueryEducation:
			sawEducation = true
		case QueryData:
			sawData = true
		}
	}
	if sawEducation && sawData {
		out = append(out, patternProgression)
	}

	return out
}

// suggest proposes follow-ups from recalled parameters and patterns.
func suggest(relevant []ConversationTurn, patterns []string) []string {
	seen := make(map[string]bool)
	for _, t := range relevant {
		for _, p := range t.Context.DetectedParameters {
			seen[p] = true
		}
	}

	out := []string{}
	if seen["temperatura"] {
		out = append(out, "Potresti essere interessato anche ai dati di salinità correlati")
	}
	if seen["clorofilla"] {
		out = append(out, "I dati di qualità delle acque potrebbero fornire un quadro più completo")
	}
	if seen["posidonia"] {
		out = append(out, "Il progetto MER ha informazioni dettagliate sul ripristino delle praterie")
	}

	for _, p := range patterns {
		if strings.Contains(p, "tecniche") {
			out = append(out, "Potrei fornirti anche link a pubblicazioni scientifiche ISPRA")
		}
		if strings.Contains(p, "apprendimento") {
			out = append(out, "Ci sono curiosità marine affascinanti che potrebbero interessarti")
		}
	}

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// ContextFor renders the memory block the composer prepends to its
// reasoning. It returns "" for an unknown session.
func (s *Store) ContextFor(query, sessionID string) string {
	result := s.Search(query, sessionID, DefaultSearchLimit)
	now := s.clock.Now()

	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	var totalQueries int
	var topics []string
	if ok {
		totalQueries = session.TotalQueries
		topics = append(topics, session.KeyTopics...)
	}
	s.mu.RUnlock()

	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString("MEMORIA CONVERSAZIONALE PROTEO:\n\n")
	fmt.Fprintf(&b, "Sessione corrente: %d domande, temi principali: %s\n\n", totalQueries, strings.Join(topics, ", "))

	if len(result.RelevantTurns) > 0 {
		b.WriteString("CONVERSAZIONI PRECEDENTI RILEVANTI:\n")
		for i, t := range result.RelevantTurns {
			fmt.Fprintf(&b, "%d. %s: \"%s\" → Parametri: %s\n",
				i+1, timeAgo(now, t.Timestamp), t.UserMessage, strings.Join(t.Context.DetectedParameters, ", "))
		}
		b.WriteString("\n")
	}

	if len(result.Patterns) > 0 {
		b.WriteString("PATTERN IDENTIFICATI:\n")
		for _, p := range result.Patterns {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	if len(result.Suggestions) > 0 {
		b.WriteString("SUGGERIMENTI PROATTIVI DA CONSIDERARE:\n")
		for _, sg := range result.Suggestions {
			fmt.Fprintf(&b, "- %s\n", sg)
		}
		b.WriteString("\n")
	}

	b.WriteString("ISTRUZIONI MEMORIA:\n")
	b.WriteString("- Usa il contesto conversazionale per dare risposte più pertinenti e personali\n")
	b.WriteString("- Riferisciti a discussioni precedenti quando appropriato\n")
	b.WriteString("- Suggerisci approfondimenti basati sui pattern identificati\n")
	b.WriteString("- Mantieni coerenza con le informazioni già fornite\n")
	return b.String()
}

// timeAgo renders an Italian relative time.
func timeAgo(now, t time.Time) string {
	mins := math.Round(now.Sub(t).Minutes())
	if mins < 1 {
		return "ora"
	}
	if mins < 60 {
		return fmt.Sprintf("%d min fa", int(mins))
	}
	hours := math.Round(mins / 60)
	if hours < 24 {
		return fmt.Sprintf("%d ore fa", int(hours))
	}
	return fmt.Sprintf("%d giorni fa", int(math.Round(hours/24)))
}
