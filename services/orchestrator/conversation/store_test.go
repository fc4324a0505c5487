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
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func record(t *testing.T, s *Store, sessionID, user string, confidence float64) ConversationTurn {
	t.Helper()
	turn, err := s.Record(sessionID, RecordInput{
		UserMessage:       user,
		AssistantResponse: "Risposta basata su dati ISPRA e Copernicus",
		SourceNames:       []string{"ISPRA"},
		Confidence:        confidence,
	})
	require.NoError(t, err)
	return turn
}

// =============================================================================
// Sessions and recording
// =============================================================================

func TestOpenSession_IDFormat(t *testing.T) {
	s := NewStore()

	id := s.OpenSession("")

	assert.Regexp(t, regexp.MustCompile(`^session_\d+_[0-9a-z]{9}$`), id)
	assert.Equal(t, 1, s.SessionCount())
}

func TestRecord_UnknownSession(t *testing.T) {
	s := NewStore()

	_, err := s.Record("session_missing", RecordInput{UserMessage: "ciao"})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecord_DerivesContext(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")
	clock.Advance(90 * time.Second)

	turn, err := s.Record(id, RecordInput{
		UserMessage:       "Qual è la temperatura e il pH nel Tirreno?",
		AssistantResponse: "Secondo ISPRA e il progetto MER...",
		SourceNames:       []string{"Qualità Acque Costiere ISPRA"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, []string{"temperatura", "ph"}, turn.Context.DetectedParameters)
	assert.Equal(t, []string{"ISPRA", "Progetto MER"}, turn.Context.Citations)
	assert.Equal(t, []string{"Qualità Acque Costiere ISPRA"}, turn.Context.DataUsed)
	assert.Equal(t, 0.5, turn.Context.Confidence)
	assert.Equal(t, QueryData, turn.Metadata.QueryType)
	assert.Equal(t, int64(90_000), turn.Metadata.SessionDurationMs)

	session, err := s.Session(id)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalQueries)
	assert.Equal(t, []string{"temperatura", "ph"}, session.KeyTopics)
	assert.Equal(t, "Sessione focalizzata su temperatura con 1 domande di tipo data", session.Summary)
}

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		text string
		want QueryType
	}{
		{"Parlami del progetto di ripristino", QueryMERProject},
		{"Dove posso navigare?", QueryNavigation},
		{"Curiosità sulla posidonia", QueryEducation},
		{"Dati di salinità", QueryData},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyQuery(tt.text), tt.text)
	}
}

func TestSession_ReturnsCopy(t *testing.T) {
	s := NewStore()
	id := s.OpenSession("")
	record(t, s, id, "temperatura", 0.6)

	session, err := s.Session(id)
	require.NoError(t, err)
	session.Turns[0].UserMessage = "changed"

	again, err := s.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "temperatura", again.Turns[0].UserMessage)
}

// =============================================================================
// Eviction
// =============================================================================

func TestRecord_EvictionKeepsHighestScoring(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")

	var all []ConversationTurn
	for i := 0; i < 80; i++ {
		clock.Advance(time.Second)
		conf := float64((i*37)%100)/100 + 0.005
		all = append(all, record(t, s, id, "Dati di salinità", conf))
	}

	session, err := s.Session(id)
	require.NoError(t, err)
	require.Len(t, session.Turns, DefaultMaxTurns)
	assert.Equal(t, 80, session.TotalQueries)

	retained := make(map[string]bool)
	minRetained := 10.0
	for i, turn := range session.Turns {
		retained[turn.ID] = true
		if score := retentionScore(turn); score < minRetained {
			minRetained = score
		}
		if i > 0 {
			assert.True(t, session.Turns[i-1].Timestamp.Before(turn.Timestamp), "chronological order")
		}
	}
	for _, turn := range all {
		if !retained[turn.ID] {
			assert.LessOrEqual(t, retentionScore(turn), minRetained)
		}
	}
}

// =============================================================================
// Search
// =============================================================================

func TestSearch_ScoresSimilarityRecencyConfidence(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")
	record(t, s, id, "Qual è la temperatura?", 0.6)

	hit := s.Search("temperatura oggi", id, 5)
	require.Len(t, hit.RelevantTurns, 1)
	assert.Equal(t, 0.8, hit.Confidence)

	// Zero similarity: 0.2 recency + 0.06 confidence stays below 0.3.
	miss := s.Search("ciao", id, 5)
	assert.Empty(t, miss.RelevantTurns)
	assert.Equal(t, 0.2, miss.Confidence)

	// A day later recency is gone but similarity alone clears the bar.
	clock.Advance(25 * time.Hour)
	later := s.Search("temperatura", id, 5)
	assert.Len(t, later.RelevantTurns, 1)
}

func TestSearch_LimitAndOrder(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")
	record(t, s, id, "salinità", 0.4)
	record(t, s, id, "temperatura", 0.9)
	record(t, s, id, "temperatura", 0.5)

	res := s.Search("temperatura", id, 1)

	require.Len(t, res.RelevantTurns, 1)
	assert.Equal(t, 0.9, res.RelevantTurns[0].Context.Confidence)
}

func TestSearch_UnknownSession(t *testing.T) {
	s := NewStore()

	res := s.Search("temperatura", "missing", 5)

	assert.Equal(t, 0.0, res.Confidence)
	assert.Empty(t, res.RelevantTurns)
	assert.Empty(t, res.Patterns)
}

func TestSearch_RecurringInterestNeedsThreeMentions(t *testing.T) {
	s := NewStore(WithClock(newFakeClock()))
	id := s.OpenSession("")
	want := patternRecurringPrefix + "temperatura"

	record(t, s, id, "Qual è la temperatura nel Tirreno?", 0.4)
	record(t, s, id, "E la temperatura in Adriatico?", 0.4)
	assert.NotContains(t, s.Search("temperatura", id, 5).Patterns, want)

	record(t, s, id, "Temperatura della Sicilia", 0.4)
	patterns := s.Search("temperatura", id, 5).Patterns
	count := 0
	for _, p := range patterns {
		if p == want {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSearch_TechnicalPatternAndSuggestion(t *testing.T) {
	s := NewStore(WithClock(newFakeClock()))
	id := s.OpenSession("")
	for i := 0; i < 3; i++ {
		record(t, s, id, "Dati di salinità", 0.9)
	}

	res := s.Search("salinità", id, 5)

	assert.Contains(t, res.Patterns, patternTechnical)
	assert.Contains(t, res.Suggestions, "Potrei fornirti anche link a pubblicazioni scientifiche ISPRA")
}

func TestSearch_ProgressionPattern(t *testing.T) {
	s := NewStore(WithClock(newFakeClock()))
	id := s.OpenSession("")
	record(t, s, id, "Curiosità sulla posidonia", 0.5)
	record(t, s, id, "Dati di salinità", 0.5)

	res := s.Search("posidonia", id, 5)

	assert.Contains(t, res.Patterns, patternProgression)
	assert.NotContains(t, res.Patterns, patternTechnical)
	assert.Contains(t, res.Suggestions, "Il progetto MER ha informazioni dettagliate sul ripristino delle praterie")
}

func TestSuggest_FromPatterns(t *testing.T) {
	const publications = "Potrei fornirti anche link a pubblicazioni scientifiche ISPRA"
	const curiosities = "Ci sono curiosità marine affascinanti che potrebbero interessarti"

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"technical questions", []string{patternTechnical}, []string{publications}},
		{"learning progression", []string{patternProgression}, []string{curiosities}},
		{"both in pattern order", []string{patternTechnical, patternProgression}, []string{publications, curiosities}},
		{"recurring interest only", []string{patternRecurringPrefix + "temperatura"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, suggest(nil, tt.patterns))
		})
	}
}

func TestSuggest_Truncated(t *testing.T) {
	relevant := []ConversationTurn{{Context: TurnContext{DetectedParameters: []string{"temperatura", "clorofilla", "posidonia"}}}}

	got := suggest(relevant, []string{patternTechnical, patternProgression})

	assert.Len(t, got, 3)
	assert.Equal(t, "Potresti essere interessato anche ai dati di salinità correlati", got[0])
}

// =============================================================================
// Context block
// =============================================================================

func TestContextFor(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")

	assert.Empty(t, s.ContextFor("temperatura", "missing"))

	for i := 0; i < 3; i++ {
		record(t, s, id, "temperatura", 0.5)
	}
	clock.Advance(10 * time.Minute)

	ctx := s.ContextFor("temperatura", id)

	assert.Contains(t, ctx, "MEMORIA CONVERSAZIONALE PROTEO:")
	assert.Contains(t, ctx, "Sessione corrente: 3 domande, temi principali: temperatura")
	assert.Contains(t, ctx, "1. 10 min fa: \"temperatura\" → Parametri: temperatura")
	assert.Contains(t, ctx, "PATTERN IDENTIFICATI:\n- Interesse ricorrente per temperatura")
	assert.Contains(t, ctx, "ISTRUZIONI MEMORIA:")
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{20 * time.Second, "ora"},
		{5 * time.Minute, "5 min fa"},
		{3 * time.Hour, "3 ore fa"},
		{50 * time.Hour, "2 giorni fa"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timeAgo(now, now.Add(-tt.ago)))
	}
}

// =============================================================================
// Profiles
// =============================================================================

func TestProfile_ExpertiseAdvancesOneStep(t *testing.T) {
	s := NewStore(WithClock(newFakeClock()))
	id := s.OpenSession("u1")

	first := record(t, s, id, "Dati di salinità", 0.9)
	assert.Nil(t, first.Metadata.UserProfile)

	p, ok := s.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, ExpertiseStudent, p.ExpertiseLevel)

	// Education queries never advance the tier.
	record(t, s, id, "Curiosità sulla posidonia", 0.95)
	p, _ = s.Profile("u1")
	assert.Equal(t, ExpertiseStudent, p.ExpertiseLevel)

	third := record(t, s, id, "Dati di temperatura", 0.85)
	require.NotNil(t, third.Metadata.UserProfile)
	assert.Equal(t, ExpertiseStudent, third.Metadata.UserProfile.ExpertiseLevel)

	record(t, s, id, "Dati di temperatura", 0.99)
	p, _ = s.Profile("u1")
	assert.Equal(t, ExpertiseResearcher, p.ExpertiseLevel)
	assert.Equal(t, []string{"salinità", "posidonia", "temperatura"}, p.Interests)
	assert.Equal(t, []QueryType{QueryData, QueryEducation}, p.FrequentQueries)
	assert.Equal(t, "it", p.Language)
}

func TestProfile_SharedAcrossSessions(t *testing.T) {
	s := NewStore()
	a := s.OpenSession("u2")
	b := s.OpenSession("u2")

	record(t, s, a, "temperatura", 0.5)
	record(t, s, b, "clorofilla", 0.5)

	p, ok := s.Profile("u2")
	require.True(t, ok)
	assert.Equal(t, []string{"temperatura", "clorofilla"}, p.Interests)
}

// =============================================================================
// Feedback, lifecycle, export
// =============================================================================

func TestSetFeedback(t *testing.T) {
	s := NewStore()
	id := s.OpenSession("")
	turn := record(t, s, id, "temperatura", 0.5)

	require.NoError(t, s.SetFeedback(id, turn.ID, FeedbackPositive))
	session, _ := s.Session(id)
	assert.Equal(t, FeedbackPositive, session.Turns[0].Feedback)

	assert.ErrorIs(t, s.SetFeedback(id, turn.ID, Feedback("great")), ErrInvalidFeedback)
	assert.ErrorIs(t, s.SetFeedback(id, "nope", FeedbackNeutral), ErrTurnNotFound)
	assert.ErrorIs(t, s.SetFeedback("missing", turn.ID, FeedbackNeutral), ErrSessionNotFound)
}

func TestEndAndClearSession(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock))
	id := s.OpenSession("")
	record(t, s, id, "temperatura", 0.4)
	record(t, s, id, "temperatura", 0.8)

	clock.Advance(2 * time.Minute)
	require.NoError(t, s.EndSession(id))
	clock.Advance(time.Hour)

	a, err := s.Analytics(id)
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), a.DurationMs)
	assert.InDelta(t, 0.6, a.AvgConfidence, 1e-9)
	assert.Equal(t, []string{"temperatura"}, a.UniqueParameters)

	require.NoError(t, s.ClearSession(id))
	_, err = s.Session(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.ClearSession(id), ErrSessionNotFound)
}

func TestExport(t *testing.T) {
	s := NewStore(WithClock(newFakeClock()))
	id := s.OpenSession("")
	record(t, s, id, "clorofilla nel Tirreno", 0.7)

	data, err := s.Export(id)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, ExportSchemaVersion, doc["schema_version"])
	assert.Contains(t, doc, "export_timestamp")

	session := doc["session"].(map[string]any)
	assert.Equal(t, id, session["session_id"])
	assert.Len(t, session["turns"], 1)

	analytics := doc["analytics"].(map[string]any)
	assert.Equal(t, float64(1), analytics["total_queries"])

	_, err = s.Export("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// =============================================================================
// Embedder
// =============================================================================

func TestKeywordEmbedder(t *testing.T) {
	e := KeywordEmbedder{}

	v := e.Embed("Temperatura, temperatura e pH")
	assert.Equal(t, 2.0, v[0])
	assert.Equal(t, 1.0, v[3])

	assert.InDelta(t, 1.0, e.Similarity(v, v), 1e-9)
	assert.Equal(t, 0.0, e.Similarity(v, e.Embed("nulla")))
	assert.Equal(t, 0.0, e.Similarity([]float64{1}, []float64{1, 2}))
}
