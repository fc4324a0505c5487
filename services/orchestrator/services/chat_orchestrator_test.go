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

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProteo/services/llm"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/observability"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeLLM struct {
	mu      sync.Mutex
	answer  string
	err     error
	pingErr error
	calls   [][]llm.Message
	params  []llm.GenerationParams
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.params = append(f.params, params)
	return f.answer, f.err
}

func (f *fakeLLM) Ping(context.Context) error { return f.pingErr }

// stubComposer returns a fixed result.
type stubComposer struct{ result datatypes.RAGResult }

func (s stubComposer) Compose(context.Context, string, string, string) datatypes.RAGResult {
	return s.result
}

type panickingComposer struct{}

func (panickingComposer) Compose(context.Context, string, string, string) datatypes.RAGResult {
	panic("composer exploded")
}

// blockingComposer parks every call until release is closed.
type blockingComposer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingComposer) Compose(context.Context, string, string, string) datatypes.RAGResult {
	b.entered <- struct{}{}
	<-b.release
	return datatypes.RAGResult{Answer: "ok", Confidence: 0.6}
}

type fakeDataHealth map[string]bool

func (f fakeDataHealth) HealthCheck(context.Context) map[string]bool { return f }

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*ChatOrchestrator, *conversation.Store) {
	t.Helper()
	memory := conversation.NewStore()
	composer := NewRetrievalComposer(newMarineBase(t), newFakeGateway(), memory)
	return NewChatOrchestrator(composer, memory, opts...), memory
}

// =============================================================================
// SendMessage Tests
// =============================================================================

func TestSendMessage_TemperatureWithoutLLM(t *testing.T) {
	o, memory := newTestOrchestrator(t)

	resp, err := o.SendMessage(context.Background(), "", "", "Qual è la temperatura del mare Adriatico?", "")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.TurnID)

	msg := resp.Message
	assert.Equal(t, datatypes.RoleAssistant, msg.Role)
	assert.Contains(t, msg.Content, "• **temperature**: 18.5 °C (Mediterraneo)")
	require.NotNil(t, msg.Confidence)
	assert.InDelta(t, 0.30, *msg.Confidence, 1e-9)
	assert.Equal(t, datatypes.DataTypeDemo, msg.DataType)
	assert.True(t, msg.ContainsData)
	assert.Equal(t, []string{
		"temperature - ISPRA (2025) - Demo Mode",
		"temperature - ISPRA (2025) - Demo Mode",
	}, msg.Sources)
	require.NotEmpty(t, msg.Citations)
	assert.Equal(t, "cite_mer_project", msg.Citations[len(msg.Citations)-1].ID)
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, 2, msg.Metadata.DataSourcesUsed)
	assert.Equal(t, 6, msg.Metadata.KnowledgeNodesAccessed)
	assert.Equal(t, 1, msg.Metadata.ConversationTurns)
	assert.False(t, msg.Metadata.CacheHit)
	assert.False(t, msg.Metadata.Enhanced)

	messages, err := o.Messages(resp.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, datatypes.RoleUser, messages[0].Role)
	assert.Equal(t, "Qual è la temperatura del mare Adriatico?", messages[0].Content)

	metrics, err := o.Metrics(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalMessages)
	assert.InDelta(t, 0.30, metrics.AvgConfidence, 1e-9)
	assert.Equal(t, 2, metrics.SourcesUsed)
	assert.Equal(t, 3, metrics.SuggestionsOffered)

	// The turn landed in conversation memory under the session's memory id.
	session, err := memory.Session(resp.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Turns, 1)
	assert.Equal(t, resp.TurnID, session.Turns[0].ID)
	assert.Equal(t, []string{"temperatura"}, session.Turns[0].Context.DetectedParameters)
}

func TestSendMessage_ComparisonOfTwoParameters(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	resp, err := o.SendMessage(context.Background(), "", "", "Confronta clorofilla e temperatura nel Tirreno", datatypes.ModeComposer)
	require.NoError(t, err)

	assert.Contains(t, resp.Message.Content, "I dati mostrano differenze significative tra i parametri analizzati.")
	assert.Contains(t, resp.Message.Content, "• **temperature**:")
	assert.Contains(t, resp.Message.Content, "• **chlorophyll**:")
	assert.Equal(t, "Posso mostrarti anche i dati delle zone adiacenti", resp.Message.Suggestions[0])
	assert.Equal(t, datatypes.ComplexityComplex, resp.Message.Metadata.QueryComplexity)
}

func TestSendMessage_SameSessionAccumulates(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.SendMessage(ctx, "", "", "temperatura Adriatico", "")
	require.NoError(t, err)
	second, err := o.SendMessage(ctx, first.SessionID, "", "e la clorofilla?", "")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 3, second.Message.Metadata.ConversationTurns)
	assert.Equal(t, 1, o.SessionCount())

	metrics, err := o.Metrics(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalMessages)
}

func TestSendMessage_EmptyIsRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.SendMessage(context.Background(), "k1", "", "   \n\t", "")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, o.SessionCount())
}

func TestSendMessage_OverlappingSendIsBusy(t *testing.T) {
	composer := &blockingComposer{entered: make(chan struct{}), release: make(chan struct{})}
	o := NewChatOrchestrator(composer, conversation.NewStore())

	done := make(chan error, 1)
	go func() {
		_, err := o.SendMessage(context.Background(), "k1", "", "prima domanda", "")
		done <- err
	}()
	<-composer.entered

	_, err := o.SendMessage(context.Background(), "k1", "", "seconda domanda", "")
	assert.ErrorIs(t, err, ErrSessionBusy)

	messages, err := o.Messages("k1")
	require.NoError(t, err)
	assert.Len(t, messages, 1, "busy send must not append")

	close(composer.release)
	require.NoError(t, <-done)

	messages, err = o.Messages("k1")
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// Back to idle.
	go func() { <-composer.entered }()
	_, err = o.SendMessage(context.Background(), "k1", "", "terza domanda", "")
	assert.NoError(t, err)
}

func TestSendMessage_PipelineFailureBecomesApology(t *testing.T) {
	o := NewChatOrchestrator(panickingComposer{}, conversation.NewStore())

	resp, err := o.SendMessage(context.Background(), "k1", "", "temperatura", "")
	require.NoError(t, err)

	assert.Empty(t, resp.TurnID)
	assert.True(t, strings.HasPrefix(resp.Message.Content, "🌊 Mi dispiace, si è verificato un errore nel sistema avanzato."))
	require.NotNil(t, resp.Message.Confidence)
	assert.InDelta(t, 0.3, *resp.Message.Confidence, 1e-9)
	assert.Equal(t, ErrorSuggestions(), resp.Message.Suggestions)

	metrics, err := o.Metrics("k1")
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.TotalMessages)

	// The session is idle again.
	_, err = o.SendMessage(context.Background(), "k1", "", "temperatura", "")
	assert.NoError(t, err)
}

func TestSendMessage_DataTypeReal(t *testing.T) {
	result := datatypes.RAGResult{
		Answer:     "dati",
		Confidence: 0.8,
		Sources:    []datatypes.DataSourceInfo{{ID: "ispra_water_quality", Name: "ISPRA"}},
	}

	o := NewChatOrchestrator(stubComposer{result}, conversation.NewStore())
	resp, err := o.SendMessage(context.Background(), "", "", "temperatura", "")
	require.NoError(t, err)
	assert.Equal(t, datatypes.DataTypeReal, resp.Message.DataType)

	result.DemoData = true
	o = NewChatOrchestrator(stubComposer{result}, conversation.NewStore())
	resp, err = o.SendMessage(context.Background(), "", "", "temperatura", "")
	require.NoError(t, err)
	assert.Equal(t, datatypes.DataTypeDemo, resp.Message.DataType, "synthesized data is never real")
}

// =============================================================================
// Mock Mode Tests
// =============================================================================

func TestSendMessage_MockModeUsesCannedAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	resp, err := o.SendMessage(context.Background(), "", "", "livelli di clorofilla", datatypes.ModeMock)
	require.NoError(t, err)

	assert.Equal(t, cannedAnswers[0], resp.Message.Content)
	assert.Empty(t, resp.Message.Sources)
	assert.False(t, resp.Message.ContainsData)
	assert.Equal(t, datatypes.DataTypeDemo, resp.Message.DataType)
}

func TestSendMessage_MockModeUnmatchedIsRandomDemo(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithMockResponder(NewMockResponder(func(int) int { return 4 })))

	resp, err := o.SendMessage(context.Background(), "", "", "ciao", datatypes.ModeMock)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Message.Content, "🐚 🌀 Correnti marine"))
	assert.Contains(t, resp.Message.Content, "Questa è una risposta dimostrativa")
}

func TestSendMessage_MockModeKeepsConfidentComposition(t *testing.T) {
	result := datatypes.RAGResult{Answer: "composta", Confidence: 0.6}
	o := NewChatOrchestrator(stubComposer{result}, conversation.NewStore())

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura", datatypes.ModeMock)
	require.NoError(t, err)
	assert.Equal(t, "composta", resp.Message.Content)
}

// =============================================================================
// Enhancement Tests
// =============================================================================

func TestSendMessage_LLMEnhancesLowConfidence(t *testing.T) {
	client := &fakeLLM{answer: "🌊 Risposta migliorata"}
	o, _ := newTestOrchestrator(t, WithLLM(client))

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura Adriatico", "")
	require.NoError(t, err)

	assert.Equal(t, "🌊 Risposta migliorata", resp.Message.Content)
	assert.True(t, resp.Message.Metadata.Enhanced)

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	require.Len(t, call, 3)
	assert.Equal(t, llm.RoleSystem, call[0].Role)
	assert.True(t, strings.HasPrefix(call[0].Content, "PROTEO MARINE ASSISTANT"))
	assert.True(t, strings.HasPrefix(call[1].Content, "MIGLIORAMENTO RISPOSTA MARINA:"))
	assert.Contains(t, call[1].Content, "DOMANDA UTENTE: \"temperatura Adriatico\"")
	assert.Contains(t, call[1].Content, "(affidabilità: 90%)")
	assert.Contains(t, call[1].Content, "CITAZIONI SCIENTIFICHE:")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "temperatura Adriatico"}, call[2])

	params := client.params[0]
	require.NotNil(t, params.Temperature)
	require.NotNil(t, params.MaxTokens)
	assert.InDelta(t, 0.7, *params.Temperature, 1e-6)
	assert.Equal(t, 1200, *params.MaxTokens)
}

func TestSendMessage_SystemPromptOverride(t *testing.T) {
	client := &fakeLLM{answer: "ok"}
	o, _ := newTestOrchestrator(t, WithLLM(client), WithSystemPrompt("Rispondi in breve."))

	_, err := o.SendMessage(context.Background(), "", "", "temperatura Adriatico", "")
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "Rispondi in breve.", client.calls[0][0].Content)

	client = &fakeLLM{answer: "ok"}
	o, _ = newTestOrchestrator(t, WithLLM(client), WithSystemPrompt(""))
	_, err = o.SendMessage(context.Background(), "", "", "temperatura Adriatico", "")
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.True(t, strings.HasPrefix(client.calls[0][0].Content, "PROTEO MARINE ASSISTANT"))
}

func TestSendMessage_LLMFailureKeepsComposedAnswer(t *testing.T) {
	client := &fakeLLM{err: errors.New("upstream 500")}
	o, _ := newTestOrchestrator(t, WithLLM(client))

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura Adriatico", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Message.Content, "🔬 **Analisi Marine Avanzata"))
	assert.False(t, resp.Message.Metadata.Enhanced)
}

func TestSendMessage_HighConfidenceSkipsLLM(t *testing.T) {
	client := &fakeLLM{answer: "non usata"}
	result := datatypes.RAGResult{Answer: "composta", Confidence: 0.95}
	o := NewChatOrchestrator(stubComposer{result}, conversation.NewStore(), WithLLM(client))

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura", "")
	require.NoError(t, err)
	assert.Equal(t, "composta", resp.Message.Content)
	assert.Empty(t, client.calls)
}

// =============================================================================
// Session Operation Tests
// =============================================================================

func TestFeedback(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura", "")
	require.NoError(t, err)

	assert.NoError(t, o.Feedback(resp.SessionID, resp.TurnID, conversation.FeedbackPositive))
	assert.ErrorIs(t, o.Feedback("missing", resp.TurnID, conversation.FeedbackPositive), ErrSessionNotFound)
	assert.ErrorIs(t, o.Feedback(resp.SessionID, "missing", conversation.FeedbackPositive), conversation.ErrTurnNotFound)
}

func TestClear(t *testing.T) {
	o, memory := newTestOrchestrator(t)

	resp, err := o.SendMessage(context.Background(), "", "", "temperatura", "")
	require.NoError(t, err)

	require.NoError(t, o.Clear(resp.SessionID))

	_, err = o.Messages(resp.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = memory.Session(resp.SessionID)
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
	assert.ErrorIs(t, o.Clear(resp.SessionID), ErrSessionNotFound)
}

func TestExport(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	o, _ := newTestOrchestrator(t, WithOrchestratorClock(func() time.Time { return fixed }))

	resp, err := o.SendMessage(context.Background(), "", "u1", "temperatura Adriatico", "")
	require.NoError(t, err)

	data, err := o.Export(resp.SessionID)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1", doc["schema_version"])
	assert.Equal(t, resp.SessionID, doc["session_id"])
	assert.Equal(t, "u1", doc["user_id"])
	assert.NotNil(t, doc["memory"])

	messages, ok := doc["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assistant := messages[1].(map[string]any)
	assert.Equal(t, float64(2), assistant["sources"], "attachments are exported as counts")

	assert.Equal(t, "proteo-conversation-abc.json", ExportFilename("abc"))

	_, err = o.Export("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth_AllSystemsOperational(t *testing.T) {
	kb := newMarineBase(t)
	o, _ := newTestOrchestrator(t,
		WithLLM(&fakeLLM{}),
		WithHealthSources(fakeDataHealth{"ispra_water_quality": false, "emodnet_physics": true}, kb),
	)

	report := o.Health(context.Background())

	assert.True(t, report.Overall)
	assert.Equal(t, "4/4 systems operational", report.Summary)
	assert.Empty(t, report.Problems)
}

func TestHealth_QuorumNotReached(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithHealthSources(fakeDataHealth{"ispra_water_quality": false}, newMarineBase(t)))

	report := o.Health(context.Background())

	assert.False(t, report.Systems["llm"])
	assert.Equal(t, "API key not configured", report.Details["llm"])
	assert.False(t, report.Systems["openData"])
	assert.True(t, report.Systems["knowledgeGraph"])
	assert.True(t, report.Systems["conversationMemory"])
	assert.False(t, report.Overall, "2 of 4 is below ceil(4*0.6)")
	assert.Equal(t, "2/4 systems operational", report.Summary)
	assert.Len(t, report.Problems, 2)
}

func TestHealth_PingFailure(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		WithLLM(&fakeLLM{pingErr: errors.New("401")}),
		WithHealthSources(fakeDataHealth{"emodnet_physics": true}, newMarineBase(t)),
	)

	report := o.Health(context.Background())

	assert.False(t, report.Systems["llm"])
	assert.True(t, report.Overall, "3 of 4 meets the quorum")
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestSendMessage_RecordsMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	o, _ := newTestOrchestrator(t, WithMetrics(m))
	ctx := context.Background()

	_, err := o.SendMessage(ctx, "", "", "temperatura", "")
	require.NoError(t, err)
	_, err = o.SendMessage(ctx, "", "", " ", "")
	require.ErrorIs(t, err, ErrEmptyMessage)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("rag", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("rag", "empty")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
}

// =============================================================================
// MockResponder Tests
// =============================================================================

func TestMockResponder_KeywordOrder(t *testing.T) {
	m := NewMockResponder(func(int) int { return 0 })

	tests := []struct {
		text string
		want int
	}{
		{"Temperatura e clorofilla oggi", 0},
		{"sea temperature", 1},
		{"Com'è la biodiversità?", 2},
		{"qualità dell'acqua", 3},
		{"correnti nello stretto", 4},
		{"inquinamento da plastica", 5},
	}
	for _, tt := range tests {
		assert.Equal(t, cannedAnswers[tt.want], m.Respond(tt.text), tt.text)
	}
}

func TestMockResponder_DefaultCarriesDemoNotice(t *testing.T) {
	m := NewMockResponder(func(n int) int { return n - 1 })

	got := m.Respond("ciao")

	assert.True(t, strings.HasPrefix(got, "🐚 🔬 Campionamento microplastiche"))
	assert.True(t, strings.HasSuffix(got, mockDemoNotice))
}
