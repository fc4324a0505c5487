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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianProteo/services/llm"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/analyzer"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/observability"
)

var orchestratorTracer = otel.Tracer("proteo.orchestrator.services.chat")

var exportJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors returned by ChatOrchestrator.
var (
	// ErrEmptyMessage is returned for whitespace-only input. Nothing is
	// appended to the session.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSessionBusy is returned when a send is already in flight for the
	// session. Nothing is appended to the session.
	ErrSessionBusy = errors.New("session is busy processing a message")

	// ErrSessionNotFound is returned for unknown session keys.
	ErrSessionNotFound = errors.New("chat session not found")
)

// ExportSchemaVersion is written into every session export.
const ExportSchemaVersion = "1"

// Defaults for OrchestratorThresholds.
const (
	DefaultEnhanceThreshold  = 0.9
	DefaultRealDataThreshold = 0.7
	DefaultMockThreshold     = 0.5
	DefaultHealthQuorum      = 0.6
)

var (
	enhanceTemperature = float32(0.7)
	enhanceMaxTokens   = 1200
)

// systemPrompt frames every enhancement call.
var systemPrompt = strings.Join([]string{
	"PROTEO MARINE ASSISTANT - SISTEMA AVANZATO",
	"Sei Proteo, il più avanzato assistente marino AI per l'Italia.",
	"Integri dati real-time da ISPRA, EMODnet, Copernicus con knowledge graph scientifico.",
	"",
	"CAPACITÀ PRINCIPALI:",
	"- Accesso dati marini in tempo reale da fonti ufficiali",
	"- Knowledge graph con specie, parametri, progetti, relazioni ecologiche",
	"- Memoria conversazionale per personalizzazione risposta",
	"- Citazioni scientifiche e fonti verificate",
	"- Suggerimenti proattivi basati su contesto",
	"- Visualizzazioni dati interattive quando appropriate",
	"",
	"STILE RISPOSTA:",
	"- Sempre in italiano con precisione scientifica",
	"- Emoji marine appropriate (🌊🐚🔬🌡️📊💡)",
	"- Struttura: Dati → Analisi → Interpretazione → Suggerimenti",
	"- Include sempre fonti e affidabilità",
	"- Bilancia rigore scientifico con accessibilità",
	"",
	"FONTI PRIORITARIE:",
	"1. ISPRA (Istituto Superiore Protezione Ricerca Ambientale)",
	"2. EMODnet (European Marine Observation Data Network)",
	"3. Copernicus Marine Service",
	"4. Progetto MER (Marine Ecosystem Restoration)",
	"5. Pubblicazioni scientifiche peer-reviewed",
	"",
	"Fornisci sempre risposte accurate, citate e contestualizzate.",
}, "\n")

const errorAnswer = "🌊 Mi dispiace, si è verificato un errore nel sistema avanzato.\n\n" +
	"Il sistema sta passando alla modalità base. Per assistenza tecnica, contatta il supporto ISPRA.\n\n" +
	"💡 **Suggerimento**: Riprova con una domanda più specifica come \"temperatura mare Adriatico oggi\"."

var errorSuggestions = [...]string{
	"Riprova con una domanda più specifica",
	"Controlla lo stato del sistema",
	"Contatta il supporto tecnico",
}

// ErrorSuggestions returns a fresh copy of the suggestions that accompany
// the apology returned when the pipeline fails.
func ErrorSuggestions() []string {
	return append([]string(nil), errorSuggestions[:]...)
}

// =============================================================================
// Interfaces
// =============================================================================

// Composer produces grounded answers. Implemented by *RetrievalComposer.
type Composer interface {
	Compose(ctx context.Context, query, sessionID, userID string) datatypes.RAGResult
}

// MemoryStore is the conversation memory the orchestrator records into.
// Implemented by *conversation.Store.
type MemoryStore interface {
	OpenSession(userID string) string
	Record(sessionID string, in conversation.RecordInput) (conversation.ConversationTurn, error)
	SetFeedback(sessionID, turnID string, feedback conversation.Feedback) error
	ExportDocument(sessionID string) (conversation.ExportDocument, error)
	ClearSession(sessionID string) error
}

// DataHealth reports per-source reachability. Implemented by
// *opendata.Gateway.
type DataHealth interface {
	HealthCheck(ctx context.Context) map[string]bool
}

// KnowledgeStats reports the size of the knowledge graph. Implemented by
// *knowledge.Base.
type KnowledgeStats interface {
	Stats() knowledge.Stats
}

// =============================================================================
// Types
// =============================================================================

type sessionState int

const (
	stateIdle sessionState = iota
	stateSending
)

// SessionMetrics are running statistics over the assistant messages of a
// session. Failed sends are not counted.
type SessionMetrics struct {
	TotalMessages      int     `json:"total_messages"`
	AvgConfidence      float64 `json:"avg_confidence"`
	SourcesUsed        int     `json:"sources_used"`
	SuggestionsOffered int     `json:"suggestions_offered"`
	ProcessingTimeMs   int64   `json:"processing_time_ms"`
}

// HealthReport is returned by ChatOrchestrator.Health.
type HealthReport struct {
	Overall   bool            `json:"overall"`
	Systems   map[string]bool `json:"systems"`
	Details   map[string]any  `json:"details"`
	Summary   string          `json:"summary"`
	Problems  []string        `json:"problems,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// ExportedMessage is a ChatMessage with its bulky attachments replaced by
// counts.
type ExportedMessage struct {
	ID             string                      `json:"id"`
	Role           datatypes.Role              `json:"role"`
	Content        string                      `json:"content"`
	Timestamp      time.Time                   `json:"timestamp"`
	Confidence     *float64                    `json:"confidence,omitempty"`
	Suggestions    []string                    `json:"suggestions,omitempty"`
	DataType       datatypes.DataType          `json:"data_type,omitempty"`
	ContainsData   bool                        `json:"contains_data,omitempty"`
	Sources        int                         `json:"sources"`
	Citations      int                         `json:"citations"`
	Visualizations int                         `json:"visualizations"`
	Metadata       *datatypes.ResponseMetadata `json:"metadata,omitempty"`
}

// SessionExport is the downloadable document of a chat session.
type SessionExport struct {
	SchemaVersion   string                       `json:"schema_version"`
	SessionID       string                       `json:"session_id"`
	UserID          string                       `json:"user_id,omitempty"`
	StartTime       time.Time                    `json:"start_time"`
	Metrics         SessionMetrics               `json:"metrics"`
	Messages        []ExportedMessage            `json:"messages"`
	Memory          *conversation.ExportDocument `json:"memory,omitempty"`
	ExportTimestamp time.Time                    `json:"export_timestamp"`
}

type chatSession struct {
	key       string
	userID    string
	memoryID  string
	startTime time.Time
	state     sessionState
	messages  []datatypes.ChatMessage
	sources   map[string]bool
	metrics   SessionMetrics
}

// OrchestratorThresholds are the confidence cut-offs of the send pipeline.
type OrchestratorThresholds struct {
	// Enhance: composed answers below it are rewritten by the LLM.
	Enhance float64
	// RealData: answers above it, without synthesized data, are labelled real.
	RealData float64
	// Mock: in mock mode, composed answers above it replace the canned text.
	Mock float64
	// HealthQuorum: share of subsystems that must be healthy.
	HealthQuorum float64
}

// DefaultOrchestratorThresholds returns the production cut-offs.
func DefaultOrchestratorThresholds() OrchestratorThresholds {
	return OrchestratorThresholds{
		Enhance:      DefaultEnhanceThreshold,
		RealData:     DefaultRealDataThreshold,
		Mock:         DefaultMockThreshold,
		HealthQuorum: DefaultHealthQuorum,
	}
}

// =============================================================================
// ChatOrchestrator
// =============================================================================

// ChatOrchestrator owns the chat sessions and runs the send pipeline.
//
// # Description
//
// Each session key maps to a message log, a conversation-memory session and
// an Idle/Sending state. SendMessage appends the user message, composes an
// answer (or a canned one in mock mode), optionally rewrites it with the
// LLM, appends the assistant message and records the exchange in memory.
// A failure at any stage becomes a fixed apology; the session always
// returns to Idle.
//
// # Thread Safety
//
// Safe for concurrent use. Sends on different sessions run in parallel; a
// second send on a busy session is rejected with ErrSessionBusy.
type ChatOrchestrator struct {
	composer   Composer
	memory     MemoryStore
	llm        llm.LLMClient
	prompt     string
	mock       *MockResponder
	data       DataHealth
	kb         KnowledgeStats
	metrics    *observability.Metrics
	thresholds OrchestratorThresholds
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*chatSession
}

// OrchestratorOption configures a ChatOrchestrator.
type OrchestratorOption func(*ChatOrchestrator)

// WithLLM enables answer enhancement.
func WithLLM(client llm.LLMClient) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.llm = client }
}

// WithSystemPrompt replaces the default enhancement system prompt. An
// empty prompt keeps the default.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *ChatOrchestrator) {
		if prompt != "" {
			o.prompt = prompt
		}
	}
}

// WithMockResponder replaces the default keyword responder.
func WithMockResponder(m *MockResponder) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.mock = m }
}

// WithHealthSources sets the subsystems probed by Health.
func WithHealthSources(data DataHealth, kb KnowledgeStats) OrchestratorOption {
	return func(o *ChatOrchestrator) {
		o.data = data
		o.kb = kb
	}
}

// WithMetrics records chat metrics. A nil Metrics is a no-op.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.metrics = m }
}

// WithOrchestratorThresholds overrides the confidence cut-offs.
func WithOrchestratorThresholds(t OrchestratorThresholds) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.thresholds = t }
}

// WithOrchestratorClock sets the time source.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.now = now }
}

// WithOrchestratorLogger sets the logger. Default: slog.Default().
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *ChatOrchestrator) { o.logger = l }
}

// NewChatOrchestrator creates an orchestrator over composer and memory.
func NewChatOrchestrator(composer Composer, memory MemoryStore, opts ...OrchestratorOption) *ChatOrchestrator {
	o := &ChatOrchestrator{
		composer:   composer,
		memory:     memory,
		prompt:     systemPrompt,
		mock:       NewMockResponder(nil),
		thresholds: DefaultOrchestratorThresholds(),
		now:        time.Now,
		logger:     slog.Default(),
		sessions:   make(map[string]*chatSession),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendMessage runs one user message through the pipeline.
//
// # Inputs
//
//   - ctx: Bounds composition and enhancement.
//   - sessionKey: Existing key, or "" to start a new session.
//   - userID: Optional. Only used when the session is created.
//   - text: The user message.
//   - mode: ModeComposer or ModeMock. "" means ModeComposer.
//
// # Outputs
//
//   - datatypes.ChatResponse: The session key, the memory turn id (empty
//     when recording failed) and a copy of the assistant message.
//   - error: ErrEmptyMessage or ErrSessionBusy. Pipeline failures are not
//     errors; they produce the apology message.
func (o *ChatOrchestrator) SendMessage(ctx context.Context, sessionKey, userID, text string, mode datatypes.ChatMode) (datatypes.ChatResponse, error) {
	if mode == "" {
		mode = datatypes.ModeComposer
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.metrics.RecordChat(string(mode), observability.ChatStatusEmpty, 0)
		return datatypes.ChatResponse{}, ErrEmptyMessage
	}

	ctx, span := orchestratorTracer.Start(ctx, "ChatOrchestrator.SendMessage",
		trace.WithAttributes(attribute.String("chat.mode", string(mode))))
	defer span.End()

	start := o.now()
	session, history, err := o.beginSend(sessionKey, userID, text)
	if err != nil {
		o.metrics.RecordChat(string(mode), observability.ChatStatusBusy, 0)
		span.SetAttributes(attribute.Bool("chat.busy", true))
		return datatypes.ChatResponse{}, err
	}
	defer o.endSend(session)
	span.SetAttributes(attribute.String("session.id", session.key))

	msg, result, failed := o.respond(ctx, session, history, text, mode, start)

	status := observability.ChatStatusSuccess
	if failed || result.Fallback {
		status = observability.ChatStatusFallback
	}
	o.metrics.RecordChat(string(mode), status, o.now().Sub(start).Seconds())

	var turnID string
	if !failed {
		turn, err := o.memory.Record(session.memoryID, conversation.RecordInput{
			UserMessage:       text,
			AssistantResponse: msg.Content,
			SourceNames:       result.SourceNames(),
			Confidence:        result.Confidence,
		})
		if err != nil {
			o.logger.Warn("failed to record conversation turn",
				"session_id", session.key, "error", err)
		} else {
			turnID = turn.ID
		}
	} else {
		span.SetStatus(codes.Error, "chat pipeline failed")
	}

	o.mu.Lock()
	session.messages = append(session.messages, msg)
	if !failed {
		session.updateMetrics(msg, result)
	}
	o.mu.Unlock()

	return datatypes.ChatResponse{
		SessionID: session.key,
		TurnID:    turnID,
		Message:   msg.Clone(),
	}, nil
}

// beginSend finds or creates the session, rejects overlapping sends,
// appends the user message and snapshots the log for the LLM.
func (o *ChatOrchestrator) beginSend(key, userID, text string) (*chatSession, []datatypes.ChatMessage, error) {
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.sessions[key]
	if !ok {
		memoryID := o.memory.OpenSession(userID)
		if key == "" {
			key = memoryID
		}
		session = &chatSession{
			key:       key,
			userID:    userID,
			memoryID:  memoryID,
			startTime: now,
			sources:   make(map[string]bool),
		}
		o.sessions[key] = session
		o.metrics.SetActiveSessions(len(o.sessions))
		o.logger.Info("chat session created", "session_id", key, "has_user", userID != "")
	}

	if session.state == stateSending {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionBusy, session.key)
	}

	session.messages = append(session.messages, datatypes.ChatMessage{
		ID:        "user-" + datatypes.NewID(),
		Role:      datatypes.RoleUser,
		Content:   text,
		Timestamp: now,
	})
	session.state = stateSending

	history := make([]datatypes.ChatMessage, len(session.messages))
	copy(history, session.messages)
	return session, history, nil
}

func (o *ChatOrchestrator) endSend(session *chatSession) {
	o.mu.Lock()
	session.state = stateIdle
	o.mu.Unlock()
}

// respond produces the assistant message. failed is true when the
// pipeline panicked and msg is the apology.
func (o *ChatOrchestrator) respond(
	ctx context.Context,
	session *chatSession,
	history []datatypes.ChatMessage,
	text string,
	mode datatypes.ChatMode,
	start time.Time,
) (msg datatypes.ChatMessage, result datatypes.RAGResult, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("chat pipeline failed", "session_id", session.key, "panic", r)
			msg = o.errorMessage()
			result = datatypes.RAGResult{}
			failed = true
		}
	}()

	result = o.composer.Compose(ctx, text, session.memoryID, session.userID)
	content := result.Answer
	grounded := true
	enhanced := false

	if mode == datatypes.ModeMock && result.Confidence <= o.thresholds.Mock {
		content = o.mock.Respond(text)
		grounded = false
	}

	if grounded && o.llm != nil && result.Confidence < o.thresholds.Enhance {
		if better, err := o.enhance(ctx, text, result, history); err != nil {
			o.logger.Warn("LLM enhancement failed, keeping composed answer",
				"session_id", session.key, "error", err)
			o.metrics.RecordEnhancement(false)
		} else {
			content = better
			enhanced = true
			o.metrics.RecordEnhancement(true)
		}
	}

	confidence := result.Confidence
	msg = datatypes.ChatMessage{
		ID:          "bot-" + datatypes.NewID(),
		Role:        datatypes.RoleAssistant,
		Content:     content,
		Timestamp:   o.now(),
		Confidence:  &confidence,
		Suggestions: append([]string{}, result.Suggestions...),
		DataType:    datatypes.DataTypeDemo,
	}
	if grounded {
		msg.Sources = result.SourceNames()
		msg.Citations = result.Citations
		msg.Visualizations = result.Visualizations
		msg.ContainsData = len(result.Sources) > 0
		if confidence > o.thresholds.RealData && !result.DemoData {
			msg.DataType = datatypes.DataTypeReal
		}
	}
	msg.Metadata = &datatypes.ResponseMetadata{
		ProcessingTimeMs:       o.now().Sub(start).Milliseconds(),
		DataSourcesUsed:        len(result.Sources),
		KnowledgeNodesAccessed: len(result.RelatedNodes),
		ConversationTurns:      len(history),
		QueryComplexity:        datatypes.Complexity(analyzer.AssessComplexity(text)),
		Enhanced:               enhanced,
	}
	return msg, result, false
}

func (o *ChatOrchestrator) errorMessage() datatypes.ChatMessage {
	confidence := fallbackConfidence
	return datatypes.ChatMessage{
		ID:          "error-" + datatypes.NewID(),
		Role:        datatypes.RoleAssistant,
		Content:     errorAnswer,
		Timestamp:   o.now(),
		Confidence:  &confidence,
		Suggestions: ErrorSuggestions(),
		DataType:    datatypes.DataTypeDemo,
	}
}

// enhance asks the LLM to rewrite the composed answer.
func (o *ChatOrchestrator) enhance(ctx context.Context, query string, result datatypes.RAGResult, history []datatypes.ChatMessage) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: o.prompt},
		llm.Message{Role: llm.RoleSystem, Content: enhancementPrompt(query, result)},
	)
	for _, m := range history {
		role := llm.RoleAssistant
		if m.Role == datatypes.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	return o.llm.Chat(ctx, messages, llm.GenerationParams{
		Temperature: &enhanceTemperature,
		MaxTokens:   &enhanceMaxTokens,
	})
}

func enhancementPrompt(query string, result datatypes.RAGResult) string {
	var b strings.Builder
	b.WriteString("MIGLIORAMENTO RISPOSTA MARINA:\n\n")
	fmt.Fprintf(&b, "DOMANDA UTENTE: \"%s\"\n\n", query)
	b.WriteString("DATI E ANALISI DISPONIBILI:\n")
	b.WriteString(result.Answer)
	b.WriteString("\n\n")

	if len(result.Sources) > 0 {
		b.WriteString("FONTI VERIFICATE:\n")
		for _, s := range result.Sources {
			fmt.Fprintf(&b, "- %s (affidabilità: %d%%)\n", s.Name, percent(s.Reliability))
		}
		b.WriteString("\n")
	}

	if len(result.Citations) > 0 {
		b.WriteString("CITAZIONI SCIENTIFICHE:\n")
		for _, c := range head(result.Citations, 3) {
			fmt.Fprintf(&b, "- %s\n", c.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("ISTRUZIONI:\n")
	b.WriteString("1. Riscrivi la risposta in forma più naturale e conversazionale\n")
	b.WriteString("2. Mantieni TUTTI i dati numerici e le citazioni esistenti\n")
	b.WriteString("3. Aggiungi context educativo dove appropriato\n")
	b.WriteString("4. Usa emoji marine per rendere più accattivante\n")
	b.WriteString("5. Termina con un invito all'approfondimento\n")
	b.WriteString("6. Mantieni rigorosamente la struttura delle fonti\n\n")
	b.WriteString("NOTA: Non inventare dati, usa solo quelli forniti.")
	return b.String()
}

// updateMetrics folds one assistant message into the running statistics.
// Caller holds the orchestrator lock.
func (s *chatSession) updateMetrics(msg datatypes.ChatMessage, result datatypes.RAGResult) {
	n := float64(s.metrics.TotalMessages)
	s.metrics.AvgConfidence = (s.metrics.AvgConfidence*n + result.Confidence) / (n + 1)
	s.metrics.TotalMessages++
	for _, src := range result.Sources {
		s.sources[src.ID] = true
	}
	s.metrics.SourcesUsed = len(s.sources)
	s.metrics.SuggestionsOffered += len(msg.Suggestions)
	if msg.Metadata != nil {
		s.metrics.ProcessingTimeMs = msg.Metadata.ProcessingTimeMs
	}
}

// =============================================================================
// Session Operations
// =============================================================================

// Messages returns a copy of the session's message log.
func (o *ChatOrchestrator) Messages(sessionKey string) ([]datatypes.ChatMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.sessions[sessionKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
	}
	out := make([]datatypes.ChatMessage, len(session.messages))
	for i, m := range session.messages {
		out[i] = m.Clone()
	}
	return out, nil
}

// Metrics returns the session's running statistics.
func (o *ChatOrchestrator) Metrics(sessionKey string) (SessionMetrics, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.sessions[sessionKey]
	if !ok {
		return SessionMetrics{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
	}
	return session.metrics, nil
}

// Feedback tags a recorded turn of the session.
func (o *ChatOrchestrator) Feedback(sessionKey, turnID string, feedback conversation.Feedback) error {
	o.mu.Lock()
	session, ok := o.sessions[sessionKey]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
	}
	return o.memory.SetFeedback(session.memoryID, turnID, feedback)
}

// Clear drops the session and its conversation memory.
func (o *ChatOrchestrator) Clear(sessionKey string) error {
	o.mu.Lock()
	session, ok := o.sessions[sessionKey]
	if ok {
		delete(o.sessions, sessionKey)
		o.metrics.SetActiveSessions(len(o.sessions))
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
	}
	if err := o.memory.ClearSession(session.memoryID); err != nil && !errors.Is(err, conversation.ErrSessionNotFound) {
		return fmt.Errorf("clearing memory of %s: %w", sessionKey, err)
	}
	o.logger.Info("chat session cleared", "session_id", sessionKey)
	return nil
}

// SessionCount returns the number of live sessions.
func (o *ChatOrchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// ExportFilename is the download name of a session export.
func ExportFilename(sessionKey string) string {
	return "proteo-conversation-" + sessionKey + ".json"
}

// ExportDocument assembles the export of a session.
func (o *ChatOrchestrator) ExportDocument(sessionKey string) (SessionExport, error) {
	o.mu.Lock()
	session, ok := o.sessions[sessionKey]
	if !ok {
		o.mu.Unlock()
		return SessionExport{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
	}
	doc := SessionExport{
		SchemaVersion:   ExportSchemaVersion,
		SessionID:       session.key,
		UserID:          session.userID,
		StartTime:       session.startTime,
		Metrics:         session.metrics,
		Messages:        make([]ExportedMessage, len(session.messages)),
		ExportTimestamp: o.now(),
	}
	for i, m := range session.messages {
		doc.Messages[i] = exportMessage(m.Clone())
	}
	memoryID := session.memoryID
	o.mu.Unlock()

	if mem, err := o.memory.ExportDocument(memoryID); err == nil {
		doc.Memory = &mem
	} else {
		o.logger.Debug("conversation memory not exported", "session_id", sessionKey, "error", err)
	}
	return doc, nil
}

// Export renders ExportDocument as indented JSON.
func (o *ChatOrchestrator) Export(sessionKey string) ([]byte, error) {
	doc, err := o.ExportDocument(sessionKey)
	if err != nil {
		return nil, err
	}
	data, err := exportJSON.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export for %s: %w", sessionKey, err)
	}
	return data, nil
}

func exportMessage(m datatypes.ChatMessage) ExportedMessage {
	return ExportedMessage{
		ID:             m.ID,
		Role:           m.Role,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		Confidence:     m.Confidence,
		Suggestions:    m.Suggestions,
		DataType:       m.DataType,
		ContainsData:   m.ContainsData,
		Sources:        len(m.Sources),
		Citations:      len(m.Citations),
		Visualizations: len(m.Visualizations),
		Metadata:       m.Metadata,
	}
}

// =============================================================================
// Health
// =============================================================================

// Health probes the LLM, the open-data sources, the knowledge graph and
// the conversation memory.
//
// # Description
//
// The LLM and open-data probes run concurrently. A subsystem that is not
// configured counts as unhealthy. Overall is true when at least
// ceil(n * HealthQuorum) subsystems are healthy.
func (o *ChatOrchestrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Systems:   make(map[string]bool, 4),
		Details:   make(map[string]any, 5),
		CheckedAt: o.now(),
	}

	var (
		llmErr     error
		dataStatus map[string]bool
		problems   *multierror.Error
	)

	var g errgroup.Group
	g.Go(func() error {
		if o.llm == nil {
			llmErr = llm.ErrNoAPIKey
			return nil
		}
		llmErr = o.llm.Ping(ctx)
		return nil
	})
	g.Go(func() error {
		if o.data != nil {
			dataStatus = o.data.HealthCheck(ctx)
		}
		return nil
	})
	_ = g.Wait()

	report.Systems["llm"] = llmErr == nil
	if llmErr != nil {
		report.Details["llm"] = llmErr.Error()
		problems = multierror.Append(problems, fmt.Errorf("llm: %w", llmErr))
	}

	openData := false
	for _, ok := range dataStatus {
		if ok {
			openData = true
			break
		}
	}
	report.Systems["openData"] = openData
	if dataStatus != nil {
		report.Details["openData"] = dataStatus
	} else {
		report.Details["openData"] = "not configured"
	}
	if !openData {
		problems = multierror.Append(problems, errors.New("openData: no source reachable"))
	}

	knowledgeOK := false
	if o.kb != nil {
		stats := o.kb.Stats()
		knowledgeOK = stats.TotalNodes > 0 && stats.TotalRelations > 0
		report.Details["knowledgeGraph"] = stats
	}
	report.Systems["knowledgeGraph"] = knowledgeOK
	if !knowledgeOK {
		problems = multierror.Append(problems, errors.New("knowledgeGraph: empty or not configured"))
	}

	report.Systems["conversationMemory"] = o.memory != nil
	report.Details["conversationMemory"] = "Local memory active"

	healthy := 0
	for _, ok := range report.Systems {
		if ok {
			healthy++
		}
	}
	total := len(report.Systems)
	report.Overall = healthy >= int(math.Ceil(float64(total)*o.thresholds.HealthQuorum))
	report.Summary = fmt.Sprintf("%d/%d systems operational", healthy, total)

	if problems != nil {
		for _, err := range problems.Errors {
			report.Problems = append(report.Problems, err.Error())
		}
		o.logger.Debug("health check found degraded subsystems", "problems", problems.Error())
	}
	return report
}
