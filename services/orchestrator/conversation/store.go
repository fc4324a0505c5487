// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation keeps per-session conversation memory in process.
//
// # Description
//
// A Store holds sessions of bounded turn history, per-user profiles shared
// across sessions, and derives from them relevance-ranked recall, usage
// patterns, proactive suggestions and a textual context block for the
// composer. Nothing is persisted; a restart forgets everything.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Returned values are
// copies and may be modified by the caller.
package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultMaxTurns bounds the stored history of one session.
	DefaultMaxTurns = 50

	// DefaultSearchLimit is used when Search is called with limit <= 0.
	DefaultSearchLimit = 5

	// defaultTurnConfidence replaces a zero confidence on record.
	defaultTurnConfidence = 0.5

	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	sessionIDLength   = 9
)

// Thresholds are the tunable cut-offs of the store.
type Thresholds struct {
	// Relevance is the exclusive minimum search score for recall.
	Relevance float64
	// Technical is the exclusive minimum average confidence of recent
	// turns for the "more technical" pattern.
	Technical float64
	// Expertise is the exclusive minimum confidence of a data query that
	// advances the user's tier.
	Expertise float64
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Relevance: 0.3, Technical: 0.7, Expertise: 0.8}
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is the in-memory conversation memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*ConversationSession
	profiles map[string]*UserProfile

	clock        Clock
	embedder     Embedder
	thresholds   Thresholds
	maxTurns     int
	newSessionID func(now time.Time) string
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithEmbedder replaces KeywordEmbedder.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// WithThresholds overrides the cut-offs.
func WithThresholds(t Thresholds) Option {
	return func(s *Store) { s.thresholds = t }
}

// WithMaxTurns overrides DefaultMaxTurns.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithSessionIDFunc injects the session id generator.
func WithSessionIDFunc(f func(now time.Time) string) Option {
	return func(s *Store) { s.newSessionID = f }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*ConversationSession),
		profiles:     make(map[string]*UserProfile),
		clock:        systemClock{},
		embedder:     KeywordEmbedder{},
		thresholds:   DefaultThresholds(),
		maxTurns:     DefaultMaxTurns,
		newSessionID: defaultSessionID,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultSessionID returns session_<unix-ms>_<nanoid>.
func defaultSessionID(now time.Time) string {
	suffix, err := gonanoid.Generate(sessionIDAlphabet, sessionIDLength)
	if err != nil {
		suffix = uuid.NewString()[:sessionIDLength]
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}

// OpenSession starts a session, optionally bound to a user id, and
// returns its id.
func (s *Store) OpenSession(userID string) string {
	now := s.clock.Now()
	id := s.newSessionID(now)

	s.mu.Lock()
	s.sessions[id] = &ConversationSession{
		SessionID: id,
		UserID:    userID,
		StartTime: now,
		Turns:     []ConversationTurn{},
		KeyTopics: []string{},
	}
	s.mu.Unlock()

	s.logger.Debug("conversation session opened", "session_id", id, "has_user", userID != "")
	return id
}

// Record appends one exchange to the session.
//
// # Description
//
// Derives detected parameters and query type from the user message and
// citations from the assistant response, snapshots the user profile,
// appends the turn, updates the profile, prunes the history to the turn
// cap and refreshes the session summary.
//
// # Outputs
//
//   - ConversationTurn: A copy of the stored turn.
//   - error: ErrSessionNotFound for unknown ids.
func (s *Store) Record(sessionID string, in RecordInput) (ConversationTurn, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ConversationTurn{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = defaultTurnConfidence
	}

	turn := ConversationTurn{
		ID:                uuid.NewString(),
		Timestamp:         now,
		UserMessage:       in.UserMessage,
		AssistantResponse: in.AssistantResponse,
		Context: TurnContext{
			DetectedParameters: detectParameters(in.UserMessage),
			DataUsed:           append([]string{}, in.SourceNames...),
			Citations:          extractCitations(in.AssistantResponse),
			Confidence:         confidence,
		},
		Metadata: TurnMetadata{
			SessionDurationMs: now.Sub(session.StartTime).Milliseconds(),
			QueryType:         classifyQuery(in.UserMessage),
		},
	}
	if session.UserID != "" {
		if p, ok := s.profiles[session.UserID]; ok {
			snapshot := p.clone()
			turn.Metadata.UserProfile = &snapshot
		}
	}

	session.Turns = append(session.Turns, turn)
	session.TotalQueries++

	if session.UserID != "" {
		s.updateProfileLocked(session.UserID, turn, now)
	}

	if before := len(session.Turns); before > s.maxTurns {
		session.Turns = prune(session.Turns, s.maxTurns)
		s.logger.Debug("conversation history pruned",
			"session_id", sessionID, "before", before, "after", len(session.Turns))
	}
	updateSummary(session)

	return turn.clone(), nil
}

func (s *Store) updateProfileLocked(userID string, turn ConversationTurn, now time.Time) {
	p, ok := s.profiles[userID]
	if !ok {
		p = &UserProfile{
			ID:              userID,
			Interests:       []string{},
			ExpertiseLevel:  ExpertiseTourist,
			FrequentQueries: []QueryType{},
			Language:        "it",
		}
		s.profiles[userID] = p
	}

	for _, param := range turn.Context.DetectedParameters {
		if !containsString(p.Interests, param) {
			p.Interests = append(p.Interests, param)
		}
	}

	if turn.Metadata.QueryType == QueryData && turn.Context.Confidence > s.thresholds.Expertise {
		p.ExpertiseLevel = p.ExpertiseLevel.next()
	}

	qt := turn.Metadata.QueryType
	found := false
	for _, existing := range p.FrequentQueries {
		if existing == qt {
			found = true
			break
		}
	}
	if !found {
		p.FrequentQueries = append(p.FrequentQueries, qt)
	}

	p.LastActive = now
}

// Session returns a copy of the session.
func (s *Store) Session(sessionID string) (ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ConversationSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session.clone(), nil
}

// Profile returns a copy of the user's profile.
func (s *Store) Profile(userID string) (UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return UserProfile{}, false
	}
	return p.clone(), true
}

// SetFeedback tags a turn. It is the only mutation allowed on a recorded
// turn.
func (s *Store) SetFeedback(sessionID, turnID string, feedback Feedback) error {
	if !feedback.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFeedback, feedback)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	for i := range session.Turns {
		if session.Turns[i].ID == turnID {
			session.Turns[i].Feedback = feedback
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
}

// EndSession stamps the end time. Recording remains possible.
func (s *Store) EndSession(sessionID string) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	session.EndTime = &now
	return nil
}

// ClearSession forgets the session. Profiles are kept.
func (s *Store) ClearSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

// SessionCount returns the number of live sessions.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// =============================================================================
// Copies
// =============================================================================

func (p UserProfile) clone() UserProfile {
	out := p
	out.Interests = append([]string{}, p.Interests...)
	out.FrequentQueries = append([]QueryType{}, p.FrequentQueries...)
	return out
}

func (t ConversationTurn) clone() ConversationTurn {
	out := t
	out.Context.DetectedParameters = append([]string{}, t.Context.DetectedParameters...)
	out.Context.DataUsed = append([]string{}, t.Context.DataUsed...)
	out.Context.Citations = append([]string{}, t.Context.Citations...)
	if t.Metadata.UserProfile != nil {
		p := t.Metadata.UserProfile.clone()
		out.Metadata.UserProfile = &p
	}
	return out
}

func (c *ConversationSession) clone() ConversationSession {
	out := *c
	out.Turns = make([]ConversationTurn, len(c.Turns))
	for i, t := range c.Turns {
		out.Turns[i] = t.clone()
	}
	out.KeyTopics = append([]string{}, c.KeyTopics...)
	if c.EndTime != nil {
		end := *c.EndTime
		out.EndTime = &end
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
