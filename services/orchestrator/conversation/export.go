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
	"time"

	jsoniter "github.com/json-iterator/go"
)

var exportJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Analytics summarizes a session. Duration runs to EndTime when the
// session has ended, otherwise to now.
func (s *Store) Analytics(sessionID string) (Analytics, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Analytics{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return analyticsOf(session, now), nil
}

func analyticsOf(session *ConversationSession, now time.Time) Analytics {
	end := now
	if session.EndTime != nil {
		end = *session.EndTime
	}

	var sum float64
	unique := []string{}
	seen := make(map[string]bool)
	for _, t := range session.Turns {
		sum += t.Context.Confidence
		for _, p := range t.Context.DetectedParameters {
			if !seen[p] {
				seen[p] = true
				unique = append(unique, p)
			}
		}
	}

	var avg float64
	if len(session.Turns) > 0 {
		avg = sum / float64(len(session.Turns))
	}

	return Analytics{
		SessionID:        session.SessionID,
		DurationMs:       end.Sub(session.StartTime).Milliseconds(),
		TotalQueries:     session.TotalQueries,
		AvgConfidence:    avg,
		UniqueParameters: unique,
		KeyTopics:        append([]string{}, session.KeyTopics...),
		Summary:          session.Summary,
	}
}

// ExportDocument assembles the export for a session.
func (s *Store) ExportDocument(sessionID string) (ExportDocument, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ExportDocument{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return ExportDocument{
		SchemaVersion:   ExportSchemaVersion,
		Session:         session.clone(),
		Analytics:       analyticsOf(session, now),
		ExportTimestamp: now,
	}, nil
}

// Export renders ExportDocument as indented JSON.
func (s *Store) Export(sessionID string) ([]byte, error) {
	doc, err := s.ExportDocument(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := exportJSON.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export for %s: %w", sessionID, err)
	}
	return data, nil
}
