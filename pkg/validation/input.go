// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that reach
// upstream open-data requests or the chat pipeline.
//
// Source ids, parameter names and dates are interpolated into cache keys,
// metric labels and upstream request bodies, so they are restricted to a
// conservative character set before use.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageRunes bounds the length of a single chat message.
const MaxMessageRunes = 4000

// identifierPattern matches source ids and parameter names.
// Allows: lowercase letters, digits, underscores. Max length: 64.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidateSourceID validates an open-data source id such as "ispra_rmn".
//
// Example:
//
//	if err := validation.ValidateSourceID(id); err != nil {
//	    return fmt.Errorf("invalid source: %w", err)
//	}
func ValidateSourceID(id string) error {
	if id == "" {
		return fmt.Errorf("source id cannot be empty")
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid source id format: %q (must be lowercase alphanumeric or underscore, max 64 chars)", id)
	}
	return nil
}

// ValidateParameter validates a parameter name such as "sea_temperature".
func ValidateParameter(param string) error {
	if param == "" {
		return fmt.Errorf("parameter cannot be empty")
	}
	if !identifierPattern.MatchString(param) {
		return fmt.Errorf("invalid parameter format: %q (must be lowercase alphanumeric or underscore, max 64 chars)", param)
	}
	return nil
}

// ValidateDate accepts "" (no bound) or a YYYY-MM-DD date.
func ValidateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", date, err)
	}
	return nil
}

// SanitizeMessage trims a chat message and checks its length and encoding.
//
// An empty result is returned without error: callers treat blank input as
// a no-op rather than a validation failure.
func SanitizeMessage(msg string) (string, error) {
	if !utf8.ValidString(msg) {
		return "", fmt.Errorf("message is not valid UTF-8")
	}
	trimmed := strings.TrimSpace(msg)
	if n := utf8.RuneCountInString(trimmed); n > MaxMessageRunes {
		return "", fmt.Errorf("message too long: %d characters (max %d)", n, MaxMessageRunes)
	}
	return trimmed, nil
}
