// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package opendata

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateWindow is the period over which a source's limit applies.
const rateWindow = 60 * time.Second

// limiterSet holds one fixed window per source id.
//
// A window opens on the first call after the previous one expired and
// admits `limit` calls until it closes rateWindow later. Nothing refills in
// between. Each window is a rate.Limiter with a zero rate and a burst of
// `limit`, replaced when the window closes. Time always comes from the
// caller so an injected clock drives the windows.
type limiterSet struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	limiter *rate.Limiter
	resetAt time.Time
}

func newLimiterSet() *limiterSet {
	return &limiterSet{windows: make(map[string]*window)}
}

// allow records one call for sourceID at time now and reports whether it
// fits in the current window.
func (s *limiterSet) allow(sourceID string, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[sourceID]
	if !ok || !now.Before(w.resetAt) {
		w = &window{
			limiter: rate.NewLimiter(0, limit),
			resetAt: now.Add(rateWindow),
		}
		s.windows[sourceID] = w
	}
	return w.limiter.AllowN(now, 1)
}
