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
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWarmInterval is the period between background refreshes.
const DefaultWarmInterval = 15 * time.Minute

// WarmerStatus is a point-in-time view of the warmer.
type WarmerStatus struct {
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	LastUpdate time.Time     `json:"last_update,omitempty"`
	LastCount  int           `json:"last_count"`
}

// Warmer periodically refreshes the gateway cache for every catalogued
// parameter so that interactive queries hit warm entries.
//
// Thread Safety: Start and Stop may be called from any goroutine. Start is
// a no-op while running.
type Warmer struct {
	gateway  *Gateway
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastUpdate time.Time
	lastCount  int
}

// NewWarmer creates a warmer. A non-positive interval selects
// DefaultWarmInterval.
func NewWarmer(gateway *Gateway, interval time.Duration, logger *slog.Logger) *Warmer {
	if interval <= 0 {
		interval = DefaultWarmInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{
		gateway:  gateway,
		interval: interval,
		logger:   logger.With(slog.String("subsystem", "opendata_warmer")),
	}
}

// Start runs one refresh immediately and then one per interval until ctx
// is cancelled or Stop is called.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop halts the loop and waits for an in-flight refresh to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("open data warmer stopped")
}

func (w *Warmer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("open data warmer started", slog.Duration("interval", w.interval))
	w.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh fetches every catalogued parameter from every source that
// supports it and returns the number of successful responses.
func (w *Warmer) Refresh(ctx context.Context) int {
	count := 0
	for _, parameter := range w.parameters() {
		if ctx.Err() != nil {
			break
		}
		count += len(w.gateway.FetchAll(ctx, parameter, ""))
	}

	now := w.gateway.clock.Now()
	w.mu.Lock()
	w.lastUpdate = now
	w.lastCount = count
	w.mu.Unlock()

	w.logger.Info("open data cache refreshed",
		slog.Int("responses", count),
		slog.Int("sources", len(w.gateway.sources)),
	)
	return count
}

// Status reports whether the loop is running and when it last refreshed.
func (w *Warmer) Status() WarmerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WarmerStatus{
		Running:    w.cancel != nil,
		Interval:   w.interval,
		LastUpdate: w.lastUpdate,
		LastCount:  w.lastCount,
	}
}

// parameters lists distinct parameters in catalog order.
func (w *Warmer) parameters() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range w.gateway.sources {
		for _, p := range s.Parameters {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
