// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"sync"
	"time"
)

var waveFrames = []string{"~", "≈", "≋", "≈"}

// Spinner provides an animated loading indicator. On a non-colour printer
// it prints the message once and never animates. A Spinner is single use.
type Spinner struct {
	p       *Printer
	message string
	stop    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	isRunning bool
}

// NewSpinner creates a spinner with the given message
func (p *Printer) NewSpinner(message string) *Spinner {
	return &Spinner{
		p:       p,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if !s.p.color {
		fmt.Fprintf(s.p.w, "%s...\n", s.message)
		close(s.done)
		return
	}

	go func() {
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.stop:
				fmt.Fprint(s.p.w, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				frame := Styles.Highlight.Render(waveFrames[i%len(waveFrames)])
				fmt.Fprintf(s.p.w, "\r%s %s", frame, s.message)
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.p.color {
		close(s.stop)
	}
	<-s.done
}

// WithSpinner runs fn with a spinner and reports an error line on failure.
func (p *Printer) WithSpinner(message string, fn func() error) error {
	spin := p.NewSpinner(message)
	spin.Start()
	err := fn()
	spin.Stop()
	if err != nil {
		p.Error(fmt.Sprintf("%s: %v", message, err))
	}
	return err
}
