// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Proteo CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Proteo palette - Mediterranean blues and sea-grass greens
var (
	ColorSeaBright  = lipgloss.Color("#2CD7C7") // Bright sea - highlights
	ColorSeaPrimary = lipgloss.Color("#1E88C7") // Primary - titles
	ColorSeaDeep    = lipgloss.Color("#16587E") // Deep - borders
	ColorPosidonia  = lipgloss.Color("#3FA34D") // Sea grass - success
	ColorSlate      = lipgloss.Color("#5C6F78") // Muted text

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorSeaPrimary),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSeaDeep),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorPosidonia),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorSeaBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSeaDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconWave    Icon = "〰"
)

// IsTerminal reports whether f is an interactive terminal. NO_COLOR
// disables colour regardless.
func IsTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Printer writes styled output. With colour off every style degrades to
// plain text and boxes to indented blocks, so piped output stays
// grep-able.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a printer on w.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

// Stdout returns a printer on os.Stdout with colour when it is a TTY.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, IsTerminal(os.Stdout))
}

// Color reports whether styles are applied.
func (p *Printer) Color() bool { return p.color }

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Style renders text with s when colour is on.
func (p *Printer) Style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Icon renders i in its semantic colour.
func (p *Printer) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.Style(Styles.Success, string(i))
	case IconWarning:
		return p.Style(Styles.Warning, string(i))
	case IconError:
		return p.Style(Styles.Error, string(i))
	default:
		return string(i)
	}
}

// Println writes a line.
func (p *Printer) Println(text string) {
	fmt.Fprintln(p.w, text)
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	p.Println(p.Style(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	p.Println(p.Icon(IconSuccess) + " " + p.Style(Styles.Success, text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	p.Println(p.Icon(IconWarning) + " " + p.Style(Styles.Warning, text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	p.Println(p.Icon(IconError) + " " + p.Style(Styles.Error, text))
}

// Info prints an informational line
func (p *Printer) Info(text string) {
	p.Println(p.Style(Styles.Muted, "│") + " " + text)
}

// Muted prints secondary text
func (p *Printer) Muted(text string) {
	p.Println(p.Style(Styles.Muted, text))
}

// Box prints content under title in a rounded box.
func (p *Printer) Box(title, content string) {
	if !p.color {
		p.Println("== " + title + " ==")
		p.Println(content)
		return
	}
	p.Println(Styles.Box.Width(72).Render(Styles.Title.Render(title) + "\n" + content))
}

// ConfidenceBar renders value in [0, 1] as a bar of width cells.
func (p *Printer) ConfidenceBar(value float64, width int) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value*float64(width) + 0.5)

	style := Styles.Success
	switch {
	case value < 0.4:
		style = Styles.Error
	case value < 0.7:
		style = Styles.Warning
	}

	bar := p.Style(style, strings.Repeat("█", filled)) +
		p.Style(Styles.Muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, value*100)
}
