// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianProteo/pkg/ux"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

const barWidth = 20

// renderAnswer prints an assistant reply.
func renderAnswer(p *ux.Printer, resp datatypes.ChatResponse) {
	msg := resp.Message
	p.Box("Proteo", strings.TrimSpace(msg.Content))

	if msg.Confidence != nil {
		p.Info("Affidabilità  " + p.ConfidenceBar(*msg.Confidence, barWidth))
	}
	switch msg.DataType {
	case datatypes.DataTypeReal:
		p.Info("Dati          " + p.Style(ux.Styles.Success, "reali"))
	case datatypes.DataTypeDemo:
		p.Info("Dati          " + p.Style(ux.Styles.Warning, "dimostrativi"))
	}
	if len(msg.Sources) > 0 {
		p.Info("Fonti         " + strings.Join(msg.Sources, ", "))
	}
	if msg.Metadata != nil && msg.Metadata.Enhanced {
		p.Info("Arricchita    " + p.Style(ux.Styles.Highlight, "sì"))
	}

	if len(msg.Citations) > 0 {
		p.Println("")
		p.Title("Citazioni")
		for _, c := range msg.Citations {
			line := fmt.Sprintf("%s %s", ux.IconBullet, c.Text)
			if c.URL != "" {
				line += " " + p.Style(ux.Styles.Muted, c.URL)
			}
			p.Println(line)
		}
	}

	if len(msg.Suggestions) > 0 {
		p.Println("")
		p.Title("Puoi chiedere anche")
		for _, s := range msg.Suggestions {
			p.Println(fmt.Sprintf("%s %s", ux.IconArrow, s))
		}
	}

	p.Println("")
	p.Muted(fmt.Sprintf("session %s  (proteo ask --session %s ...)", resp.SessionID, resp.SessionID))
}

// renderHealth prints a health report.
func renderHealth(p *ux.Printer, report services.HealthReport) {
	p.Title("Proteo system status")

	names := make([]string, 0, len(report.Systems))
	for name := range report.Systems {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		icon := ux.IconSuccess
		if !report.Systems[name] {
			icon = ux.IconError
		}
		p.Println(fmt.Sprintf("  %s %s", p.Icon(icon), name))
	}
	p.Println("")

	if report.Overall {
		p.Success(report.Summary)
	} else {
		p.Warning(report.Summary)
	}
	for _, problem := range report.Problems {
		p.Muted("  " + problem)
	}
}

// renderSources prints the open-data catalog.
func renderSources(p *ux.Printer, list SourceList) {
	p.Title(fmt.Sprintf("Open-data sources (%d)", len(list.Sources)))
	for _, s := range list.Sources {
		p.Println(fmt.Sprintf("%s %s %s", ux.IconWave, p.Style(ux.Styles.Bold, s.ID), p.Style(ux.Styles.Muted, "- "+s.Name)))
		p.Println("    parameters: " + strings.Join(s.Parameters, ", "))
		if s.UpdateFrequency != "" {
			p.Println("    updated:    " + s.UpdateFrequency)
		}
		if s.AuthRequired {
			p.Println("    " + p.Style(ux.Styles.Warning, "requires an API key"))
		}
	}
	p.Println("")
	p.Muted(fmt.Sprintf("cache: %d entries, %d hits, %d misses, %d evictions",
		list.Cache.Size, list.Cache.Hits, list.Cache.Misses, list.Cache.Evictions))
}
