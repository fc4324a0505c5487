// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
)

// SourceType classifies a DataSourceInfo.
type SourceType string

const (
	SourceRealtime    SourceType = "realtime"
	SourceHistorical  SourceType = "historical"
	SourcePublication SourceType = "publication"
	SourceProject     SourceType = "project"
)

// CitationType classifies a CitationInfo.
type CitationType string

const (
	CitationData        CitationType = "data"
	CitationPublication CitationType = "publication"
	CitationReport      CitationType = "report"
	CitationWebsite     CitationType = "website"
)

// VisualizationType names the chart a client should draw.
type VisualizationType string

const (
	VisualizationTimeseries VisualizationType = "timeseries"
	VisualizationMap        VisualizationType = "map"
	VisualizationChart      VisualizationType = "chart"
	VisualizationComparison VisualizationType = "comparison"
)

// DataSourceInfo is one source that contributed to a RAGResult.
type DataSourceInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        SourceType `json:"type"`
	URL         string     `json:"url,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	Reliability float64    `json:"reliability"`
}

// CitationInfo is a citable reference attached to an answer.
type CitationInfo struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Source     string       `json:"source"`
	URL        string       `json:"url,omitempty"`
	Type       CitationType `json:"type"`
	Confidence float64      `json:"confidence"`
}

// VisualizationSpec describes a chart over data the answer already
// contains. Data holds the readings as returned by the gateway.
type VisualizationSpec struct {
	Type   VisualizationType `json:"type"`
	Title  string            `json:"title"`
	Data   any               `json:"data"`
	Config map[string]any    `json:"config"`
}

// RAGResult is the transient output of one composition.
//
// # Fields
//
//   - Answer: Markdown answer text in Italian.
//   - Sources, Citations: Provenance, realtime data first.
//   - Confidence: In [0,1]; 0.5 when nothing contributed.
//   - Suggestions: At most three follow-up questions.
//   - Visualizations: Optional chart specs.
//   - RelatedNodes: Knowledge nodes the answer drew on.
//   - DemoData: True when any data response used was synthesized locally.
//   - Complexity: The analyzer's complexity for the query.
//   - Fallback: True when the pipeline failed and the apology was returned.
type RAGResult struct {
	Answer         string                    `json:"answer"`
	Sources        []DataSourceInfo          `json:"sources"`
	Citations      []CitationInfo            `json:"citations"`
	Confidence     float64                   `json:"confidence"`
	Suggestions    []string                  `json:"follow_up_suggestions"`
	Visualizations []VisualizationSpec       `json:"visualizations,omitempty"`
	RelatedNodes   []knowledge.KnowledgeNode `json:"related_nodes"`
	DemoData       bool                      `json:"demo_data"`
	Complexity     Complexity                `json:"complexity,omitempty"`
	Fallback       bool                      `json:"fallback,omitempty"`
}

// SourceNames returns the display names of the result's sources in order.
func (r RAGResult) SourceNames() []string {
	out := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		out = append(out, s.Name)
	}
	return out
}
