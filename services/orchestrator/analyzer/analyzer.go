// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer extracts entities, intent and complexity from a user
// question.
//
// Matching is plain case-insensitive substring search against the
// knowledge catalog. There is no tokenization, so short names can match
// inside unrelated words; callers accept those false positives.
package analyzer

import (
	"strings"

	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
)

// Intent is the coarse purpose of a question.
type Intent string

const (
	IntentData        Intent = "data"
	IntentEducation   Intent = "education"
	IntentComparison  Intent = "comparison"
	IntentTrend       Intent = "trend"
	IntentExplanation Intent = "explanation"
)

// Complexity buckets a question for routing and metadata.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is the result of Analyze. Slices hold node ids in catalog
// order, except ScientificTerms which holds species display names.
type Analysis struct {
	Entities        []string   `json:"entities"`
	Parameters      []string   `json:"parameters"`
	Locations       []string   `json:"locations"`
	Species         []string   `json:"species"`
	Projects        []string   `json:"projects"`
	ScientificTerms []string   `json:"scientific_terms"`
	Intent          Intent     `json:"intent"`
	Complexity      Complexity `json:"complexity"`
}

// NodeSource provides the catalog to match against.
type NodeSource interface {
	Nodes() []knowledge.KnowledgeNode
}

// intentRules are evaluated in order; the first rule with a matching
// keyword wins.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentComparison, []string{"confronta", "differenza", "vs"}},
	{IntentTrend, []string{"trend", "andamento", "negli anni"}},
	{IntentExplanation, []string{"perché", "come", "spiegazione"}},
	{IntentEducation, []string{"curiosità", "impara", "cos'è"}},
}

// Analyzer is stateless apart from its catalog snapshot and is safe for
// concurrent use.
type Analyzer struct {
	nodes []knowledge.KnowledgeNode
}

// New snapshots the catalog of src.
func New(src NodeSource) *Analyzer {
	return &Analyzer{nodes: src.Nodes()}
}

// Analyze classifies text. The same text always yields the same Analysis.
func (a *Analyzer) Analyze(text string) Analysis {
	lower := strings.ToLower(text)

	out := Analysis{
		Entities:        []string{},
		Parameters:      []string{},
		Locations:       []string{},
		Species:         []string{},
		Projects:        []string{},
		ScientificTerms: []string{},
	}

	for _, n := range a.nodes {
		if !matches(lower, n) {
			continue
		}
		out.Entities = append(out.Entities, n.ID)
		switch n.Type {
		case knowledge.NodeParameter:
			out.Parameters = append(out.Parameters, n.ID)
		case knowledge.NodeLocation:
			out.Locations = append(out.Locations, n.ID)
		case knowledge.NodeSpecies:
			out.Species = append(out.Species, n.ID)
			out.ScientificTerms = append(out.ScientificTerms, n.Name)
		case knowledge.NodeProject:
			out.Projects = append(out.Projects, n.ID)
		}
	}

	out.Intent = detectIntent(lower)

	switch {
	case len(out.Entities) > 3 || len(out.ScientificTerms) > 1:
		out.Complexity = ComplexityComplex
	case len(out.Entities) > 1 || out.Intent != IntentData:
		out.Complexity = ComplexityModerate
	default:
		out.Complexity = ComplexitySimple
	}
	return out
}

func matches(lower string, n knowledge.KnowledgeNode) bool {
	if strings.Contains(lower, strings.ToLower(n.Name)) || strings.Contains(lower, n.ID) {
		return true
	}
	for _, alias := range n.Aliases {
		if strings.Contains(lower, alias) {
			return true
		}
	}
	return false
}

func detectIntent(lower string) Intent {
	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			return rule.intent
		}
	}
	return IntentData
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Keyword lists for AssessComplexity.
var (
	dataTerms       = []string{"temperatura", "clorofilla", "ph", "salinità", "onde", "ossigeno"}
	comparisonTerms = []string{"confronta", "vs", "differenza"}
	temporalTerms   = []string{"trend", "andamento", "negli anni"}
	scientificTerms = []string{"posidonia", "pinna nobilis", "cymodocea", "fitoplancton"}
)

// AssessComplexity is the keyword-score complexity reported in response
// metadata. It does not consult the catalog.
//
// Each data term and each scientific term present adds 1; any comparison
// word adds 2 and any temporal word adds 2. A score of 4 or more is
// complex, 2 or more is moderate.
func AssessComplexity(text string) Complexity {
	lower := strings.ToLower(text)

	score := countPresent(lower, dataTerms) + countPresent(lower, scientificTerms)
	if containsAny(lower, comparisonTerms) {
		score += 2
	}
	if containsAny(lower, temporalTerms) {
		score += 2
	}

	switch {
	case score >= 4:
		return ComplexityComplex
	case score >= 2:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

func countPresent(s string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(s, t) {
			n++
		}
	}
	return n
}
