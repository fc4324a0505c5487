// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers:
//   - RetrievalComposer grounds a question in the knowledge base, open
//     data and the bibliography, and renders the answer.
//   - ChatOrchestrator runs the per-session send pipeline around it.
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Traceable: All blocking methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianProteo/services/opendata"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/analyzer"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
)

// composerTracer is the OpenTelemetry tracer for RetrievalComposer operations.
var composerTracer = otel.Tracer("proteo.orchestrator.services.composer")

const (
	// sourcesPerParameter caps how many catalog sources are queried for
	// each detected parameter.
	sourcesPerParameter = 2

	maxDataLines        = 3
	maxRelationLines    = 3
	maxPublicationLines = 2
	maxSuggestions      = 3

	dataReliability    = 0.9
	failedDataScore    = 0.3
	neutralConfidence  = 0.5
	fallbackConfidence = 0.3

	merCitationID   = "cite_mer_project"
	merCitationText = "Progetto MER - Marine Ecosystem Restoration (2022-2026), ISPRA"
	merCitationURL  = "https://www.isprambiente.gov.it/en/projects/sea/pnrr-mer-marine-ecosystem-restoration"
)

// =============================================================================
// Interfaces
// =============================================================================

// KnowledgeSource is the read-only knowledge graph the composer queries.
//
// Implemented by *knowledge.Base.
type KnowledgeSource interface {
	Nodes() []knowledge.KnowledgeNode
	Node(id string) (knowledge.KnowledgeNode, bool)
	FindRelated(nodeIDs []string, minStrength float64) []knowledge.KnowledgeNode
	RelationsTouching(nodeIDs []string) []knowledge.KnowledgeRelation
}

// DataGateway is the subset of the open-data gateway the composer uses.
//
// Implemented by *opendata.Gateway.
type DataGateway interface {
	SourcesFor(parameter string) []opendata.Source
	FetchMany(ctx context.Context, queries []opendata.DataQuery) []opendata.DataResponse
	RecentRange() (from, to string)
}

// MemoryContext renders prior-turn context for a session.
//
// Implemented by *conversation.Store.
type MemoryContext interface {
	ContextFor(query, sessionID string) string
}

// =============================================================================
// RetrievalComposer
// =============================================================================

// RetrievalComposer turns a question into a grounded RAGResult.
//
// # Description
//
// Compose runs, in order: query analysis, memory lookup, knowledge-graph
// resolution with one-hop expansion, open-data fan-out, bibliography
// matching, answer rendering, provenance, suggestions, visualizations and
// confidence scoring. The memory, knowledge, data and bibliography steps
// are individually guarded; a panic there only removes that step's
// contribution. A panic anywhere else yields the fixed fallback result.
//
// # Thread Safety
//
// Safe for concurrent use if its dependencies are.
type RetrievalComposer struct {
	kb        KnowledgeSource
	gateway   DataGateway
	memory    MemoryContext
	analyzer  *analyzer.Analyzer
	catalog   []Publication
	threshold float64
	logger    *slog.Logger
}

// ComposerOption configures a RetrievalComposer.
type ComposerOption func(*RetrievalComposer)

// WithRelationThreshold overrides knowledge.RelationStrengthThreshold.
func WithRelationThreshold(t float64) ComposerOption {
	return func(c *RetrievalComposer) { c.threshold = t }
}

// WithPublications replaces the built-in bibliography.
func WithPublications(p []Publication) ComposerOption {
	return func(c *RetrievalComposer) { c.catalog = p }
}

// WithComposerLogger sets the logger. Default: slog.Default().
func WithComposerLogger(l *slog.Logger) ComposerOption {
	return func(c *RetrievalComposer) { c.logger = l }
}

// NewRetrievalComposer wires a composer. memory may be nil.
func NewRetrievalComposer(kb KnowledgeSource, gateway DataGateway, memory MemoryContext, opts ...ComposerOption) *RetrievalComposer {
	c := &RetrievalComposer{
		kb:        kb,
		gateway:   gateway,
		memory:    memory,
		analyzer:  analyzer.New(kb),
		catalog:   Publications(),
		threshold: knowledge.RelationStrengthThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose answers query for the session.
//
// # Inputs
//
//   - ctx: Bounds the open-data fan-out.
//   - query: The user text.
//   - sessionID: Conversation memory session; "" skips memory.
//   - userID: Optional, for tracing only.
//
// # Outputs
//
//   - datatypes.RAGResult: Never zero. Fallback is set when the pipeline
//     failed.
func (c *RetrievalComposer) Compose(ctx context.Context, query, sessionID, userID string) (result datatypes.RAGResult) {
	ctx, span := composerTracer.Start(ctx, "RetrievalComposer.Compose",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Bool("user.present", userID != ""),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("compose panicked: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Error("retrieval composition failed, returning fallback",
				"session_id", sessionID, "panic", r)
			result = FallbackResult(query)
		}
	}()

	analysis := c.analyzer.Analyze(query)

	memoryContext := guard(c, "memory", func() string {
		if c.memory == nil || sessionID == "" {
			return ""
		}
		return c.memory.ContextFor(query, sessionID)
	})

	nodes := guard(c, "knowledge", func() []knowledge.KnowledgeNode {
		return c.kb.FindRelated(analysis.Entities, c.threshold)
	})

	data := guard(c, "opendata", func() []opendata.DataResponse {
		return c.fetchData(ctx, analysis.Parameters, analysis.Locations)
	})

	publications := guard(c, "publications", func() []Publication {
		return matchPublications(c.catalog, analysis.ScientificTerms)
	})

	confidence := confidenceScore(data, publications, nodes)

	result = datatypes.RAGResult{
		Answer:         c.renderAnswer(query, analysis, memoryContext, nodes, data, publications, confidence),
		Sources:        buildSources(data, publications),
		Citations:      buildCitations(data, publications),
		Confidence:     confidence,
		Suggestions:    buildSuggestions(analysis.Intent, nodes),
		Visualizations: buildVisualizations(data, analysis.Parameters),
		RelatedNodes:   nodes,
		DemoData:       anyDegraded(data),
		Complexity:     datatypes.Complexity(analysis.Complexity),
	}
	if result.RelatedNodes == nil {
		result.RelatedNodes = []knowledge.KnowledgeNode{}
	}

	span.SetAttributes(
		attribute.String("query.intent", string(analysis.Intent)),
		attribute.Int("knowledge.nodes", len(nodes)),
		attribute.Int("opendata.responses", len(data)),
		attribute.Int("publications.matched", len(publications)),
		attribute.Float64("rag.confidence", confidence),
	)
	return result
}

// guard runs one optional pipeline step, turning a panic into the zero
// value of its result.
func guard[T any](c *RetrievalComposer, step string, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("composer step failed, continuing without it", "step", step, "panic", r)
			var zero T
			out = zero
		}
	}()
	return fn()
}

// fetchData queries the first sources of every parameter for every
// location ("" when none was detected) over the last seven days and keeps
// the successes in query order.
func (c *RetrievalComposer) fetchData(ctx context.Context, parameters, locations []string) []opendata.DataResponse {
	if len(parameters) == 0 {
		return nil
	}
	if len(locations) == 0 {
		locations = []string{""}
	}
	from, to := c.gateway.RecentRange()

	var queries []opendata.DataQuery
	for _, parameter := range parameters {
		sources := c.gateway.SourcesFor(parameter)
		if len(sources) > sourcesPerParameter {
			sources = sources[:sourcesPerParameter]
		}
		for _, location := range locations {
			for _, src := range sources {
				queries = append(queries, opendata.DataQuery{
					Source:    src.ID,
					Parameter: parameter,
					Location:  location,
					DateFrom:  from,
					DateTo:    to,
				})
			}
		}
	}
	if len(queries) == 0 {
		return nil
	}
	return opendata.Successful(c.gateway.FetchMany(ctx, queries))
}

// =============================================================================
// Answer Rendering
// =============================================================================

var typeLabels = map[knowledge.NodeType]string{
	knowledge.NodeParameter: "Parametri",
	knowledge.NodeLocation:  "Zone Marine",
	knowledge.NodeSpecies:   "Specie",
	knowledge.NodeProject:   "Progetti",
}

var relationLabels = map[knowledge.RelationType]string{
	knowledge.RelAffects:        "influenza",
	knowledge.RelLocatedIn:      "si trova in",
	knowledge.RelStudies:        "studia",
	knowledge.RelCorrelatesWith: "correlato con",
	knowledge.RelMeasures:       "misura",
	knowledge.RelPartOf:         "fa parte di",
}

var interpretations = map[analyzer.Intent]string{
	analyzer.IntentComparison:  "I dati mostrano differenze significative tra i parametri analizzati. ",
	analyzer.IntentTrend:       "L'analisi temporale rivela tendenze importanti nei dati marini. ",
	analyzer.IntentExplanation: "I fenomeni osservati sono spiegabili attraverso le relazioni ecologiche identificate. ",
	analyzer.IntentEducation:   "Questi dati offrono interessanti spunti educativi sui mari italiani. ",
}

const defaultInterpretation = "I dati attuali forniscono un quadro aggiornato della situazione marina. "

func (c *RetrievalComposer) renderAnswer(
	query string,
	analysis analyzer.Analysis,
	memoryContext string,
	nodes []knowledge.KnowledgeNode,
	data []opendata.DataResponse,
	publications []Publication,
	confidence float64,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔬 **Analisi Marine Avanzata per: \"%s\"**\n\n", query)

	if len(data) > 0 {
		b.WriteString("📊 **DATI IN TEMPO REALE:**\n")
		for _, resp := range head(data, maxDataLines) {
			if len(resp.Readings) == 0 {
				continue
			}
			latest := resp.Readings[0]
			fmt.Fprintf(&b, "• **%s**: %s %s (%s)\n", resp.Parameter, formatValue(latest.Value), latest.Unit, latest.Location)
			fmt.Fprintf(&b, "  ↳ Fonte: %s - Qualità: %s\n", resp.Metadata.Citation, resp.Metadata.Quality)
		}
		b.WriteString("\n")
	}

	if len(nodes) > 0 {
		b.WriteString("🧠 **INSIGHTS DAL KNOWLEDGE GRAPH:**\n")
		for _, group := range groupByType(nodes) {
			label, ok := typeLabels[group.nodeType]
			if !ok {
				label = string(group.nodeType)
			}
			fmt.Fprintf(&b, "• **%s**: %s\n", label, strings.Join(group.names, ", "))
		}

		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		if relations := c.kb.RelationsTouching(ids); len(relations) > 0 {
			b.WriteString("\n**Relazioni identificate:**\n")
			for _, rel := range head(relations, maxRelationLines) {
				from, okFrom := c.kb.Node(rel.From)
				to, okTo := c.kb.Node(rel.To)
				if !okFrom || !okTo {
					continue
				}
				label, ok := relationLabels[rel.Type]
				if !ok {
					label = string(rel.Type)
				}
				fmt.Fprintf(&b, "• %s %s %s (forza: %d%%)\n", from.Name, label, to.Name, percent(rel.Strength))
			}
		}
		b.WriteString("\n")
	}

	if len(publications) > 0 {
		b.WriteString("📚 **PUBBLICAZIONI SCIENTIFICHE RILEVANTI:**\n")
		for _, p := range head(publications, maxPublicationLines) {
			fmt.Fprintf(&b, "• **%s** (%d)\n", p.Title, p.Year)
			fmt.Fprintf(&b, "  Autori: %s\n", strings.Join(p.Authors, ", "))
			fmt.Fprintf(&b, "  DOI: %s\n", p.DOI)
		}
		b.WriteString("\n")
	}

	b.WriteString("💡 **INTERPRETAZIONE:**\n")
	if s, ok := interpretations[analysis.Intent]; ok {
		b.WriteString(s)
	} else {
		b.WriteString(defaultInterpretation)
	}
	if strings.Contains(memoryContext, "PATTERN") {
		b.WriteString("\nBasandomi sulla nostra conversazione precedente, noto pattern ricorrenti che arricchiscono questa analisi. ")
	}
	b.WriteString("\n\n")

	b.WriteString("🔍 **METODOLOGIA:**\n")
	b.WriteString("Questa risposta integra dati real-time da fonti ufficiali (ISPRA, EMODnet, Copernicus), ")
	b.WriteString("knowledge graph marino, pubblicazioni scientifiche peer-reviewed e memoria conversazionale. ")
	fmt.Fprintf(&b, "Affidabilità complessiva: %d%%\n\n", percent(confidence))

	return b.String()
}

type nodeGroup struct {
	nodeType knowledge.NodeType
	names    []string
}

// groupByType groups node names by type in first-seen type order.
func groupByType(nodes []knowledge.KnowledgeNode) []nodeGroup {
	var groups []nodeGroup
	index := make(map[knowledge.NodeType]int)
	for _, n := range nodes {
		i, ok := index[n.Type]
		if !ok {
			i = len(groups)
			index[n.Type] = i
			groups = append(groups, nodeGroup{nodeType: n.Type})
		}
		groups[i].names = append(groups[i].names, n.Name)
	}
	return groups
}

// =============================================================================
// Provenance
// =============================================================================

func buildCitations(data []opendata.DataResponse, publications []Publication) []datatypes.CitationInfo {
	out := make([]datatypes.CitationInfo, 0, len(data)+len(publications)+1)
	for _, resp := range data {
		out = append(out, datatypes.CitationInfo{
			ID:         "cite_" + datatypes.NewID(),
			Text:       resp.Metadata.Citation,
			Source:     resp.Source,
			URL:        resp.Metadata.URL,
			Type:       datatypes.CitationData,
			Confidence: dataReliability,
		})
	}
	for _, p := range publications {
		out = append(out, datatypes.CitationInfo{
			ID:         "cite_" + p.ID,
			Text:       fmt.Sprintf("%s (%d). %s. %s.", strings.Join(p.Authors, ", "), p.Year, p.Title, p.Journal),
			Source:     p.Journal,
			URL:        p.DOIURL(),
			Type:       datatypes.CitationPublication,
			Confidence: p.Relevance,
		})
	}
	out = append(out, datatypes.CitationInfo{
		ID:         merCitationID,
		Text:       merCitationText,
		Source:     "ISPRA MER Project",
		URL:        merCitationURL,
		Type:       datatypes.CitationReport,
		Confidence: 1.0,
	})
	return out
}

func buildSources(data []opendata.DataResponse, publications []Publication) []datatypes.DataSourceInfo {
	out := make([]datatypes.DataSourceInfo, 0, len(data)+len(publications))
	for _, resp := range data {
		out = append(out, datatypes.DataSourceInfo{
			ID:          resp.Source,
			Name:        resp.Metadata.Citation,
			Type:        datatypes.SourceRealtime,
			URL:         resp.Metadata.URL,
			Timestamp:   resp.Metadata.QueryTime,
			Reliability: dataReliability,
		})
	}
	for _, p := range publications {
		out = append(out, datatypes.DataSourceInfo{
			ID:          p.ID,
			Name:        p.Journal,
			Type:        datatypes.SourcePublication,
			URL:         p.DOIURL(),
			Timestamp:   time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Reliability: p.Relevance,
		})
	}
	return out
}

// =============================================================================
// Suggestions and Visualizations
// =============================================================================

var intentSuggestions = map[analyzer.Intent][]string{
	analyzer.IntentData: {
		"Vuoi vedere i trend storici di questi parametri?",
		"Ti interessa confrontare con altre zone del Mediterraneo?",
	},
	analyzer.IntentEducation: {
		"Vuoi approfondire gli aspetti di conservazione?",
		"Ti interessa il progetto MER per il ripristino degli ecosistemi?",
	},
	analyzer.IntentComparison: {
		"Posso mostrarti anche i dati delle zone adiacenti",
		"Vuoi analizzare le correlazioni tra questi parametri?",
	},
}

func buildSuggestions(intent analyzer.Intent, nodes []knowledge.KnowledgeNode) []string {
	out := append([]string{}, intentSuggestions[intent]...)

	parameterNodes := 0
	for _, n := range nodes {
		switch n.Type {
		case knowledge.NodeSpecies:
			out = append(out, fmt.Sprintf("Vuoi sapere di più sulla conservazione di %s?", n.Name))
		case knowledge.NodeParameter:
			parameterNodes++
		}
	}
	if parameterNodes > 1 {
		out = append(out, "Ti interessa vedere come questi parametri si influenzano a vicenda?")
	}
	return head(out, maxSuggestions)
}

func buildVisualizations(data []opendata.DataResponse, parameters []string) []datatypes.VisualizationSpec {
	if len(data) == 0 || len(parameters) == 0 {
		return nil
	}

	var out []datatypes.VisualizationSpec
	for _, resp := range data {
		if len(resp.Readings) > 1 {
			out = append(out, datatypes.VisualizationSpec{
				Type:  datatypes.VisualizationTimeseries,
				Title: "Serie Temporale: " + resp.Parameter,
				Data:  resp.Readings,
				Config: map[string]any{
					"xField": "timestamp",
					"yField": "value",
					"title":  "Andamento " + resp.Parameter,
					"unit":   resp.Readings[0].Unit,
				},
			})
			break
		}
	}
	for _, resp := range data {
		if hasCoordinates(resp.Readings) {
			out = append(out, datatypes.VisualizationSpec{
				Type:  datatypes.VisualizationMap,
				Title: "Mappa Dati Marini",
				Data:  resp.Readings,
				Config: map[string]any{
					"latField":   "latitude",
					"lonField":   "longitude",
					"valueField": "value",
					"title":      "Distribuzione Spaziale",
				},
			})
			break
		}
	}
	return out
}

func hasCoordinates(readings []opendata.Reading) bool {
	for _, r := range readings {
		if r.HasCoordinates() {
			return true
		}
	}
	return false
}

// =============================================================================
// Confidence
// =============================================================================

// confidenceScore averages the contributing categories: data availability
// (weight 0.4), publication relevance (0.3) and knowledge coverage (0.3,
// scaled by 0.8). It is 0.5 when nothing contributed.
func confidenceScore(data []opendata.DataResponse, publications []Publication, nodes []knowledge.KnowledgeNode) float64 {
	var score float64
	var factors int

	if len(data) > 0 {
		var sum float64
		for _, resp := range data {
			if resp.Success {
				sum += dataReliability
			} else {
				sum += failedDataScore
			}
		}
		score += sum / float64(len(data)) * 0.4
		factors++
	}

	if len(publications) > 0 {
		var sum float64
		for _, p := range publications {
			sum += p.Relevance
		}
		score += sum / float64(len(publications)) * 0.3
		factors++
	}

	if len(nodes) > 0 {
		coverage := math.Min(float64(len(nodes))/5, 1.0) * 0.8
		score += coverage * 0.3
		factors++
	}

	if factors == 0 {
		return neutralConfidence
	}
	return math.Max(0, math.Min(score/float64(factors), 1.0))
}

func anyDegraded(data []opendata.DataResponse) bool {
	for _, resp := range data {
		if resp.Degraded() {
			return true
		}
	}
	return false
}

// =============================================================================
// Fallback
// =============================================================================

var fallbackSuggestions = [...]string{
	"Riprova con una domanda più specifica",
	"Chiedi informazioni sui progetti di conservazione marina",
	"Esplora i dati di una singola area marina",
}

// FallbackSuggestions returns a fresh copy of the suggestions offered with
// FallbackResult.
func FallbackSuggestions() []string {
	return append([]string(nil), fallbackSuggestions[:]...)
}

// FallbackResult is the fixed low-confidence result for a failed
// composition.
func FallbackResult(query string) datatypes.RAGResult {
	answer := fmt.Sprintf("🌊 Mi dispiace, si è verificato un problema nell'elaborazione avanzata della tua domanda: \"%s\".\n\n", query) +
		"Ho comunque raccolto alcune informazioni di base dai nostri dati marini. Per un'analisi più dettagliata, potresti riprovare tra qualche minuto.\n\n" +
		"💡 **Suggerimento**: Prova a essere più specifico nella tua domanda, ad esempio \"temperatura del mare Adriatico oggi\" o \"livelli clorofilla Mediterraneo\"."

	return datatypes.RAGResult{
		Answer:       answer,
		Sources:      []datatypes.DataSourceInfo{},
		Citations:    []datatypes.CitationInfo{},
		Confidence:   fallbackConfidence,
		Suggestions:  FallbackSuggestions(),
		RelatedNodes: []knowledge.KnowledgeNode{},
		Complexity:   datatypes.ComplexitySimple,
		Fallback:     true,
	}
}

// =============================================================================
// Helpers
// =============================================================================

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// formatValue prints the shortest decimal that round-trips.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
