// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import "time"

// NodeType classifies a KnowledgeNode.
type NodeType string

const (
	NodeParameter   NodeType = "parameter"
	NodeLocation    NodeType = "location"
	NodeSpecies     NodeType = "species"
	NodeProject     NodeType = "project"
	NodePublication NodeType = "publication"
	NodeEvent       NodeType = "event"
)

// RelationType classifies a KnowledgeRelation.
type RelationType string

const (
	RelMeasures       RelationType = "measures"
	RelAffects        RelationType = "affects"
	RelLocatedIn      RelationType = "located_in"
	RelPartOf         RelationType = "part_of"
	RelStudies        RelationType = "studies"
	RelCorrelatesWith RelationType = "correlates_with"
)

// RelationStrengthThreshold is the minimum (exclusive) strength a relation
// needs for one-hop expansion.
const RelationStrengthThreshold = 0.5

// MaxRelatedNodes caps the result of FindRelated.
const MaxRelatedNodes = 10

// KnowledgeNode is one entry of the static catalog.
//
// Aliases are extra lower-case match terms, mostly Italian vocabulary for
// parameters whose display name would not appear verbatim in a question
// ("temperatura" for "Temperatura marina").
type KnowledgeNode struct {
	ID          string         `json:"id"`
	Type        NodeType       `json:"type"`
	Name        string         `json:"name"`
	Aliases     []string       `json:"aliases,omitempty"`
	Properties  map[string]any `json:"properties"`
	LastUpdated time.Time      `json:"last_updated"`
}

// KnowledgeRelation is a weighted edge. It is directed by type but
// traversed from either endpoint.
type KnowledgeRelation struct {
	ID       string         `json:"id"`
	From     string         `json:"from_node"`
	To       string         `json:"to_node"`
	Type     RelationType   `json:"type"`
	Strength float64        `json:"strength"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Other returns the endpoint opposite to id, or "" if id is not an endpoint.
func (r KnowledgeRelation) Other(id string) string {
	switch id {
	case r.From:
		return r.To
	case r.To:
		return r.From
	default:
		return ""
	}
}

// Stats summarizes the catalog.
type Stats struct {
	TotalNodes     int                  `json:"total_nodes"`
	TotalRelations int                  `json:"total_relations"`
	NodeTypes      map[NodeType]int     `json:"node_types"`
	RelationTypes  map[RelationType]int `json:"relation_types"`
}
