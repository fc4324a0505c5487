// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge holds the static marine knowledge graph: parameters,
// marine areas, species and projects joined by weighted relations.
//
// # Thread Safety
//
// A Base is immutable after construction and safe for concurrent reads.
// Accessors return copies of nodes and relations.
package knowledge

import (
	"fmt"
	"sort"
	"time"
)

// Base is the read-only knowledge graph.
type Base struct {
	nodes     []KnowledgeNode
	index     map[string]int
	relations []KnowledgeRelation
}

// New builds a Base from nodes and relation specs.
//
// # Description
//
// Assigns relation ids rel_0..rel_N in input order and stamps every node
// with loadedAt. Fails if a node id repeats, a strength is outside [0,1],
// or a relation names an unknown endpoint.
//
// # Outputs
//
//   - *Base: The loaded graph.
//   - error: Non-nil if the catalog is inconsistent.
func New(nodes []KnowledgeNode, specs []RelationSpec, loadedAt time.Time) (*Base, error) {
	b := &Base{
		nodes: make([]KnowledgeNode, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("knowledge node with empty id (name %q)", n.Name)
		}
		if _, dup := b.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate knowledge node id %q", n.ID)
		}
		n.LastUpdated = loadedAt
		b.index[n.ID] = len(b.nodes)
		b.nodes = append(b.nodes, n)
	}

	b.relations = make([]KnowledgeRelation, 0, len(specs))
	for i, s := range specs {
		if _, ok := b.index[s.From]; !ok {
			return nil, fmt.Errorf("relation %d references unknown node %q", i, s.From)
		}
		if _, ok := b.index[s.To]; !ok {
			return nil, fmt.Errorf("relation %d references unknown node %q", i, s.To)
		}
		if s.Strength < 0 || s.Strength > 1 {
			return nil, fmt.Errorf("relation %d has strength %v outside [0,1]", i, s.Strength)
		}
		b.relations = append(b.relations, KnowledgeRelation{
			ID:       fmt.Sprintf("rel_%d", i),
			From:     s.From,
			To:       s.To,
			Type:     s.Type,
			Strength: s.Strength,
			Metadata: map[string]any{},
		})
	}

	return b, nil
}

// NewMarine loads the built-in Italian marine catalog.
func NewMarine() (*Base, error) {
	return New(MarineNodes(), MarineRelations(), time.Now().UTC())
}

// Node returns the node with the given id.
func (b *Base) Node(id string) (KnowledgeNode, bool) {
	i, ok := b.index[id]
	if !ok {
		return KnowledgeNode{}, false
	}
	return b.nodes[i], true
}

// Nodes returns all nodes in catalog order.
func (b *Base) Nodes() []KnowledgeNode {
	out := make([]KnowledgeNode, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Relations returns all relations in catalog order.
func (b *Base) Relations() []KnowledgeRelation {
	out := make([]KnowledgeRelation, len(b.relations))
	copy(out, b.relations)
	return out
}

// FindRelated expands nodeIDs by exactly one hop.
//
// # Description
//
// The result lists the directly named nodes first (in nodeIDs order),
// then, for each id in order, the opposite endpoint of every relation
// touching it whose strength is strictly greater than minStrength.
// Relations are walked from either end. Nodes appear once and the list
// is capped at MaxRelatedNodes.
func (b *Base) FindRelated(nodeIDs []string, minStrength float64) []KnowledgeNode {
	visited := make(map[string]bool)
	var out []KnowledgeNode

	add := func(id string) {
		if visited[id] {
			return
		}
		if n, ok := b.Node(id); ok {
			visited[id] = true
			out = append(out, n)
		}
	}

	for _, id := range nodeIDs {
		add(id)
	}

	for _, id := range nodeIDs {
		for _, rel := range b.relations {
			if rel.Strength <= minStrength {
				continue
			}
			if other := rel.Other(id); other != "" {
				add(other)
			}
		}
	}

	if len(out) > MaxRelatedNodes {
		out = out[:MaxRelatedNodes]
	}
	return out
}

// RelationsTouching returns every relation with at least one endpoint in
// nodeIDs, strongest first. Ties keep catalog order.
func (b *Base) RelationsTouching(nodeIDs []string) []KnowledgeRelation {
	set := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		set[id] = true
	}

	var out []KnowledgeRelation
	for _, rel := range b.relations {
		if set[rel.From] || set[rel.To] {
			out = append(out, rel)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}

// Stats counts nodes and relations by type.
func (b *Base) Stats() Stats {
	s := Stats{
		TotalNodes:     len(b.nodes),
		TotalRelations: len(b.relations),
		NodeTypes:      make(map[NodeType]int),
		RelationTypes:  make(map[RelationType]int),
	}
	for _, n := range b.nodes {
		s.NodeTypes[n.Type]++
	}
	for _, r := range b.relations {
		s.RelationTypes[r.Type]++
	}
	return s
}
