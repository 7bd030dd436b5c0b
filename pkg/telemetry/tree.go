// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"sort"
)

// Tree reconstructs the trace's span hierarchy from the flat span set.
//
// Children are grouped under their declared parent. Spans whose parent is
// not part of the trace (orphans: the parent hasn't arrived, or never
// will) attach under the returned root so the tree is always fully
// connected and renderable. When a true root span exists and nothing is
// orphaned, the root node wraps that span; otherwise a synthetic root
// (Span == nil) holds the root span and every orphan as siblings.
//
// Sibling order is span start time with span ID as the tie-break. The
// result is built from the trace's current span slice; it does not alias
// the trace and is safe to hold after the trace is refreshed.
func (t *Trace) Tree() *TreeNode {
	if len(t.Spans) == 0 {
		return &TreeNode{}
	}

	nodes := make(map[string]*TreeNode, len(t.Spans))
	for _, s := range t.Spans {
		nodes[s.SpanID] = &TreeNode{Span: s}
	}

	// Top-level nodes: real roots plus orphans whose parent is absent.
	var top []*TreeNode
	for _, s := range t.Spans {
		node := nodes[s.SpanID]
		if s.ParentSpanID == "" {
			top = append(top, node)
			continue
		}
		parent, present := nodes[s.ParentSpanID]
		if !present || s.ParentSpanID == s.SpanID {
			// Orphan, or a span claiming itself as parent.
			top = append(top, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, node := range nodes {
		sortSiblings(node.Children)
	}
	sortSiblings(top)

	// A single top-level node that is a real root needs no synthetic
	// wrapper. Anything else hangs under one.
	if len(top) == 1 && top[0].Span.ParentSpanID == "" {
		return top[0]
	}
	return &TreeNode{Children: top}
}

func sortSiblings(nodes []*TreeNode) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Span, nodes[j].Span
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.SpanID < b.SpanID
	})
}

// Walk visits every node in the subtree rooted at n in depth-first
// order, calling fn with the node and its depth (root is depth 0).
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(node *TreeNode, depth int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}
