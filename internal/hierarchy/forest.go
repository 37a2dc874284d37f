// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package hierarchy holds the in-memory view of the category table and the
// algorithms that walk it: descendant closure, ancestry checks, subtree
// product totals and category-path resolution.
//
// The forest is stored arena-style: a flat map keyed by id with parent-id
// indirection. Every traversal is iterative and keeps a visited set, so
// corrupted rows that form a cycle terminate instead of looping forever.
package hierarchy

import (
	"sort"

	"catalogadmin/internal/models"
)

// Node is the minimal projection of a category row the forest needs.
type Node struct {
	ID       int64
	ParentID *int64
	Name     string
	Type     models.CategoryType
}

// Forest indexes category rows by id and by parent.
type Forest struct {
	nodes    map[int64]Node
	children map[int64][]int64
	roots    []int64
}

// NewForest builds a forest from flat rows. Rows whose parent is missing are
// treated as roots so they stay reachable.
func NewForest(rows []Node) *Forest {
	f := &Forest{
		nodes:    make(map[int64]Node, len(rows)),
		children: make(map[int64][]int64),
	}
	for _, n := range rows {
		f.nodes[n.ID] = n
	}
	for _, n := range rows {
		if n.ParentID == nil {
			f.roots = append(f.roots, n.ID)
			continue
		}
		if _, ok := f.nodes[*n.ParentID]; !ok {
			f.roots = append(f.roots, n.ID)
			continue
		}
		f.children[*n.ParentID] = append(f.children[*n.ParentID], n.ID)
	}
	sort.Slice(f.roots, func(i, j int) bool { return f.roots[i] < f.roots[j] })
	for id := range f.children {
		kids := f.children[id]
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	}
	return f
}

// Len returns the number of categories in the forest.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Node returns the row for id.
func (f *Forest) Node(id int64) (Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Children returns the direct children of id ordered by id.
func (f *Forest) Children(id int64) []int64 {
	return f.children[id]
}

// Roots returns the root ids of the given taxonomy. An empty type returns
// the roots of both.
func (f *Forest) Roots(t models.CategoryType) []int64 {
	var out []int64
	for _, id := range f.roots {
		if t == "" || f.nodes[id].Type == t {
			out = append(out, id)
		}
	}
	return out
}

// Descendants returns ids plus every category reachable from them through
// child edges, in breadth-first order without duplicates. Requested ids are
// included even when they are not in the forest.
func (f *Forest) Descendants(ids ...int64) []int64 {
	visited := make(map[int64]bool, len(ids))
	var out []int64
	queue := make([]int64, 0, len(ids))
	for _, id := range ids {
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range f.children[id] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Ancestors returns the parent chain of id from its parent up to the root.
// The walk stops at the first repeated id.
func (f *Forest) Ancestors(id int64) []int64 {
	var out []int64
	seen := map[int64]bool{id: true}
	n, ok := f.nodes[id]
	for ok && n.ParentID != nil {
		pid := *n.ParentID
		if seen[pid] {
			break
		}
		seen[pid] = true
		parent, exists := f.nodes[pid]
		if !exists {
			break
		}
		out = append(out, pid)
		n = parent
	}
	return out
}

// IsAncestor reports whether ancestor appears on the parent chain of id.
// A category is considered its own ancestor.
func (f *Forest) IsAncestor(ancestor, id int64) bool {
	if ancestor == id {
		return true
	}
	for _, a := range f.Ancestors(id) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// Depth returns the level id would have if levels were recomputed now
// (roots are 1). Unknown ids return 0.
func (f *Forest) Depth(id int64) int {
	if _, ok := f.nodes[id]; !ok {
		return 0
	}
	return len(f.Ancestors(id)) + 1
}

// PathNames returns the names from the root down to id.
func (f *Forest) PathNames(id int64) []string {
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	anc := f.Ancestors(id)
	names := make([]string, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		names = append(names, f.nodes[anc[i]].Name)
	}
	return append(names, n.Name)
}

// SubtreeTotals sums direct counts over each subtree: the result for a
// category is its own count plus the counts of all its descendants.
func (f *Forest) SubtreeTotals(direct map[int64]int) map[int64]int {
	totals := make(map[int64]int, len(f.nodes))
	visited := make(map[int64]bool, len(f.nodes))

	// Post-order via an explicit stack; a node is summed once all of its
	// children have been.
	type frame struct {
		id       int64
		expanded bool
	}
	for _, root := range f.roots {
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if !top.expanded {
				top.expanded = true
				if visited[top.id] {
					stack = stack[:len(stack)-1]
					continue
				}
				visited[top.id] = true
				for _, child := range f.children[top.id] {
					if !visited[child] {
						stack = append(stack, frame{id: child})
					}
				}
				continue
			}
			id := top.id
			stack = stack[:len(stack)-1]
			sum := direct[id]
			for _, child := range f.children[id] {
				sum += totals[child]
			}
			totals[id] = sum
		}
	}
	return totals
}
