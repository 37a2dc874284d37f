// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalogadmin/internal/models"
)

// ErrEmptyPath is returned when a path has no non-blank segment.
var ErrEmptyPath = errors.New("category path is empty")

// PathSeparator splits a single-column category hierarchy ("A > B > C").
const PathSeparator = ">"

// Resolver maps a (name, parent, type) triple to a category id, creating
// the category when it does not exist.
type Resolver interface {
	GetOrCreate(ctx context.Context, name string, parentID *int64, t models.CategoryType) (int64, error)
}

// ResolveChain walks segments from root to leaf, resolving each one under
// the previously resolved segment, and returns the id of the leaf.
// Blank segments are skipped; the next non-blank one attaches to the last
// resolved parent.
func ResolveChain(ctx context.Context, r Resolver, t models.CategoryType, segments []string) (int64, error) {
	var parent *int64
	for _, seg := range segments {
		name := strings.TrimSpace(seg)
		if name == "" {
			continue
		}
		id, err := r.GetOrCreate(ctx, name, parent, t)
		if err != nil {
			return 0, fmt.Errorf("resolve %s category %q: %w", t, name, err)
		}
		parent = &id
	}
	if parent == nil {
		return 0, ErrEmptyPath
	}
	return *parent, nil
}

// NormalizeSegments trims every segment and drops the blank ones.
func NormalizeSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitPath splits a "Root > Child > Leaf" string into trimmed, non-blank
// segments.
func SplitPath(path string) []string {
	return NormalizeSegments(strings.Split(path, PathSeparator))
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segments []string) string {
	return strings.Join(segments, " "+PathSeparator+" ")
}
