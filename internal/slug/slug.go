// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug turns user-supplied names into lowercase, hyphenated
// strings that are safe to use as object-key segments.
package slug

import (
	"path"
	"regexp"
	"strings"
)

var (
	// nonAlphanumeric matches anything that isn't a letter, digit, space,
	// hyphen or underscore.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s_-]`)
	// separators are runs of whitespace and underscores.
	separators = regexp.MustCompile(`[\s_]+`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate creates a slug from the given string.
// Example: "Spring Prices (EU) 2026" → "spring-prices-eu-2026"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = separators.ReplaceAllString(result, "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// Filename slugs the base name of an uploaded file and keeps its
// extension, dropping any directory part the client sent. It returns
// fallback when nothing usable is left.
// Example: `C:\Exports\Vendor Feed.CSV` → "vendor-feed.csv"
func Filename(name, fallback string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(base)
	stem := Generate(strings.TrimSuffix(base, ext))
	ext = Generate(strings.TrimPrefix(ext, "."))

	switch {
	case stem == "" && ext == "":
		return fallback
	case stem == "":
		stem = fallback
	}
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}
