// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the embedded static configuration for the analysis
// engine, currently the canonical category taxonomy.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Category Taxonomy Configuration
// =============================================================================

//go:embed category_taxonomy.yaml
var defaultCategoryTaxonomyYAML []byte

// CategoryEntry is one canonical category with its subcategories.
type CategoryEntry struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories"`
}

// AliasEntry maps informal user vocabulary onto a canonical category.
type AliasEntry struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// Taxonomy is the loaded category taxonomy. Entry order is preserved from
// the YAML file because category inference scans entries top to bottom.
//
// # Thread Safety
//
// Safe for concurrent use after initialization (immutable after load).
type Taxonomy struct {
	Categories []CategoryEntry `yaml:"categories"`
	Aliases    []AliasEntry    `yaml:"aliases"`
}

var (
	cachedTaxonomy *Taxonomy
	taxonomyOnce   sync.Once
	taxonomyErr    error
)

// LoadTaxonomy loads and caches the category taxonomy from the embedded
// YAML configuration. Returns the cached result on subsequent calls.
//
// # Outputs
//
//   - *Taxonomy: The loaded taxonomy. Never nil on success.
//   - error: Non-nil if YAML parsing fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadTaxonomy() (*Taxonomy, error) {
	taxonomyOnce.Do(func() {
		var t Taxonomy
		if err := yaml.Unmarshal(defaultCategoryTaxonomyYAML, &t); err != nil {
			taxonomyErr = fmt.Errorf("parsing category_taxonomy.yaml: %w", err)
			return
		}
		cachedTaxonomy = &t
		slog.Info("category taxonomy loaded",
			slog.Int("category_count", len(t.Categories)),
			slog.Int("alias_count", len(t.Aliases)),
		)
	})
	return cachedTaxonomy, taxonomyErr
}

// MustLoadTaxonomy loads the taxonomy or returns an empty one on error.
// Logs a warning if loading fails but does not panic; category expansion
// degrades to passing fragments through unexpanded.
func MustLoadTaxonomy() *Taxonomy {
	t, err := LoadTaxonomy()
	if err != nil {
		slog.Warn("category taxonomy loading failed, continuing without expansion",
			slog.String("error", err.Error()),
		)
		return &Taxonomy{}
	}
	return t
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeToken lowercases a category term and collapses every run of
// non-alphanumeric characters to a single underscore, matching how stored
// category values are normalized inside generated SQL.
func NormalizeToken(value string) string {
	normalized := nonAlnumPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "_")
	return strings.Trim(normalized, "_")
}

// ExpandCategoryTerms expands a raw category mention into every normalized
// term that should match it.
//
// # Description
//
//	A mention that names a canonical category or any of its subcategories
//	pulls in the canonical name plus all sibling subcategories, so "food"
//	matches rows stored as "groceries" or "dining_out". Alias vocabulary
//	("uber", "petrol") expands the same way. Household category names that
//	overlap the expanded set, or contain/are contained by the mention, are
//	included so locally invented spellings still match.
//
// # Inputs
//
//   - rawCategory: The user's category mention. Empty returns nil.
//   - householdCategories: Category names actually present in the
//     household's data.
//
// # Outputs
//
//   - []string: Sorted normalized terms, or nil for an empty mention.
//     An unmatched mention returns just its own normalized token.
func (t *Taxonomy) ExpandCategoryTerms(rawCategory string, householdCategories []string) []string {
	token := NormalizeToken(rawCategory)
	if token == "" {
		return nil
	}

	terms := map[string]struct{}{token: {}}

	for _, entry := range t.Categories {
		canonical := NormalizeToken(entry.Name)
		subs := make(map[string]struct{}, len(entry.Subcategories))
		for _, sub := range entry.Subcategories {
			subs[NormalizeToken(sub)] = struct{}{}
		}
		_, isSub := subs[token]
		if token == canonical || isSub {
			terms[canonical] = struct{}{}
			for sub := range subs {
				terms[sub] = struct{}{}
			}
		}
	}

	for _, entry := range t.Aliases {
		canonical := NormalizeToken(entry.Name)
		aliases := make(map[string]struct{}, len(entry.Terms))
		for _, term := range entry.Terms {
			aliases[NormalizeToken(term)] = struct{}{}
		}
		_, isAlias := aliases[token]
		if token == canonical || isAlias {
			terms[canonical] = struct{}{}
			for alias := range aliases {
				terms[alias] = struct{}{}
			}
		}
	}

	for _, item := range householdCategories {
		normalized := NormalizeToken(item)
		if normalized == "" {
			continue
		}
		if _, ok := terms[normalized]; ok {
			continue
		}
		if strings.Contains(normalized, token) || strings.Contains(token, normalized) {
			terms[normalized] = struct{}{}
		}
	}

	delete(terms, "")
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	sort.Strings(result)
	return result
}

// InferCategory scans a whole question for a category mention.
//
// # Description
//
//	Household categories are checked first so local vocabulary wins, then
//	canonical names and subcategories in taxonomy order, then aliases.
//	Matching is substring-based over normalized text.
//
// # Outputs
//
//   - string: The matched household category or canonical name, or ""
//     when the question mentions no known category.
func (t *Taxonomy) InferCategory(question string, householdCategories []string) string {
	qNorm := NormalizeToken(question)
	if qNorm == "" {
		return ""
	}

	for _, category := range householdCategories {
		norm := NormalizeToken(category)
		if norm != "" && (strings.Contains(qNorm, norm) || strings.Contains(norm, qNorm)) {
			return category
		}
	}

	for _, entry := range t.Categories {
		canonical := NormalizeToken(entry.Name)
		if canonical != "" && strings.Contains(qNorm, canonical) {
			return entry.Name
		}
		for _, sub := range entry.Subcategories {
			subNorm := NormalizeToken(sub)
			if subNorm != "" && strings.Contains(qNorm, subNorm) {
				return entry.Name
			}
		}
	}

	for _, entry := range t.Aliases {
		for _, alias := range entry.Terms {
			aliasNorm := NormalizeToken(alias)
			if aliasNorm != "" && strings.Contains(qNorm, aliasNorm) {
				return entry.Name
			}
		}
	}

	return ""
}
