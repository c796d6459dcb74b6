// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wraps the SQL agent with context resolution and a
// single fuzzy retry. Before the agent runs, the question is mined for
// person, category, subcategory, description, and time mentions, which
// are resolved against the household's actual vocabulary and attached as
// hints. When the strict pass comes back empty and a fuzzy fallback could
// plausibly help, the agent runs once more with relaxed matching
// instructions and the better result wins.
package pipeline

import (
	"regexp"
	"strings"
)

var (
	personFragmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhow\s+much\s+([a-z][a-z\s.'-]{1,40}?)\s+(?:spend|spent|pay|paid|pays)\b`),
		regexp.MustCompile(`(?i)\b(?:spent|spend|paid|pay)\s+by\s+([a-z][a-z\s.'-]{1,40})\b`),
		regexp.MustCompile(`(?i)\b([a-z][a-z\s.'-]{1,40})['’]s\s+(?:spend|spending|expenses?)\b`),
	}
	categoryFragmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:on|for|in|under)\s+([a-z][a-z0-9\s&/_-]{1,40})\s+category\b`),
		regexp.MustCompile(`(?i)\bcategory\s+(?:is\s+)?([a-z][a-z0-9\s&/_-]{1,40})\b`),
	}
	subcategoryFragmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:on|for|in|under)\s+([a-z][a-z0-9\s&/_-]{1,40})\s+subcategory\b`),
		regexp.MustCompile(`(?i)\bsubcategory\s+(?:is\s+)?([a-z][a-z0-9\s&/_-]{1,40})\b`),
	}
	quotedPhrasePattern        = regexp.MustCompile(`["']([^"']{2,80})["']`)
	descriptionFragmentPattern = regexp.MustCompile(
		`(?i)\b(?:description|merchant|item|memo|note)\s+(?:contains|contain|like|with|matching)\s+([a-z0-9][a-z0-9\s&/_-]{1,80})`)

	nonWordPattern      = regexp.MustCompile(`[^a-z0-9]+`)
	trailingNounPattern = regexp.MustCompile(`(?i)\b(?:category|subcategory|description)\b$`)
)

// normalizeFragment lowercases and collapses non-alphanumerics to single
// spaces for comparison.
func normalizeFragment(value string) string {
	collapsed := nonWordPattern.ReplaceAllString(strings.ToLower(value), " ")
	return strings.Join(strings.Fields(collapsed), " ")
}

// cleanExtractedFragment tidies a captured mention, dropping the trailing
// structural noun that the looser patterns sometimes swallow.
func cleanExtractedFragment(value string) string {
	raw := strings.Join(strings.Fields(value), " ")
	if raw == "" {
		return ""
	}
	trimmed := trailingNounPattern.ReplaceAllString(raw, "")
	return strings.Join(strings.Fields(trimmed), " ")
}

func extractFirstFragment(question string, patterns []*regexp.Regexp) string {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(question)
		if match == nil {
			continue
		}
		if extracted := cleanExtractedFragment(match[1]); extracted != "" {
			return extracted
		}
	}
	return ""
}

// extractDescriptionPhrase prefers a quoted phrase, then an explicit
// "description contains X" style mention.
func extractDescriptionPhrase(question string) string {
	if quoted := quotedPhrasePattern.FindStringSubmatch(question); quoted != nil {
		if phrase := cleanExtractedFragment(quoted[1]); phrase != "" {
			return phrase
		}
	}
	match := descriptionFragmentPattern.FindStringSubmatch(question)
	if match == nil {
		return ""
	}
	return cleanExtractedFragment(match[1])
}
