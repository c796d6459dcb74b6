// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"sort"
	"strings"
)

const ambiguityBand = 0.03

// matchScore grades how well a question fragment names a candidate.
//
// Exact normalized match scores 1.0, a candidate that starts with the
// fragment as a whole word 0.96, a padded substring hit 0.92. Anything
// weaker falls back to the better of damped token overlap and damped
// character similarity, so near-misses still rank but never beat a
// structural match.
func matchScore(fragment, candidate string) float64 {
	fragmentNorm := normalizeFragment(fragment)
	candidateNorm := normalizeFragment(candidate)
	if fragmentNorm == "" || candidateNorm == "" {
		return 0
	}
	if fragmentNorm == candidateNorm {
		return 1.0
	}
	if strings.HasPrefix(candidateNorm, fragmentNorm+" ") {
		return 0.96
	}
	if strings.Contains(" "+candidateNorm+" ", " "+fragmentNorm+" ") {
		return 0.92
	}

	fragmentTokens := tokenSet(fragmentNorm)
	overlap := 0.0
	if len(fragmentTokens) > 0 {
		candidateTokens := tokenSet(candidateNorm)
		shared := 0
		for token := range fragmentTokens {
			if _, ok := candidateTokens[token]; ok {
				shared++
			}
		}
		overlap = float64(shared) / float64(len(fragmentTokens))
	}

	ratio := similarityRatio(fragmentNorm, candidateNorm)
	if score := overlap * 0.92; score >= ratio*0.78 {
		return score
	}
	return ratio * 0.78
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(text) {
		set[token] = struct{}{}
	}
	return set
}

// similarityRatio is the classic 2*M/T character similarity, where M sums
// the longest matching blocks found recursively between the two strings.
func similarityRatio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	matches := matchingBlockSize([]byte(a), []byte(b))
	return 2 * float64(matches) / float64(total)
}

func matchingBlockSize(a, b []byte) int {
	aStart, aEnd, bStart, bEnd, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	left := matchingBlockSize(a[:aStart], b[:bStart])
	right := matchingBlockSize(a[aEnd:], b[bEnd:])
	return left + size + right
}

func longestMatch(a, b []byte) (aStart, aEnd, bStart, bEnd, size int) {
	// One-row DP over match run lengths.
	best := 0
	bestA, bestB := 0, 0
	prev := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] != b[j] {
				current[j+1] = 0
				continue
			}
			current[j+1] = prev[j] + 1
			if current[j+1] > best {
				best = current[j+1]
				bestA = i + 1 - best
				bestB = j + 1 - best
			}
		}
		prev, current = current, prev
	}
	return bestA, bestA + best, bestB, bestB + best, best
}

// resolveAlias maps a fragment onto a unique candidate.
//
// # Outputs
//
//   - string: The single confident winner, or "" when no candidate clears
//     minScore or several are too close to call.
//   - []string: Up to three near-tied candidates when the mention is
//     ambiguous.
func resolveAlias(fragment string, candidates []string, minScore float64) (string, []string) {
	cleaned := cleanExtractedFragment(fragment)
	if cleaned == "" {
		return "", nil
	}

	type scored struct {
		score     float64
		candidate string
	}
	var hits []scored
	for _, candidate := range candidates {
		if score := matchScore(cleaned, candidate); score >= minScore {
			hits = append(hits, scored{score, candidate})
		}
	}
	if len(hits) == 0 {
		return "", nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	cutoff := hits[0].score - ambiguityBand
	if cutoff < minScore {
		cutoff = minScore
	}
	var close []string
	for _, hit := range hits {
		if hit.score >= cutoff {
			close = append(close, hit.candidate)
		}
	}
	if len(close) == 1 {
		return hits[0].candidate, nil
	}
	if len(close) > 3 {
		close = close[:3]
	}
	return "", close
}
