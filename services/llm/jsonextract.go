// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject finds and parses the first top-level JSON object in
// model output text.
//
// Description:
//
//	Models asked for "JSON only" still wrap the payload in prose or
//	markdown fences. This scans for the first balanced {...} block,
//	tracking string literals and escapes so braces inside values do not
//	terminate the scan early, then unmarshals it into the target.
//
// Inputs:
//   - text: Raw model output. May contain prose around the JSON object.
//   - target: Pointer to the value to unmarshal into.
//
// Outputs:
//   - error: Non-nil if no balanced object is found or it fails to parse.
//
// Thread Safety: This function is safe for concurrent use.
func ExtractJSONObject(text string, target any) error {
	raw, err := firstJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("llm: parsing extracted JSON: %w", err)
	}
	return nil
}

// firstJSONObject returns the first balanced top-level {...} block in text.
func firstJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("llm: no JSON object found in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("llm: unbalanced JSON object in model output")
}
