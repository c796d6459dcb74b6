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

import "testing"

func TestBuildGeminiGenerationConfig(t *testing.T) {
	temperature := 0.1
	topP := 0.95
	maxTokens := 1024

	cfg := buildGeminiGenerationConfig(GenerationParams{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		Stop:        []string{"END"},
	})
	if cfg == nil {
		t.Fatal("expected a config when params are set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.95 {
		t.Errorf("topP = %v, want 0.95", cfg.TopP)
	}
	if cfg.MaxOutputTokens == nil || *cfg.MaxOutputTokens != 1024 {
		t.Errorf("maxOutputTokens = %v, want 1024", cfg.MaxOutputTokens)
	}
	if len(cfg.StopSequences) != 1 || cfg.StopSequences[0] != "END" {
		t.Errorf("stopSequences = %v, want [END]", cfg.StopSequences)
	}
}

func TestBuildGeminiGenerationConfigEmptyParams(t *testing.T) {
	if cfg := buildGeminiGenerationConfig(GenerationParams{}); cfg != nil {
		t.Errorf("expected nil config for empty params, got %+v", cfg)
	}
}
