// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"strings"
	"testing"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANALYSIS_PROVIDER", "ANALYSIS_MODEL", "ANALYSIS_STRATEGY",
		"ANALYSIS_MAX_ATTEMPTS", "ANALYSIS_TIMEZONE", "ANALYSIS_DB_PATH",
		"CEREBRAS_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRuntimeConfigDefaultsToDeterministic(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.Provider != ProviderDeterministic {
		t.Errorf("provider = %q, want deterministic", cfg.Provider)
	}
	if cfg.Strategy != "deterministic" {
		t.Errorf("strategy = %q, want deterministic", cfg.Strategy)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", cfg.Timezone)
	}
}

func TestLoadRuntimeConfigInfersProviderFromKeys(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk_test")

	cfg, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.Provider != ProviderGroq {
		t.Errorf("provider = %q, want groq", cfg.Provider)
	}
	if cfg.Strategy != "tool_loop" {
		t.Errorf("strategy = %q, want tool_loop", cfg.Strategy)
	}

	// Cerebras outranks groq when both keys exist.
	t.Setenv("CEREBRAS_API_KEY", "csk-test")
	cfg, err = LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.Provider != ProviderCerebras {
		t.Errorf("provider = %q, want cerebras", cfg.Provider)
	}
}

func TestLoadRuntimeConfigExplicitOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANALYSIS_PROVIDER", "openai")
	t.Setenv("ANALYSIS_MODEL", "gpt-4o")
	t.Setenv("ANALYSIS_STRATEGY", "sequential")
	t.Setenv("ANALYSIS_MAX_ATTEMPTS", "5")
	t.Setenv("ANALYSIS_TIMEZONE", "Asia/Kolkata")
	t.Setenv("ANALYSIS_DB_PATH", "/tmp/test.db")

	cfg, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.Model != "gpt-4o" || cfg.Strategy != "sequential" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxAttempts != 5 || cfg.Timezone != "Asia/Kolkata" || cfg.DBPath != "/tmp/test.db" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRuntimeConfigRejectsUnknownProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANALYSIS_PROVIDER", "skynet")

	_, err := LoadRuntimeConfig()
	if err == nil || !strings.Contains(err.Error(), "invalid provider") {
		t.Fatalf("error = %v, want invalid provider", err)
	}
}

func TestLoadRuntimeConfigIgnoresBadMaxAttempts(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANALYSIS_MAX_ATTEMPTS", "many")

	cfg, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want default 3", cfg.MaxAttempts)
	}
}
