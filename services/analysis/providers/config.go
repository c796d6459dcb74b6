// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers selects and constructs the chat client the analysis
// engine authors SQL with. Provider choice is environment-driven with
// key-presence inference, so a deployment with only a GROQ_API_KEY just
// works without further configuration, and a deployment with no keys at
// all degrades to the deterministic strategy instead of failing.
package providers

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider constants for supported SQL authoring backends.
const (
	ProviderCerebras      = "cerebras"
	ProviderGroq          = "groq"
	ProviderOpenAI        = "openai"
	ProviderGemini        = "gemini"
	ProviderDeterministic = "deterministic"
)

// ValidProviders contains the set of valid provider names.
var ValidProviders = []string{
	ProviderCerebras,
	ProviderGroq,
	ProviderOpenAI,
	ProviderGemini,
	ProviderDeterministic,
}

func isValidProvider(provider string) bool {
	for _, p := range ValidProviders {
		if provider == p {
			return true
		}
	}
	return false
}

// RuntimeConfig is the resolved analysis engine configuration.
//
// Description:
//
//	Collected once at request time from environment variables. Provider
//	and model feed the factory; strategy, attempts, and timezone feed
//	the agent and pipeline; DBPath feeds storage.
type RuntimeConfig struct {
	// Provider is one of the Provider constants.
	Provider string

	// Model overrides the provider's default model when non-empty.
	Model string

	// Strategy is "tool_loop", "sequential", or "deterministic".
	Strategy string

	// MaxAttempts caps the SQL repair loop.
	MaxAttempts int

	// Timezone names the household timezone, e.g. "Asia/Kolkata".
	Timezone string

	// DBPath locates the sqlite database file.
	DBPath string
}

// LoadRuntimeConfig reads the analysis configuration from environment
// variables.
//
// Description:
//
//	ANALYSIS_PROVIDER picks the backend explicitly. When unset, the
//	provider is inferred from which API keys are present, in order:
//	cerebras, groq, openai, gemini. With no keys at all the engine runs
//	deterministic-only. ANALYSIS_STRATEGY defaults per provider:
//	cerebras and groq get the tool loop, openai and gemini the
//	sequential loop, deterministic itself.
//
// Outputs:
//   - RuntimeConfig: The resolved configuration.
//   - error: Non-nil if an explicit provider name is invalid.
func LoadRuntimeConfig() (RuntimeConfig, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("ANALYSIS_PROVIDER")))
	if provider == "" {
		provider = inferProviderFromKeys()
		slog.Debug("analysis provider inferred from API keys",
			slog.String("provider", provider),
		)
	}
	if !isValidProvider(provider) {
		return RuntimeConfig{}, fmt.Errorf(
			"invalid provider %q for ANALYSIS_PROVIDER (valid: %v)", provider, ValidProviders)
	}

	strategy := strings.ToLower(strings.TrimSpace(os.Getenv("ANALYSIS_STRATEGY")))
	if strategy == "" {
		strategy = defaultStrategy(provider)
	}

	maxAttempts := 3
	if raw := strings.TrimSpace(os.Getenv("ANALYSIS_MAX_ATTEMPTS")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 10 {
			slog.Warn("ignoring invalid ANALYSIS_MAX_ATTEMPTS",
				slog.String("value", raw),
			)
		} else {
			maxAttempts = parsed
		}
	}

	timezone := strings.TrimSpace(os.Getenv("ANALYSIS_TIMEZONE"))
	if timezone == "" {
		timezone = "UTC"
	}

	dbPath := strings.TrimSpace(os.Getenv("ANALYSIS_DB_PATH"))
	if dbPath == "" {
		dbPath = "ledger.db"
	}

	return RuntimeConfig{
		Provider:    provider,
		Model:       strings.TrimSpace(os.Getenv("ANALYSIS_MODEL")),
		Strategy:    strategy,
		MaxAttempts: maxAttempts,
		Timezone:    timezone,
		DBPath:      dbPath,
	}, nil
}

// inferProviderFromKeys picks the first provider whose API key is set.
func inferProviderFromKeys() string {
	ordered := []struct {
		provider string
		keyEnv   string
	}{
		{ProviderCerebras, "CEREBRAS_API_KEY"},
		{ProviderGroq, "GROQ_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGemini, "GEMINI_API_KEY"},
	}
	for _, entry := range ordered {
		if strings.TrimSpace(os.Getenv(entry.keyEnv)) != "" {
			return entry.provider
		}
	}
	return ProviderDeterministic
}

func defaultStrategy(provider string) string {
	switch provider {
	case ProviderCerebras, ProviderGroq:
		return "tool_loop"
	case ProviderOpenAI, ProviderGemini:
		return "sequential"
	default:
		return "deterministic"
	}
}
