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
	"fmt"

	"github.com/AleutianAI/AleutianLedger/services/llm"
)

// CreateChatClient creates the chat client for the configured provider.
//
// Description:
//
//	cerebras, groq, and openai share the OpenAI-compatible adapter;
//	gemini gets its own. The deterministic provider returns a nil client,
//	which the agent runner interprets as "skip the model". An optional
//	ANALYSIS_MODEL override is applied after construction via the config's
//	Model field. Every returned client is wrapped with Prometheus metric
//	recording.
//
// Inputs:
//   - cfg: The resolved runtime configuration.
//
// Outputs:
//   - llm.ChatClient: The configured client, or nil for deterministic.
//   - error: Non-nil if the provider is unsupported or its key is missing.
func CreateChatClient(cfg RuntimeConfig) (llm.ChatClient, error) {
	switch cfg.Provider {
	case ProviderDeterministic:
		return nil, nil

	case ProviderCerebras, ProviderGroq, ProviderOpenAI:
		client, err := llm.NewOpenAICompatClient(cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
		}
		if cfg.Model != "" {
			client = client.WithModel(cfg.Model)
		}
		return instrumentClient(client, cfg.Provider), nil

	case ProviderGemini:
		client, err := llm.NewGeminiClient()
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		if cfg.Model != "" {
			client = client.WithModel(cfg.Model)
		}
		return instrumentClient(client, cfg.Provider), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", cfg.Provider, ValidProviders)
	}
}
