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

	"github.com/AleutianAI/AleutianLedger/services/llm"
)

func TestCreateChatClientDeterministicIsNil(t *testing.T) {
	client, err := CreateChatClient(RuntimeConfig{Provider: ProviderDeterministic})
	if err != nil {
		t.Fatalf("CreateChatClient() error = %v", err)
	}
	if client != nil {
		t.Errorf("deterministic provider should yield a nil client, got %T", client)
	}
}

func TestCreateChatClientRequiresKey(t *testing.T) {
	clearProviderEnv(t)

	_, err := CreateChatClient(RuntimeConfig{Provider: ProviderGroq})
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Fatalf("error = %v, want missing GROQ_API_KEY", err)
	}
	_, err = CreateChatClient(RuntimeConfig{Provider: ProviderGemini})
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("error = %v, want missing GEMINI_API_KEY", err)
	}
}

func TestCreateChatClientSupportsToolCalling(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("CEREBRAS_API_KEY", "csk-test")
	t.Setenv("CEREBRAS_MODEL", "llama-3.3-70b")

	client, err := CreateChatClient(RuntimeConfig{Provider: ProviderCerebras, Model: "qwen-3-32b"})
	if err != nil {
		t.Fatalf("CreateChatClient() error = %v", err)
	}
	if _, ok := client.(llm.ToolCallingClient); !ok {
		t.Errorf("cerebras client %T should support tool calling", client)
	}
}

func TestCreateChatClientRejectsUnknownProvider(t *testing.T) {
	_, err := CreateChatClient(RuntimeConfig{Provider: "skynet"})
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("error = %v, want unsupported provider", err)
	}
}
