// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides chat clients for cloud LLM providers.
//
// Description:
//
//	All providers implement ChatClient for plain text completion.
//	Providers that support function calling additionally implement
//	ToolCallingClient. Callers hold the interface, never the concrete
//	client, so providers are swappable at configuration time.
package llm

import "context"

// Message is a single turn in a chat conversation.
//
// Thread Safety: Message is immutable and safe for concurrent read access.
type Message struct {
	// Role is the message role: "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// GenerationParams holds provider-agnostic generation options.
//
// Description:
//
//	All fields are optional. Nil pointer fields are omitted from the
//	request so the provider's own defaults apply. The zero value requests
//	the provider defaults for everything.
type GenerationParams struct {
	// Temperature controls randomness. Nil uses the provider default.
	Temperature *float64

	// MaxTokens limits the response length. Nil uses the provider default.
	MaxTokens *int

	// TopP is the nucleus sampling cutoff. Nil uses the provider default.
	TopP *float64

	// Stop lists sequences that end generation early.
	Stop []string

	// ModelOverride substitutes the model for this single call. Empty
	// string uses the client's configured model.
	ModelOverride string
}

// ChatClient is the minimal interface for text-in, text-out chat.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages (system, user, assistant).
	//   - params: Provider-agnostic generation parameters.
	//
	// Outputs:
	//   - string: The assistant's response text.
	//   - error: Non-nil on failure.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// ToolCallingClient extends ChatClient with function calling.
//
// Description:
//
//	ChatWithTools sends the conversation along with tool definitions and
//	returns either a text reply or one or more tool calls to execute.
//	Callers append tool results as ChatMessage entries with role "tool"
//	and call again until StopReason is "end".
//
// Thread Safety: Implementations must be safe for concurrent use.
type ToolCallingClient interface {
	ChatClient

	// ChatWithTools sends messages plus tool definitions.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages, including prior tool results.
	//   - params: Provider-agnostic generation parameters.
	//   - tools: Tool definitions the model may invoke.
	//
	// Outputs:
	//   - *ChatWithToolsResult: Text content and/or tool calls.
	//   - error: Non-nil on failure.
	ChatWithTools(ctx context.Context, messages []ChatMessage,
		params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error)
}
