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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// OpenAI-Compatible Wire Types
// =============================================================================

// Chat completions endpoints for the OpenAI-compatible providers.
const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1/chat/completions"
	defaultCerebrasBaseURL = "https://api.cerebras.ai/v1/chat/completions"
	defaultGroqBaseURL     = "https://api.groq.com/openai/v1/chat/completions"
)

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Tools               []openaiTool    `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Tool-related wire types for function calling.
type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAICompatClient implements ToolCallingClient for any provider that
// speaks the OpenAI Chat Completions protocol (OpenAI, Cerebras, Groq).
//
// Description:
//
//	Uses the Chat Completions REST API directly without third-party SDKs.
//	The provider name only affects the default endpoint, the environment
//	variables consulted, and error message prefixes; the wire protocol is
//	identical across all three backends.
//
// Thread Safety: OpenAICompatClient is safe for concurrent use.
type OpenAICompatClient struct {
	httpClient *http.Client
	provider   string
	apiKey     string
	model      string
	baseURL    string
}

// openaiCompatDefaults maps a provider name to its key/model environment
// variables, default endpoint, and default model.
var openaiCompatDefaults = map[string]struct {
	keyEnv       string
	modelEnv     string
	baseURL      string
	defaultModel string
}{
	"openai":   {"OPENAI_API_KEY", "OPENAI_MODEL", defaultOpenAIBaseURL, "gpt-4o-mini"},
	"cerebras": {"CEREBRAS_API_KEY", "CEREBRAS_MODEL", defaultCerebrasBaseURL, "llama-3.3-70b"},
	"groq":     {"GROQ_API_KEY", "GROQ_MODEL", defaultGroqBaseURL, "llama-3.3-70b-versatile"},
}

// NewOpenAICompatClient creates a client for the named provider from
// environment variables.
//
// Description:
//
//	Reads <PROVIDER>_API_KEY and <PROVIDER>_MODEL from the environment
//	(e.g., CEREBRAS_API_KEY / CEREBRAS_MODEL for "cerebras") and uses the
//	provider's default chat completions endpoint. Falls back to a default
//	model with a warning when the model variable is unset.
//
// Inputs:
//   - provider: "openai", "cerebras", or "groq".
//
// Outputs:
//   - *OpenAICompatClient: The configured client.
//   - error: Non-nil if the provider is unknown or its API key is missing.
func NewOpenAICompatClient(provider string) (*OpenAICompatClient, error) {
	defaults, ok := openaiCompatDefaults[provider]
	if !ok {
		return nil, fmt.Errorf("llm: unknown openai-compatible provider %q", provider)
	}

	apiKey := os.Getenv(defaults.keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key is missing (%s)", provider, defaults.keyEnv)
	}

	model := os.Getenv(defaults.modelEnv)
	if model == "" {
		model = defaults.defaultModel
		slog.Warn("model not set, using provider default",
			slog.String("provider", provider),
			slog.String("model", model),
		)
	}

	slog.Info("Initializing OpenAI-compatible chat client",
		slog.String("provider", provider),
		slog.String("model", model),
	)
	return NewOpenAICompatClientWithConfig(provider, apiKey, model, defaults.baseURL), nil
}

// NewOpenAICompatClientWithConfig creates a client with explicit configuration.
//
// Description:
//
//	Creates a client without reading environment variables. Useful for
//	testing with mock servers or when configuration comes from a source
//	other than environment variables.
//
// Inputs:
//   - provider: Provider name used in logs and error prefixes.
//   - apiKey: The API key.
//   - model: The model name.
//   - baseURL: The full chat completions URL.
//
// Outputs:
//   - *OpenAICompatClient: The configured client.
func NewOpenAICompatClientWithConfig(provider, apiKey, model, baseURL string) *OpenAICompatClient {
	return &OpenAICompatClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		provider:   provider,
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Provider returns the provider name this client was built for.
func (o *OpenAICompatClient) Provider() string { return o.provider }

// WithModel returns a copy of the client that uses the given model.
func (o *OpenAICompatClient) WithModel(model string) *OpenAICompatClient {
	clone := *o
	clone.model = model
	return &clone
}

// Chat implements ChatClient.Chat using the chat completions API.
//
// Description:
//
//	Converts Message to the OpenAI wire format and sends a chat completion
//	request via raw HTTP. Handles system, user, and assistant roles.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAICompatClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("Chat via OpenAI-compatible provider",
		slog.String("provider", o.provider),
		slog.String("model", model),
		slog.Int("messages", len(messages)),
	)

	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
			// valid roles, keep as-is
		default:
			slog.Warn("unknown message role, mapping to user",
				slog.String("provider", o.provider),
				slog.String("unknown_role", role),
			)
			role = "user"
		}
		oaiMessages = append(oaiMessages, openaiMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	reqPayload := openaiRequest{
		Model:    model,
		Messages: oaiMessages,
	}
	applyParams(&reqPayload, params)

	apiResp, err := o.roundTrip(ctx, reqPayload)
	if err != nil {
		return "", err
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%s: returned no choices", o.provider)
	}

	slog.Debug("Received chat response",
		slog.String("provider", o.provider),
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return apiResp.Choices[0].Message.Content, nil
}

// ChatWithTools sends a chat request with tool definitions and returns tool calls.
//
// Description:
//
//	Extends Chat to support function calling. Converts generic ToolDef and
//	ChatMessage types to the OpenAI wire format, sends the request, and
//	parses tool_calls from the response.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history with tool metadata.
//   - params: Generation parameters.
//   - tools: Tool definitions for function calling.
//
// Outputs:
//   - *ChatWithToolsResult: Content and/or tool calls.
//   - error: Non-nil on failure.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAICompatClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error) {

	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("ChatWithTools via OpenAI-compatible provider",
		slog.String("provider", o.provider),
		slog.String("model", model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
	)

	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openaiMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		// Tool result messages carry the originating call ID.
		if msg.Role == "tool" && msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		// Assistant messages replay their tool calls.
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiCallFunction{
						Name:      tc.Name,
						Arguments: tc.ArgumentsString(),
					},
				})
			}
		}

		oaiMessages = append(oaiMessages, oaiMsg)
	}

	oaiTools := make([]openaiTool, 0, len(tools))
	for _, td := range tools {
		oaiTools = append(oaiTools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        td.Function.Name,
				Description: td.Function.Description,
				Parameters:  td.Function.Parameters,
			},
		})
	}

	reqPayload := openaiRequest{
		Model:    model,
		Messages: oaiMessages,
		Tools:    oaiTools,
	}
	applyParams(&reqPayload, params)

	apiResp, err := o.roundTrip(ctx, reqPayload)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: returned no choices", o.provider)
	}

	choice := apiResp.Choices[0]
	result := &ChatWithToolsResult{
		Content: choice.Message.Content,
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	} else {
		result.StopReason = "end"
	}

	return result, nil
}

// applyParams copies the optional generation parameters onto the request.
func applyParams(req *openaiRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

// roundTrip marshals the request, performs the HTTP call, and decodes the
// response, surfacing API errors with the secret-redacted upstream text.
func (o *OpenAICompatClient) roundTrip(ctx context.Context, reqPayload openaiRequest) (*openaiResponse, error) {
	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", o.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%s: creating HTTP request: %w", o.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: HTTP request failed: %w", o.provider, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body: %w", o.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: API returned status %d: %s", o.provider, resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("%s: parsing response JSON: %w", o.provider, err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%s: API error: %s - %s", o.provider, apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	return &apiResp, nil
}
