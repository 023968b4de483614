package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LLMChatTool calls an OpenAI-compatible chat completions endpoint for agent
// blocks. Params: prompt or messages, model (optional override), temperature.
type LLMChatTool struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewLLMChatTool(baseURL, apiKey, model string) *LLMChatTool {
	return &LLMChatTool{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *LLMChatTool) ID() string { return "llm.chat" }

func (t *LLMChatTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	if t.baseURL == "" {
		return nil, fmt.Errorf("llm.chat is not configured (LLM_BASE_URL missing)")
	}

	messages, _ := params["messages"].([]any)
	if messages == nil {
		prompt, _ := params["prompt"].(string)
		if prompt == "" {
			return nil, fmt.Errorf("llm.chat requires prompt or messages")
		}
		if system, ok := params["systemPrompt"].(string); ok && system != "" {
			messages = append(messages, map[string]any{"role": "system", "content": system})
		}
		messages = append(messages, map[string]any{"role": "user", "content": prompt})
	}

	model := t.model
	if override, ok := params["model"].(string); ok && override != "" {
		model = override
	}
	payload := map[string]any{"model": model, "messages": messages}
	if temp, ok := params["temperature"]; ok {
		payload["temperature"] = temp
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("llm.chat: provider returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var completion struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("llm.chat: unparseable provider response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm.chat: provider returned no choices")
	}

	return map[string]any{
		"response": completion.Choices[0].Message.Content,
		"content":  completion.Choices[0].Message.Content,
		"model":    completion.Model,
		"usage":    completion.Usage,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
