package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRequestTool performs an outbound HTTP call for api blocks.
// Params: url (required), method, headers (map), body (string or JSON value),
// query (map).
type HTTPRequestTool struct {
	client *http.Client
}

func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{client: &http.Client{Timeout: 60 * time.Second}}
}

func (t *HTTPRequestTool) ID() string { return "http_request" }

func (t *HTTPRequestTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request requires a url")
	}
	method := strings.ToUpper(strings.TrimSpace(fmt.Sprintf("%v", paramOr(params, "method", "GET"))))

	var body io.Reader
	if raw, ok := params["body"]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("http_request body is not serializable: %w", err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if query, ok := params["query"].(map[string]any); ok {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		req.URL.RawQuery = q.Encode()
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

	output := map[string]any{
		"status":     resp.StatusCode,
		"statusText": resp.Status,
	}
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		output["body"] = parsed
	} else {
		output["body"] = string(raw)
	}
	output["response"] = output["body"]

	if resp.StatusCode >= 400 {
		return output, fmt.Errorf("http_request: %s returned %d", url, resp.StatusCode)
	}
	return output, nil
}

func paramOr(params map[string]any, key string, fallback any) any {
	if v, ok := params[key]; ok && v != nil && v != "" {
		return v
	}
	return fallback
}
