package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskloom/internal/orchestrator"
	"taskloom/pkg/models"
)

const defaultHTTPTimeout = 30 * time.Second

// maxResponseBody caps how much of a response is captured into task output.
const maxResponseBody = 1 << 20

// HTTPRequest performs an outbound HTTP call. Input:
//
//	url:     request URL (required)
//	method:  HTTP method, default GET
//	headers: map of header name to value
//	body:    request body string
//	timeout: per-request timeout in seconds, default 30
//
// Output: status, body. Status codes >= 400 are task failures.
func HTTPRequest(ctx context.Context, task models.Task, jc *orchestrator.JobContext) (*orchestrator.HandlerResult, error) {
	url, _ := task.Input["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http.request requires a url")
	}

	method, _ := task.Input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultHTTPTimeout
	if secs, ok := task.Input["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	var body io.Reader
	if s, ok := task.Input["body"].(string); ok && s != "" {
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if headers, ok := task.Input["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d from %s: %s", resp.StatusCode, url, strings.TrimSpace(string(respBody)))
	}

	return &orchestrator.HandlerResult{
		Output: map[string]any{
			"status": resp.StatusCode,
			"body":   string(respBody),
		},
		Audit: map[string]any{
			"method": req.Method,
			"url":    url,
		},
	}, nil
}
