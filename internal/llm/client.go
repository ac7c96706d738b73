// Package llm reaches the external language-model service used for reply
// completion and structured field extraction.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/parleyhq/parley/internal/config"
)

type (
	// Client is the narrow contract workflow steps consume
	Client interface {
		// Complete returns a free-text reply for the prompt
		Complete(ctx context.Context, req *CompletionRequest) (string, error)

		// Extract pulls structured fields out of a user message
		Extract(ctx context.Context, req *ExtractionRequest) (Fields, error)
	}

	// CompletionRequest describes one completion call
	CompletionRequest struct {
		System     string
		Transcript string
		Prompt     string
	}

	// ExtractionRequest describes one field-extraction call
	ExtractionRequest struct {
		Text   string
		Fields []string
	}

	// Fields is the extractor's output, field name to raw string value
	Fields map[string]string

	// HTTPClient talks JSON over HTTP to the model service
	HTTPClient struct {
		httpClient *http.Client
		endpoint   string
		apiKey     string
	}

	completeCall struct {
		Task       string `json:"task"`
		System     string `json:"system,omitempty"`
		Transcript string `json:"transcript,omitempty"`
		Prompt     string `json:"prompt"`
	}

	extractCall struct {
		Task   string   `json:"task"`
		Text   string   `json:"text"`
		Fields []string `json:"fields,omitempty"`
	}
)

const userAgent = "Parley-Engine/1.0"

var (
	ErrHTTPError       = errors.New("model service returned HTTP error")
	ErrEmptyCompletion = errors.New("model service returned no text")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a model service client from service settings
func NewHTTPClient(cfg config.ServiceConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
}

// Complete returns a free-text reply for the prompt
func (c *HTTPClient) Complete(
	ctx context.Context, req *CompletionRequest,
) (string, error) {
	body, err := c.post(ctx, completeCall{
		Task:       "complete",
		System:     req.System,
		Transcript: req.Transcript,
		Prompt:     req.Prompt,
	})
	if err != nil {
		return "", err
	}

	text := gjson.GetBytes(body, "output.text")
	if text.String() == "" {
		return "", ErrEmptyCompletion
	}
	return text.String(), nil
}

// Extract pulls structured fields out of a user message. Only the requested
// fields come back; absent or empty values are dropped.
func (c *HTTPClient) Extract(
	ctx context.Context, req *ExtractionRequest,
) (Fields, error) {
	body, err := c.post(ctx, extractCall{
		Task:   "extract",
		Text:   req.Text,
		Fields: req.Fields,
	})
	if err != nil {
		return nil, err
	}

	res := Fields{}
	gjson.GetBytes(body, "output.fields").ForEach(
		func(k, v gjson.Result) bool {
			if s := v.String(); s != "" {
				res[k.String()] = s
			}
			return true
		})
	return res, nil
}

func (c *HTTPClient) post(ctx context.Context, call any) ([]byte, error) {
	body, err := json.Marshal(call)
	if err != nil {
		slog.Error("Failed to marshal model request",
			slog.Any("error", err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		slog.Error("Failed to create HTTP request",
			slog.Any("error", err))
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("Model request failed",
			slog.Duration("duration", dur),
			slog.Any("error", err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Failed to read response body",
			slog.Any("error", err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Model service HTTP error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	return respBody, nil
}
