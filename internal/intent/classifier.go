// Package intent routes inbound messages to workflow intents. Deterministic
// shortcuts (quick-reply intents, slash commands) resolve first; everything
// else goes to the external classifier, whose low-confidence answers
// collapse to the unknown intent.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Classifier resolves the intent of an inbound message
	Classifier interface {
		Classify(
			ctx context.Context, msg *api.Message, sess *api.Session,
		) (api.IntentID, error)
	}

	// HTTPClassifier calls the external classification service
	HTTPClassifier struct {
		httpClient *http.Client
		endpoint   string
		apiKey     string
		threshold  float64
	}

	classifyCall struct {
		Text       string `json:"text"`
		Transcript string `json:"transcript,omitempty"`
	}

	classifyResponse struct {
		Intent     api.IntentID `json:"intent"`
		Confidence float64      `json:"confidence"`
	}
)

// Unknown is the fallback intent when classification cannot name a workflow
const Unknown api.IntentID = "unknown"

// transcriptTurns is how much session history accompanies the message
const transcriptTurns = 6

// ErrHTTPError is returned when the classification service fails over HTTP
var ErrHTTPError = errors.New("classifier returned HTTP error")

var _ Classifier = (*HTTPClassifier)(nil)

// slash commands resolve deterministically before any remote call
var slashCommands = map[string]api.IntentID{
	"/start": "main_menu",
	"/menu":  "main_menu",
	"/help":  "main_menu",
}

// Shortcut resolves deterministic intents without a remote call: messages
// already carrying an intent (quick replies) and slash commands
func Shortcut(msg *api.Message) (api.IntentID, bool) {
	if msg.Intent != "" {
		return msg.Intent, true
	}
	if id, ok := slashCommands[strings.ToLower(
		strings.TrimSpace(msg.Text))]; ok {
		return id, true
	}
	return "", false
}

// NewHTTPClassifier creates a classifier client from service settings. Below
// the confidence threshold, answers collapse to Unknown.
func NewHTTPClassifier(
	cfg config.ServiceConfig, threshold float64,
) *HTTPClassifier {
	return &HTTPClassifier{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		threshold: threshold,
	}
}

// Classify asks the external service for the message's intent
func (c *HTTPClassifier) Classify(
	ctx context.Context, msg *api.Message, sess *api.Session,
) (api.IntentID, error) {
	call := classifyCall{Text: msg.Text}
	if sess != nil {
		call.Transcript = sess.Transcript(transcriptTurns)
	}

	body, err := json.Marshal(call)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("Classifier request failed",
			slog.Duration("duration", dur),
			slog.Any("error", err))
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Classifier HTTP error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return "", fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	var answer classifyResponse
	if err := json.Unmarshal(respBody, &answer); err != nil {
		return "", err
	}

	if answer.Intent == "" || answer.Confidence < c.threshold {
		slog.Debug("Classification below threshold",
			slog.String("intent", string(answer.Intent)),
			slog.Float64("confidence", answer.Confidence),
			slog.Float64("threshold", c.threshold))
		return Unknown, nil
	}
	return answer.Intent, nil
}
