package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/telemetry"
)

// ErrBlocked is returned when the model refuses a prompt or response on safety grounds
var ErrBlocked = errors.New("response blocked by safety filters")

// Turn is one message of conversation history
type Turn struct {
	Role string `json:"role" binding:"required,oneof=user model"`
	Text string `json:"text" binding:"required,max=2000"`
}

// Prompt is a single generation request
type Prompt struct {
	System   string
	Message  string
	History  []Turn
	Language string
}

// Client generates assistant replies
type Client interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeminiClient calls the Gemini generateContent REST endpoint
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiClient creates a client with a traced HTTP transport
func NewGeminiClient(baseURL, apiKey, model string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{
			ServiceName: "gemini",
			Timeout:     timeout,
		}),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the prompt and returns the first candidate's text
func (c *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	defer func() {
		metrics.Get().AIRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	}()

	ctx, span := telemetry.TraceExternalCall(ctx, telemetry.ExternalServiceCallAttrs{
		Service:   "gemini",
		Operation: "generateContent",
	})
	defer span.End()

	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(p.History)+1),
		GenerationConfig: map[string]any{
			"temperature":     0.7,
			"maxOutputTokens": 1024,
		},
	}
	if p.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.System}}}
	}
	for _, t := range p.History {
		body.Contents = append(body.Contents, geminiContent{Role: t.Role, Parts: []geminiPart{{Text: t.Text}}})
	}
	body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: p.Message}}})

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.RecordExternalCallError(span, err, 0, true)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		telemetry.RecordExternalCallError(span, err, resp.StatusCode, true)
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		err = fmt.Errorf("gemini API error: status %d: undecodable body", resp.StatusCode)
		telemetry.RecordExternalCallError(span, err, resp.StatusCode, false)
		return "", err
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		err := fmt.Errorf("gemini API error: status %d: %s", resp.StatusCode, msg)
		telemetry.RecordExternalCallError(span, err, resp.StatusCode, false)
		return "", err
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		telemetry.RecordExternalCallError(span, ErrBlocked, resp.StatusCode, false)
		return "", fmt.Errorf("%w: prompt %s", ErrBlocked, strings.ToLower(out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		err := errors.New("gemini returned no candidates")
		telemetry.RecordExternalCallError(span, err, resp.StatusCode, true)
		return "", err
	}

	cand := out.Candidates[0]
	switch cand.FinishReason {
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		telemetry.RecordExternalCallError(span, ErrBlocked, resp.StatusCode, false)
		return "", fmt.Errorf("%w: finish reason %s", ErrBlocked, strings.ToLower(cand.FinishReason))
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		err := errors.New("gemini returned an empty response")
		telemetry.RecordExternalCallError(span, err, resp.StatusCode, true)
		return "", err
	}

	telemetry.RecordExternalCallSuccess(span, resp.StatusCode, int64(len(raw)))
	return text, nil
}
