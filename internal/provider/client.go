// Package provider submits prompts to a hosted completion API and returns
// sanitized text. It speaks the OpenAI-compatible chat-completions shape and
// maps every failure into a closed error taxonomy, so callers can decide
// whether to fall through to another model without inspecting transport
// details.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.groq.com/openai/v1"
	defaultTimeout   = 60 * time.Second
	streamingTimeout = 300 * time.Second
	maxPromptLength  = 10000
)

// Client communicates with the upstream completion API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	// streamClient has a longer timeout; http.Client.Timeout also bounds
	// body reads, which would cut long streams short.
	streamClient *http.Client
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		streamClient: &http.Client{
			Timeout: streamingTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chunk is one increment of a streamed completion. FinishReason is non-empty
// on the final chunk.
type Chunk struct {
	Content      string
	FinishReason string
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return newError(KindInvalidInput, 0, "prompt is required and cannot be empty")
	}
	if len(prompt) > maxPromptLength {
		return newError(KindInvalidInput, 0, "prompt is too long (max %d characters)", maxPromptLength)
	}
	return nil
}

// Complete submits prompt to modelID and returns the sanitized response text.
// Failures are always *Error values from the closed taxonomy.
func (c *Client) Complete(ctx context.Context, prompt, modelID string, opts Options) (string, error) {
	if err := validatePrompt(prompt); err != nil {
		return "", err
	}

	body, err := c.buildRequest(prompt, modelID, opts, false)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, c.httpClient, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", newError(KindUpstream, resp.StatusCode, "decoding response: %v", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", newError(KindEmptyResponse, resp.StatusCode, "no response generated for model %s", modelID)
	}

	return Sanitize(out.Choices[0].Message.Content), nil
}

// Stream submits prompt to modelID and delivers incremental chunks to fn
// until the upstream signals completion. The context is checked between
// chunks; cancellation mid-stream is reported as KindCancelled, distinct
// from transport failures. An error from fn stops the stream and is
// returned as-is.
func (c *Client) Stream(ctx context.Context, prompt, modelID string, opts Options, fn func(Chunk) error) error {
	if err := validatePrompt(prompt); err != nil {
		return err
	}

	body, err := c.buildRequest(prompt, modelID, opts, true)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, c.streamClient, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return newError(KindCancelled, 0, "generation cancelled: %v", ctx.Err())
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return newError(KindUpstream, resp.StatusCode, "decoding stream event: %v", err)
		}
		if len(event.Choices) == 0 {
			continue
		}

		chunk := Chunk{
			Content:      event.Choices[0].Delta.Content,
			FinishReason: event.Choices[0].FinishReason,
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if chunk.FinishReason != "" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return newError(KindCancelled, 0, "generation cancelled: %v", ctx.Err())
		}
		return newError(KindUnavailable, 0, "reading stream: %v", err)
	}
	return nil
}

// CompleteJSON asks modelID for a JSON answer and parses it. When the model
// wraps the JSON in prose, the first balanced object or array span is
// extracted before parsing; KindNoJSON is reported when none exists.
func (c *Client) CompleteJSON(ctx context.Context, prompt, modelID string, opts Options) (json.RawMessage, error) {
	jsonPrompt := prompt + "\n\nReturn only valid JSON, no explanations."
	text, err := c.Complete(ctx, jsonPrompt, modelID, opts)
	if err != nil {
		return nil, err
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	span := ExtractJSON(text)
	if span == "" || !json.Valid([]byte(span)) {
		return nil, newError(KindNoJSON, 0, "no valid JSON found in response")
	}
	return json.RawMessage(span), nil
}

func (c *Client) buildRequest(prompt, modelID string, opts Options, stream bool) ([]byte, error) {
	desc := Lookup(modelID)
	temperature, topP, maxTokens := desc.resolve(opts)

	req := chatRequest{
		Model:       modelID,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        topP,
		Stream:      stream,
		Stop:        opts.Stop,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, newError(KindInvalidInput, 0, "marshaling request: %v", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindInvalidInput, 0, "creating request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		// Explicit cancellation is its own kind. A deadline expiry is an
		// ordinary attempt failure so a fallback chain moves on.
		if errors.Is(err, context.Canceled) {
			return nil, newError(KindCancelled, 0, "generation cancelled: %v", err)
		}
		return nil, newError(KindUnavailable, 0, "executing request: %v", err)
	}
	return resp, nil
}

// statusError maps a non-200 response into the error taxonomy, consuming
// the body for the message. The caller's deferred Close stays safe.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(detail))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return newError(KindUnauthorized, resp.StatusCode, "invalid API key")
	case resp.StatusCode == http.StatusTooManyRequests:
		return newError(KindRateLimited, resp.StatusCode, "rate limit exceeded")
	case resp.StatusCode >= 500:
		return newError(KindUnavailable, resp.StatusCode, "upstream service unavailable: %s", msg)
	default:
		return newError(KindUpstream, resp.StatusCode, "upstream error: %s", msg)
	}
}
