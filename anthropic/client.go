// Package anthropic wraps the Anthropic messages API with retrying
// single-shot and streaming completion calls.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/domain"
)

const (
	apiVersion  = "2023-06-01"
	maxAttempts = 3

	// streamBuffer bounds the fragment channel so a slow consumer applies
	// backpressure to the upstream read.
	streamBuffer = 32
)

var (
	// ErrMissingAPIKey is returned before any upstream attempt when no
	// credential is configured.
	ErrMissingAPIKey = errors.New("anthropic API key is not configured")

	// ErrNoTextContent is returned when a well-formed completion response
	// contains no text block. This is a response-shape problem and is
	// never retried.
	ErrNoTextContent = errors.New("completion response contains no text content")
)

// Client is the Anthropic messages API client.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	retryBaseDelay time.Duration
}

// NewClient creates a new client. retryBaseDelay is the unit of the linear
// backoff between attempts.
func NewClient(baseURL, apiKey string, timeout, retryBaseDelay time.Duration) *Client {
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         apiKey,
		retryBaseDelay: retryBaseDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Options controls a single completion call.
type Options struct {
	Model     string
	MaxTokens int
	System    string
}

// APIError is an error response from the messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
}

// retryable reports whether the error is a transient fault worth retrying.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// isRetryable classifies an error for the retry loop. Transport-level
// failures carry no status and are treated as transient.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	return true
}

// Wire types for the messages API.

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text-only messages, or a []contentBlock
	// when attachments are present.
	Content interface{} `json:"content"`
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
}

type errorResponse struct {
	Type  string        `json:"type"`
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type streamEvent struct {
	Type  string        `json:"type"`
	Delta *streamDelta  `json:"delta,omitempty"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type streamDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// translateMessages converts stored messages to the wire form. Every
// attachment becomes its own inline image block placed before the text
// block; text-only messages use the plain string content form.
func translateMessages(messages []domain.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Attachments) == 0 {
			out = append(out, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		blocks := make([]contentBlock, 0, len(m.Attachments)+1)
		for _, att := range m.Attachments {
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: att.MediaType,
					Data:      att.Data,
				},
			})
		}
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
		out = append(out, wireMessage{Role: m.Role, Content: blocks})
	}
	return out
}

// Complete sends a single completion request and returns the first text
// block of the response.
func (c *Client) Complete(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	var resp *messagesResponse
	err := c.withRetry(ctx, func() error {
		r, err := c.createMessage(ctx, messages, opts)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrNoTextContent
}

// StreamComplete opens a streaming completion call and returns a channel of
// text fragments in upstream arrival order. The fragment channel closes when
// the stream ends; a terminal failure is delivered on the error channel
// before the close. A mid-stream failure restarts the upstream call from
// scratch; fragments already delivered are not retracted.
func (c *Client) StreamComplete(ctx context.Context, messages []domain.Message, opts Options) (<-chan string, <-chan error) {
	fragments := make(chan string, streamBuffer)
	errc := make(chan error, 1)

	go func() {
		defer close(fragments)
		if c.apiKey == "" {
			errc <- ErrMissingAPIKey
			return
		}
		err := c.withRetry(ctx, func() error {
			return c.streamMessage(ctx, messages, opts, fragments)
		})
		if err != nil {
			errc <- err
		}
	}()

	return fragments, errc
}

// withRetry runs fn up to maxAttempts times, waiting attempt*retryBaseDelay
// between attempts. Non-transient errors and the final failure are returned
// unchanged so callers can inspect the root cause.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}
		select {
		case <-time.After(time.Duration(attempt) * c.retryBaseDelay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// createMessage issues one non-streaming messages API call.
func (c *Client) createMessage(ctx context.Context, messages []domain.Message, opts Options) (*messagesResponse, error) {
	req := messagesRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    opts.System,
		Messages:  translateMessages(messages),
	}

	resp, err := c.send(ctx, &req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromBody(resp.StatusCode, respBody)
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// streamMessage issues one streaming messages API call, forwarding only
// text-delta fragments into out in arrival order.
func (c *Client) streamMessage(ctx context.Context, messages []domain.Message, opts Options, out chan<- string) error {
	req := messagesRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    opts.System,
		Messages:  translateMessages(messages),
		Stream:    true,
	}

	resp, err := c.send(ctx, &req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return apiErrorFromBody(resp.StatusCode, respBody)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed chunks
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta == nil || event.Delta.Type != "text_delta" {
				continue
			}
			select {
			case out <- event.Delta.Text:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "error":
			apiErr := &APIError{StatusCode: http.StatusInternalServerError}
			if event.Error != nil {
				apiErr.Type = event.Error.Type
				apiErr.Message = event.Error.Message
			}
			return apiErr
		case "message_stop":
			return nil
		default:
			// message_start, content_block_start/stop, message_delta, ping
		}
	}
}

// send issues the HTTP request for a messages API call.
func (c *Client) send(ctx context.Context, req *messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// apiErrorFromBody builds an APIError from a non-200 response body.
func apiErrorFromBody(statusCode int, body []byte) *APIError {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return &APIError{StatusCode: statusCode, Type: errResp.Error.Type, Message: errResp.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: string(body)}
}
