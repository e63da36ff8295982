package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// appTitle is sent as X-Title, OpenRouter's attribution header.
const appTitle = "nini-artgallery"

// maxEventSize bounds a single SSE data line.
const maxEventSize = 1 << 20

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL points the client at another OpenAI-compatible API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client streams chat completions from OpenRouter or any OpenAI-compatible
// endpoint.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient returns a client authenticating with apiKey. Upstream calls are
// traced with otelhttp unless WithHTTPClient replaces the client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamResult is one decoded chunk, or the error that ended the stream.
type StreamResult struct {
	Chunk *ChatCompletionChunk
	Err   error
}

// StreamChatCompletion posts req with streaming enabled. A non-200 answer is
// returned as an *APIError. The returned channel closes at "[DONE]", at the
// end of the body, or when ctx is cancelled.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatCompletionRequest) (<-chan StreamResult, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", appTitle)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	out := make(chan StreamResult)
	go pump(ctx, resp.Body, out)
	return out, nil
}

func decodeError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
	}
}

func pump(ctx context.Context, body io.ReadCloser, out chan<- StreamResult) {
	defer close(out)
	defer body.Close()

	emit := func(r StreamResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	for sc.Scan() {
		// Anything but data lines, including OpenRouter's
		// ": OPENROUTER PROCESSING" keep-alives, is ignored.
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return
		}
		chunk := new(ChatCompletionChunk)
		if err := json.Unmarshal([]byte(data), chunk); err != nil {
			emit(StreamResult{Err: fmt.Errorf("decode chunk: %w", err)})
			return
		}
		if !emit(StreamResult{Chunk: chunk}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		emit(StreamResult{Err: fmt.Errorf("read stream: %w", err)})
	}
}
