package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
)

// Stream yields the parts of one model turn.
type Stream interface {
	// Next returns io.EOF once the turn is complete.
	Next() (chat.Part, error)
	Close() error
}

// Transport opens one model turn for a conversation.
type Transport interface {
	Stream(ctx context.Context, req chat.Request) (Stream, error)
}

// HTTPError is a non-200 answer from the chat endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chat endpoint returned %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport posts conversations to a gallery's /api/chat endpoint.
type HTTPTransport struct {
	URL    string
	Client *http.Client
	// Header is added to every request, e.g. a Host override.
	Header http.Header
}

func (t *HTTPTransport) Stream(ctx context.Context, req chat.Request) (Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, vs := range t.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if host := t.Header.Get("Host"); host != "" {
		httpReq.Host = host
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	return &httpStream{body: resp.Body, reader: chat.NewPartReader(resp.Body)}, nil
}

type httpStream struct {
	body   io.ReadCloser
	reader *chat.PartReader
}

func (s *httpStream) Next() (chat.Part, error) { return s.reader.Next() }
func (s *httpStream) Close() error { return s.body.Close() }
