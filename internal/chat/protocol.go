// Package chat implements the artist chat: tool declarations shared by the
// server and the client bridge, the SSE part protocol between them, and the
// POST /api/chat handler that streams model output.
package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Part types emitted on the chat stream.
const (
	PartStart     = "start"
	PartTextDelta = "text-delta"
	PartToolCall  = "tool-call"
	PartFinish    = "finish"
	PartError     = "error"
)

// Finish reasons.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
	FinishLength    = "length"
)

// Part is one event of the chat stream.
type Part struct {
	Type         string          `json:"type"`
	MessageID    string          `json:"messageId,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
	ErrorText    string          `json:"errorText,omitempty"`
}

// Message is one entry of the conversation the client resubmits each turn.
type Message struct {
	ID        string           `json:"id,omitempty"`
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ToolInvocation `json:"toolCalls,omitempty"`
}

// ToolInvocation is a tool call emitted by the model together with the
// client's result for it.
type ToolInvocation struct {
	ID      string          `json:"toolCallId"`
	Name    string          `json:"toolName"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  string          `json:"output"`
	IsError bool            `json:"isError,omitempty"`
}

// Request is the POST /api/chat body.
type Request struct {
	// ID identifies the conversation across turns.
	ID           string          `json:"id,omitempty"`
	Messages     []Message       `json:"messages"`
	Locale       string          `json:"locale,omitempty"`
	CurrentTheme json.RawMessage `json:"currentTheme,omitempty"`
}

// PartWriter encodes parts as server-sent events.
type PartWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewPartWriter sets the event-stream headers on w.
func NewPartWriter(w http.ResponseWriter) *PartWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	return &PartWriter{w: w, flusher: flusher}
}

// Write sends one part and flushes.
func (pw *PartWriter) Write(p Part) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode part: %w", err)
	}
	if _, err := fmt.Fprintf(pw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	pw.flush()
	return nil
}

// Done terminates the stream.
func (pw *PartWriter) Done() error {
	if _, err := io.WriteString(pw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	pw.flush()
	return nil
}

func (pw *PartWriter) flush() {
	if pw.flusher != nil {
		pw.flusher.Flush()
	}
}

// ErrStreamTruncated is returned when the stream ends without [DONE].
var ErrStreamTruncated = errors.New("chat: stream ended unexpectedly")

// PartReader decodes parts from a server-sent event stream.
type PartReader struct {
	scanner *bufio.Scanner
}

// NewPartReader reads parts from r.
func NewPartReader(r io.Reader) *PartReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &PartReader{scanner: scanner}
}

// Next returns the next part. It returns io.EOF after [DONE] and
// ErrStreamTruncated when the stream ends without it.
func (pr *PartReader) Next() (Part, error) {
	for pr.scanner.Scan() {
		line := pr.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return Part{}, io.EOF
		}
		var p Part
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return Part{}, fmt.Errorf("decode part: %w", err)
		}
		return p, nil
	}
	if err := pr.scanner.Err(); err != nil {
		return Part{}, err
	}
	return Part{}, ErrStreamTruncated
}
