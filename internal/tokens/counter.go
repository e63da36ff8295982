// Package tokens counts prompt tokens and trims chat history to a budget.
package tokens

import (
	"github.com/HugeFrog24/nini-artgallery/internal/api/openai"
)

// Counter counts the prompt tokens of chat completion messages.
type Counter interface {
	CountMessage(model string, msg openai.ChatCompletionMessage) (int, error)
	CountRequest(req *openai.ChatCompletionRequest) (int, error)
}

var shared = &Tiktoken{}

// ForModel returns the tiktoken counter when the model's encoding is known
// and a character estimator otherwise.
func ForModel(model string) Counter {
	if _, ok := encodingFor(model); ok {
		return shared
	}
	return NewEstimator()
}

// Estimator approximates tokens from character counts.
type Estimator struct {
	CharsPerToken float64
}

// NewEstimator returns an estimator at four characters per token.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountMessage(_ string, msg openai.ChatCompletionMessage) (int, error) {
	chars := len(msg.Role) + len(msg.Content) + 4
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Function.Name) + len(tc.Function.Arguments)
	}
	return int(float64(chars) / e.CharsPerToken), nil
}

func (e *Estimator) CountRequest(req *openai.ChatCompletionRequest) (int, error) {
	total := 0
	for _, msg := range req.Messages {
		n, _ := e.CountMessage(req.Model, msg)
		total += n
	}
	for _, tool := range req.Tools {
		chars := len(tool.Function.Name) + len(tool.Function.Description) + len(tool.Function.Parameters)
		total += int(float64(chars) / e.CharsPerToken)
	}
	return total, nil
}
