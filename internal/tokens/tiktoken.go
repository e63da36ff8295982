package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/HugeFrog24/nini-artgallery/internal/api/openai"
)

// Framing overheads of the chat completion format.
const (
	perMessage  = 4
	perToolCall = 3
	perTool     = 7
	replyPrimer = 3
)

// Tiktoken counts tokens with the BPE encoding of OpenAI models. Model names
// may carry a router vendor prefix such as "openai/".
type Tiktoken struct {
	codecs sync.Map // tokenizer.Encoding -> tokenizer.Codec
}

// encodingFor maps a model name to its encoding.
func encodingFor(model string) (tokenizer.Encoding, bool) {
	model = strings.ToLower(model)
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase, true
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase, true
	default:
		return "", false
	}
}

// Supports reports whether the model's encoding is known.
func (t *Tiktoken) Supports(model string) bool {
	_, ok := encodingFor(model)
	return ok
}

func (t *Tiktoken) codec(model string) (tokenizer.Codec, error) {
	enc, ok := encodingFor(model)
	if !ok {
		return nil, fmt.Errorf("no tokenizer for model %q", model)
	}
	if c, ok := t.codecs.Load(enc); ok {
		return c.(tokenizer.Codec), nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", enc, err)
	}
	actual, _ := t.codecs.LoadOrStore(enc, c)
	return actual.(tokenizer.Codec), nil
}

func count(c tokenizer.Codec, texts ...string) int {
	n := 0
	for _, s := range texts {
		ids, _, _ := c.Encode(s)
		n += len(ids)
	}
	return n
}

func countMessage(c tokenizer.Codec, msg openai.ChatCompletionMessage) int {
	n := perMessage + count(c, msg.Content)
	for _, tc := range msg.ToolCalls {
		n += perToolCall + count(c, tc.Function.Name, tc.Function.Arguments)
	}
	return n
}

// CountMessage counts one message including its framing.
func (t *Tiktoken) CountMessage(model string, msg openai.ChatCompletionMessage) (int, error) {
	c, err := t.codec(model)
	if err != nil {
		return 0, err
	}
	return countMessage(c, msg), nil
}

// CountRequest counts every message and tool declaration of req.
func (t *Tiktoken) CountRequest(req *openai.ChatCompletionRequest) (int, error) {
	c, err := t.codec(req.Model)
	if err != nil {
		return 0, err
	}
	total := replyPrimer
	for _, msg := range req.Messages {
		total += countMessage(c, msg)
	}
	for _, tool := range req.Tools {
		total += perTool + count(c, tool.Function.Name, tool.Function.Description, string(tool.Function.Parameters))
	}
	return total, nil
}
