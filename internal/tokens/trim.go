package tokens

import (
	"github.com/HugeFrog24/nini-artgallery/internal/api/openai"
)

// TrimHistory drops the oldest conversation turns from req.Messages until the
// request fits budget tokens. Leading system messages are always kept, as is
// the newest turn. A turn starts at a user message, so an assistant tool-call
// message is never separated from its tool results. It returns the number of
// messages dropped. A budget of zero or less disables trimming.
func TrimHistory(counter Counter, req *openai.ChatCompletionRequest, budget int) (int, error) {
	if budget <= 0 {
		return 0, nil
	}
	total, err := counter.CountRequest(req)
	if err != nil {
		return 0, err
	}
	if total <= budget {
		return 0, nil
	}

	head := 0
	for head < len(req.Messages) && req.Messages[head].Role == openai.RoleSystem {
		head++
	}
	history := req.Messages[head:]

	// Indexes (into history) where a turn begins.
	var turns []int
	for i, msg := range history {
		if msg.Role == openai.RoleUser {
			turns = append(turns, i)
		}
	}

	if len(turns) < 2 {
		return 0, nil
	}

	cut := 0
	for _, start := range turns[1:] {
		if total <= budget {
			break
		}
		for _, msg := range history[cut:start] {
			n, err := counter.CountMessage(req.Model, msg)
			if err != nil {
				return 0, err
			}
			total -= n
		}
		cut = start
	}
	if cut == 0 {
		return 0, nil
	}

	kept := make([]openai.ChatCompletionMessage, 0, head+len(history)-cut)
	kept = append(kept, req.Messages[:head]...)
	kept = append(kept, history[cut:]...)
	req.Messages = kept
	return cut, nil
}
