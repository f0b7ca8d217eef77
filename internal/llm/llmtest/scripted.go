// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/asksql/asksql/internal/llm"
)

// Reply is one scripted answer. Err, when set, is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays replies in order and records every prompt it receives.
// Respond, when set, takes precedence over the queued replies.
type Scripted struct {
	Respond func(prompt llm.Prompt) (string, error)

	mu      sync.Mutex
	replies []Reply
	prompts []llm.Prompt
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func Texts(texts ...string) *Scripted {
	replies := make([]Reply, 0, len(texts))
	for _, text := range texts {
		replies = append(replies, Reply{Text: text})
	}
	return NewScripted(replies...)
}

func (s *Scripted) Complete(_ context.Context, prompt llm.Prompt) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	if s.Respond != nil {
		text, err := s.Respond(prompt)
		if err != nil {
			return llm.Completion{}, err
		}
		return llm.Completion{Text: text, Provider: "scripted", Model: "scripted-1"}, nil
	}
	if len(s.replies) == 0 {
		return llm.Completion{}, fmt.Errorf("%w: scripted: no reply left for prompt %q", llm.ErrProvider, prompt.User)
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	if reply.Err != nil {
		return llm.Completion{}, reply.Err
	}
	return llm.Completion{Text: reply.Text, Provider: "scripted", Model: "scripted-1"}, nil
}

func (s *Scripted) Prompts() []llm.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Prompt(nil), s.prompts...)
}

func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
