package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ChatMessage is one turn of dialogue handed to the model.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request captures the normalized model input produced by experts.
type Request struct {
	// System carries the expert's instructions plus item/history framing.
	System string `json:"system"`
	// Messages is the dialogue suffix, newest last.
	Messages []ChatMessage `json:"messages"`
	// Temperature overrides the adapter default when > 0.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens overrides the adapter default when > 0.
	MaxTokens int64 `json:"max_tokens,omitempty"`
	// EnableSearch asks providers that support it to ground the answer with
	// a web search pass. Ignored elsewhere.
	EnableSearch bool `json:"enable_search,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Completer is the minimal interface experts need to drive generation.
// Implementations must honor ctx cancellation; the router applies the
// configured llm_timeout before every call.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockCompleter is a lightweight in-memory Completer for tests. Responses are
// keyed by the newest message content; unseeded prompts get a canned echo.
// The call counter backs assertions that rule-path classification never
// touches the model.
type MockCompleter struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	calls     int
	err       error
}

// NewMockCompleter constructs an empty mock.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input.
func (m *MockCompleter) AddResponse(input, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[input] = response
}

// FailWith makes every subsequent call return err.
func (m *MockCompleter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many completions have been requested.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	input := req.Messages[len(req.Messages)-1].Content
	if resp, ok := m.responses[input]; ok {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", strings.TrimSpace(input)), nil
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return m.info }
