package llms

import (
	"context"
	"strings"
	"sync"
)

// MockProvider echoes the last user message and counts whitespace-split
// tokens, matching the runtime's own token estimator. A fixed response or
// an error can be injected for failure-path tests.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// WithResponses queues canned responses returned in order; once drained
// the provider falls back to echoing.
func (p *MockProvider) WithResponses(responses ...string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
	return p
}

// WithError makes every Generate call fail with err.
func (p *MockProvider) WithError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

func (p *MockProvider) Generate(ctx context.Context, messages []ChatMessage, cfg ModelConfig) (*GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	var text string
	if len(p.responses) > 0 {
		text = p.responses[0]
		p.responses = p.responses[1:]
	} else {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == "user" {
				text = messages[i].Content
				break
			}
		}
	}

	promptTokens := 0
	for _, m := range messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	completionTokens := len(strings.Fields(text))

	return &GenerateResult{
		Text:             text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

func (p *MockProvider) GetName() string {
	return "mock"
}

// Calls returns how many Generate calls the provider has served.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
