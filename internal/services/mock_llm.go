package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing and for
// offline play with the "mock" provider kind.
type MockLLMAPI struct {
	InitModelFunc    func(ctx context.Context, modelName string) error
	ChatFunc         func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
	ChatWithToolFunc func(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error)

	// Track calls for testing
	InitModelCalls    []string
	ChatCalls         []ChatCall
	ChatWithToolCalls []ChatCall

	mu sync.Mutex // protects all fields above
}

type ChatCall struct {
	Messages []chat.ChatMessage
	Tool     *chat.Tool
}

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		InitModelCalls:    make([]string, 0),
		ChatCalls:         make([]ChatCall, 0),
		ChatWithToolCalls: make([]ChatCall, 0),
	}
}

// InitModel mocks model initialization
func (m *MockLLMAPI) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	fn := m.InitModelFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelName)
	}
	return nil
}

// Chat mocks a free-text reply
func (m *MockLLMAPI) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, ChatCall{Messages: messages})
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return &chat.ChatResponse{Message: "Mock response"}, nil
}

// ChatWithTool mocks a tool call. By default it answers with a value of the
// type the tool's "value" property declares.
func (m *MockLLMAPI) ChatWithTool(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.ChatWithToolCalls = append(m.ChatWithToolCalls, ChatCall{Messages: messages, Tool: &tool})
	fn := m.ChatWithToolFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, tool)
	}

	args, _ := json.Marshal(map[string]any{"value": defaultToolValue(tool.Parameters)})
	return &chat.ChatResponse{ToolName: tool.Name, ToolArguments: args}, nil
}

func defaultToolValue(params json.RawMessage) any {
	var schema struct {
		Properties struct {
			Value struct {
				Type string `json:"type"`
			} `json:"value"`
		} `json:"properties"`
	}
	_ = json.Unmarshal(params, &schema)
	switch schema.Properties.Value.Type {
	case "string":
		return "steady"
	case "boolean":
		return true
	}
	return 1
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.ChatCalls = make([]ChatCall, 0)
	m.ChatWithToolCalls = make([]ChatCall, 0)
}

// SetInitModelError sets up the mock to return an error on InitModel
func (m *MockLLMAPI) SetInitModelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelFunc = func(ctx context.Context, modelName string) error {
		return err
	}
}

// SetChatError sets up the mock to fail both Chat and ChatWithTool
func (m *MockLLMAPI) SetChatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		return nil, err
	}
	m.ChatWithToolFunc = func(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error) {
		return nil, err
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMAPI) GetCalls() ([]ChatCall, []ChatCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chatCalls := make([]ChatCall, len(m.ChatCalls))
	copy(chatCalls, m.ChatCalls)

	toolCalls := make([]ChatCall, len(m.ChatWithToolCalls))
	copy(toolCalls, m.ChatWithToolCalls)

	return chatCalls, toolCalls
}
