package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	veniceBaseURL = "https://api.venice.ai/api/v1"

	DefaultOpenAITemperature = 0.7
	DefaultOpenAIMaxTokens   = 512
)

// OpenAIService implements LLMService for any OpenAI-compatible
// chat/completions endpoint (OpenAI, Venice, OpenRouter, local servers).
type OpenAIService struct {
	baseURL    string
	apiKey     string
	modelName  string
	venice     bool
	httpClient *http.Client
	logger     *slog.Logger
}

type OpenAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type OpenAITool struct {
	Type     string         `json:"type"` // "function"
	Function OpenAIFunction `json:"function"`
}

type OpenAIToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type VeniceParameters struct {
	IncludeVeniceSystemPrompt bool   `json:"include_venice_system_prompt"`
	EnableWebSearch           string `json:"enable_web_search"`
}

type OpenAIChatRequest struct {
	Model            string             `json:"model"`
	Messages         []chat.ChatMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	Stream           bool               `json:"stream"`
	Tools            []OpenAITool       `json:"tools,omitempty"`
	ToolChoice       *OpenAIToolChoice  `json:"tool_choice,omitempty"`
	VeniceParameters *VeniceParameters  `json:"venice_parameters,omitempty"`
}

type OpenAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON encoded as a string
	} `json:"function"`
}

type OpenAIChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		Refusal   string           `json:"refusal,omitempty"`
		ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type OpenAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIService creates a service for baseURL. An empty baseURL means
// api.openai.com.
func NewOpenAIService(baseURL, apiKey, modelName string, logger *slog.Logger) *OpenAIService {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAIService{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger,
	}
}

// NewVeniceService creates an OpenAIService for Venice AI, which takes a
// few extra request parameters.
func NewVeniceService(baseURL, apiKey, modelName string, logger *slog.Logger) *OpenAIService {
	if baseURL == "" {
		baseURL = veniceBaseURL
	}
	s := NewOpenAIService(baseURL, apiKey, modelName, logger)
	s.venice = true
	return s
}

// InitModel is a no-op; hosted models need no initialization.
func (o *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (o *OpenAIService) chatCompletion(ctx context.Context, messages []chat.ChatMessage, tool *chat.Tool) (*OpenAIChatChoice, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	req := OpenAIChatRequest{
		Model:       o.modelName,
		Messages:    messages,
		Temperature: DefaultOpenAITemperature,
		MaxTokens:   DefaultOpenAIMaxTokens,
	}
	if tool != nil {
		// judgments should be repeatable
		req.Temperature = 0
		req.Tools = []OpenAITool{{
			Type: "function",
			Function: OpenAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}}
		req.ToolChoice = &OpenAIToolChoice{Type: "function"}
		req.ToolChoice.Function.Name = tool.Name
	}
	if o.venice {
		req.VeniceParameters = &VeniceParameters{EnableWebSearch: "off"}
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	body, err := postJSON(ctx, o.httpClient, o.baseURL+"/chat/completions", headers, req)
	if err != nil {
		return nil, err
	}

	var resp OpenAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused to respond: %s", choice.Message.Refusal)
	}
	return &choice, nil
}

// Chat generates a free-text response.
func (o *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	choice, err := o.chatCompletion(ctx, messages, nil)
	if err != nil {
		return nil, err
	}
	content := choice.Message.Content
	if content == "" {
		content = msgNoResponse
	}
	return &chat.ChatResponse{Message: content}, nil
}

// ChatWithTool forces a call to tool. A model that answers in plain text
// instead gets its text returned in Message.
func (o *OpenAIService) ChatWithTool(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error) {
	choice, err := o.chatCompletion(ctx, messages, &tool)
	if err != nil {
		return nil, err
	}

	resp := &chat.ChatResponse{Message: choice.Message.Content}
	for _, call := range choice.Message.ToolCalls {
		if call.Function.Name != tool.Name {
			continue
		}
		resp.ToolName = call.Function.Name
		resp.ToolArguments = json.RawMessage(call.Function.Arguments)
		break
	}
	if resp.ToolName == "" {
		o.logger.Debug("model answered without calling tool", "tool", tool.Name, "model", o.modelName)
	}
	return resp, nil
}
