package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"google.golang.org/api/option"
)

// GeminiService implements LLMService on the Google Gemini SDK.
type GeminiService struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

func NewGeminiService(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiService{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (g *GeminiService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (g *GeminiService) Close() error {
	return g.client.Close()
}

// model returns a fresh model handle; tool settings are per request.
func (g *GeminiService) model(system string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m
}

// splitGeminiMessages turns chat messages into a system instruction, prior
// history and the final user turn.
func splitGeminiMessages(messages []chat.ChatMessage) (string, []*genai.Content, []genai.Part, error) {
	var system []string
	var history []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case chat.ChatRoleSystem:
			system = append(system, msg.Content)
		case chat.ChatRoleAgent:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(history) == 0 {
		return "", nil, nil, fmt.Errorf("no messages provided")
	}
	last := history[len(history)-1]
	return strings.Join(system, "\n\n"), history[:len(history)-1], last.Parts, nil
}

func (g *GeminiService) send(ctx context.Context, m *genai.GenerativeModel, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	cs := m.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from API")
	}
	return resp, nil
}

func (g *GeminiService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	system, history, parts, err := splitGeminiMessages(messages)
	if err != nil {
		return nil, err
	}
	resp, err := g.send(ctx, g.model(system), history, parts)
	if err != nil {
		return nil, err
	}
	text := geminiText(resp.Candidates[0].Content)
	if text == "" {
		text = msgNoResponse
	}
	return &chat.ChatResponse{Message: text}, nil
}

func (g *GeminiService) ChatWithTool(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error) {
	system, history, parts, err := splitGeminiMessages(messages)
	if err != nil {
		return nil, err
	}
	schema, err := toGenaiSchema(tool.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to convert tool schema: %w", err)
	}

	m := g.model(system)
	m.SetTemperature(0)
	m.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		}},
	}}
	m.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{tool.Name},
		},
	}

	resp, err := g.send(ctx, m, history, parts)
	if err != nil {
		return nil, err
	}

	content := resp.Candidates[0].Content
	out := &chat.ChatResponse{Message: geminiText(content)}
	for _, part := range content.Parts {
		call, ok := part.(genai.FunctionCall)
		if !ok || call.Name != tool.Name {
			continue
		}
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode function arguments: %w", err)
		}
		out.ToolName = call.Name
		out.ToolArguments = args
		break
	}
	return out, nil
}

func geminiText(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

type jsonSchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description"`
	Enum        []string                   `json:"enum"`
	Properties  map[string]json.RawMessage `json:"properties"`
	Required    []string                   `json:"required"`
	Items       json.RawMessage            `json:"items"`
}

// toGenaiSchema converts the subset of JSON Schema used for judgment tools.
func toGenaiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, err
	}

	out := &genai.Schema{
		Description: js.Description,
		Enum:        js.Enum,
		Required:    js.Required,
	}
	switch js.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		return nil, fmt.Errorf("unsupported schema type %q", js.Type)
	}

	if len(js.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, prop := range js.Properties {
			s, err := toGenaiSchema(prop)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = s
		}
	}
	if len(js.Items) > 0 {
		s, err := toGenaiSchema(js.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = s
	}
	return out, nil
}
