package judgment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// fakeProvider records calls and delegates to func fields.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	lastTool chat.Tool
	lastMsgs []chat.ChatMessage
	chatFunc func(ctx context.Context, call int) (*chat.ChatResponse, error)
	toolFunc func(ctx context.Context, call int) (*chat.ChatResponse, error)
}

func (f *fakeProvider) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.lastMsgs = messages
	f.mu.Unlock()
	return f.chatFunc(ctx, n)
}

func (f *fakeProvider) ChatWithTool(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.lastMsgs = messages
	f.lastTool = tool
	f.mu.Unlock()
	return f.toolFunc(ctx, n)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func toolReply(args string) func(context.Context, int) (*chat.ChatResponse, error) {
	return func(context.Context, int) (*chat.ChatResponse, error) {
		return &chat.ChatResponse{ToolName: ToolName, ToolArguments: json.RawMessage(args)}, nil
	}
}

func testClient(p Provider) *Client {
	return NewClient(map[string]Provider{"judge": p}, Config{
		DefaultProvider: "judge",
		CallTimeout:     50 * time.Millisecond,
		RetryBase:       time.Millisecond,
		RetryCap:        2 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestJudgment_Structured(t *testing.T) {
	p := &fakeProvider{toolFunc: toolReply(`{"value": 7}`)}
	c := testClient(p)

	res, err := c.RequestJudgment(context.Background(), Request{
		System: "You are an impartial judge.",
		Prompt: "How much influence?",
		Schema: &scenario.ToolSchema{Type: scenario.PrimitiveInteger, Description: "change in influence"},
	})
	if err != nil {
		t.Fatalf("RequestJudgment failed: %v", err)
	}
	if n, ok := res.Value.Number(); !ok || n != 7 {
		t.Errorf("Value = %v, want number 7", res.Value)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if res.Provider != "judge" {
		t.Errorf("Provider = %q, want judge", res.Provider)
	}
	if p.lastTool.Name != ToolName {
		t.Errorf("tool name = %q", p.lastTool.Name)
	}
	if !strings.Contains(string(p.lastTool.Parameters), `"integer"`) {
		t.Errorf("tool parameters missing declared type: %s", p.lastTool.Parameters)
	}
	if len(p.lastMsgs) != 2 || p.lastMsgs[0].Role != chat.ChatRoleSystem {
		t.Errorf("expected system + user messages, got %+v", p.lastMsgs)
	}
}

func TestRequestJudgment_FreeText(t *testing.T) {
	p := &fakeProvider{chatFunc: func(context.Context, int) (*chat.ChatResponse, error) {
		return &chat.ChatResponse{Message: "  We blockade Berlin.  "}, nil
	}}
	res, err := testClient(p).RequestJudgment(context.Background(), Request{Prompt: "Your move?"})
	if err != nil {
		t.Fatalf("RequestJudgment failed: %v", err)
	}
	if res.Text != "We blockade Berlin." {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.Value.IsZero() {
		t.Errorf("free-text judgment should carry no Value, got %v", res.Value)
	}
}

func TestRequestJudgment_RetryThenSucceed(t *testing.T) {
	p := &fakeProvider{toolFunc: func(ctx context.Context, call int) (*chat.ChatResponse, error) {
		if call < 3 {
			return nil, errors.New("connection reset")
		}
		return &chat.ChatResponse{ToolArguments: json.RawMessage(`{"value":"USA"}`)}, nil
	}}
	res, err := testClient(p).RequestJudgment(context.Background(), Request{
		Prompt: "Who leads?",
		Schema: &scenario.ToolSchema{Type: scenario.PrimitiveString},
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if s, _ := res.Value.Text(); s != "USA" {
		t.Errorf("Value = %v, want USA", res.Value)
	}
}

func TestRequestJudgment_Exhaustion(t *testing.T) {
	tests := []struct {
		name     string
		toolFunc func(context.Context, int) (*chat.ChatResponse, error)
		want     error
	}{
		{
			name: "provider down",
			toolFunc: func(context.Context, int) (*chat.ChatResponse, error) {
				return nil, errors.New("401 unauthorized")
			},
			want: ErrProviderUnavailable,
		},
		{
			name:     "uncoercible reply",
			toolFunc: toolReply(`{"value":"lots"}`),
			want:     ErrInvalidJudgment,
		},
		{
			name:     "arguments not JSON",
			toolFunc: toolReply(`value=3`),
			want:     ErrInvalidJudgment,
		},
		{
			name: "timeout",
			toolFunc: func(ctx context.Context, _ int) (*chat.ChatResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			want: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{toolFunc: tt.toolFunc}
			_, err := testClient(p).RequestJudgment(context.Background(), Request{
				Prompt: "score?",
				Schema: &scenario.ToolSchema{Type: scenario.PrimitiveNumber},
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var je *Error
			if !errors.As(err, &je) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if je.Attempts != DefaultMaxAttempts {
				t.Errorf("Attempts = %d, want %d", je.Attempts, DefaultMaxAttempts)
			}
			if p.Calls() != DefaultMaxAttempts {
				t.Errorf("provider called %d times, want %d", p.Calls(), DefaultMaxAttempts)
			}
		})
	}
}

func TestRequestJudgment_UnknownProviderNotRetried(t *testing.T) {
	p := &fakeProvider{}
	_, err := testClient(p).RequestJudgment(context.Background(), Request{Provider: "nobody", Prompt: "?"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if p.Calls() != 0 {
		t.Errorf("provider called %d times, want 0", p.Calls())
	}
}

func TestRequestJudgment_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{toolFunc: func(context.Context, int) (*chat.ChatResponse, error) {
		cancel()
		return nil, errors.New("boom")
	}}
	_, err := testClient(p).RequestJudgment(ctx, Request{
		Prompt: "?",
		Schema: &scenario.ToolSchema{Type: scenario.PrimitiveNumber},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.Calls() != 1 {
		t.Errorf("provider called %d times after cancel, want 1", p.Calls())
	}
}

func TestRequestJudgment_EmptyFreeText(t *testing.T) {
	p := &fakeProvider{chatFunc: func(context.Context, int) (*chat.ChatResponse, error) {
		return &chat.ChatResponse{Message: "   "}, nil
	}}
	_, err := testClient(p).RequestJudgment(context.Background(), Request{Prompt: "?"})
	if !errors.Is(err, ErrInvalidJudgment) {
		t.Fatalf("expected ErrInvalidJudgment, got %v", err)
	}
}

func TestHasProvider(t *testing.T) {
	c := testClient(&fakeProvider{})
	if !c.HasProvider("") {
		t.Error("default provider should resolve")
	}
	if c.HasProvider("gpt") {
		t.Error("unregistered provider should not resolve")
	}
	if got := c.Providers(); len(got) != 1 || got[0] != "judge" {
		t.Errorf("Providers() = %v", got)
	}
}
