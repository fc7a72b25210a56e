// Package judgment requests structured or free-text judgments from named
// LLM providers and validates what comes back.
//
// Every request runs under a per-call timeout and is retried with capped
// exponential backoff. Failures are classified as ErrProviderUnavailable,
// ErrTimeout or ErrInvalidJudgment; once the attempt budget is spent the last
// classification is returned inside an *Error.
package judgment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/sethvargo/go-retry"
)

// Provider is the transport the client talks to. internal/services
// implements it for each LLM backend.
type Provider interface {
	Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
	ChatWithTool(ctx context.Context, messages []chat.ChatMessage, tool chat.Tool) (*chat.ChatResponse, error)
}

const (
	DefaultMaxAttempts = 3
	DefaultCallTimeout = 60 * time.Second
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultRetryCap    = 10 * time.Second
)

// Config tunes retries and timeouts. Zero fields take the defaults.
type Config struct {
	DefaultProvider string
	MaxAttempts     int
	CallTimeout     time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = DefaultRetryCap
	}
	return c
}

// Request asks a provider for one judgment. With a nil Schema the reply is
// free text.
type Request struct {
	Provider string // empty selects the default provider
	System   string
	Prompt   string
	Schema   *scenario.ToolSchema
}

// Result is a successful judgment.
type Result struct {
	Provider string
	Value    scenario.Value // set when a schema was given
	Text     string         // raw reply text, if any
	Attempts int
}

// Client resolves providers by name and enforces the retry policy.
type Client struct {
	providers map[string]Provider
	cfg       Config
	logger    *slog.Logger
}

func NewClient(providers map[string]Provider, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		providers: providers,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Providers returns the registered provider names in sorted order.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProvider reports whether name (or the default, for "") is registered.
func (c *Client) HasProvider(name string) bool {
	_, ok := c.providers[c.resolveName(name)]
	return ok
}

func (c *Client) resolveName(name string) string {
	if name == "" {
		return c.cfg.DefaultProvider
	}
	return name
}

// RequestJudgment obtains a judgment, retrying classified failures. If ctx
// is cancelled the context error is returned as-is.
func (c *Client) RequestJudgment(ctx context.Context, req Request) (Result, error) {
	name := c.resolveName(req.Provider)
	p, ok := c.providers[name]
	if !ok {
		return Result{}, &Error{
			Provider: name,
			Err:      fmt.Errorf("%w: no provider named %q", ErrProviderUnavailable, name),
		}
	}

	backoff := retry.NewExponential(c.cfg.RetryBase)
	backoff = retry.WithCappedDuration(c.cfg.RetryCap, backoff)
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), backoff)

	var (
		result   Result
		lastErr  error
		attempts int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		res, err := c.attempt(ctx, p, req)
		if err == nil {
			result = res
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		c.logger.Warn("judgment attempt failed",
			"provider", name,
			"attempt", attempts,
			"max_attempts", c.cfg.MaxAttempts,
			"error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if lastErr == nil {
			lastErr = err
		}
		return Result{}, &Error{Provider: name, Attempts: attempts, Err: lastErr}
	}

	result.Provider = name
	result.Attempts = attempts
	return result, nil
}

// attempt makes one provider call under the per-call timeout.
func (c *Client) attempt(ctx context.Context, p Provider, req Request) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	messages := make([]chat.ChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleSystem, Content: req.System})
	}
	messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleUser, Content: req.Prompt})

	var (
		resp *chat.ChatResponse
		err  error
	)
	if req.Schema == nil {
		resp, err = p.Chat(callCtx, messages)
	} else {
		tool := chat.Tool{
			Name:        ToolName,
			Description: toolDescription(*req.Schema),
			Parameters:  toolParameters(*req.Schema),
		}
		c.logger.Debug("judgment tool request", "tool", tool.Name, "type", req.Schema.Type, "prompt", req.Prompt)
		resp, err = p.ChatWithTool(callCtx, messages, tool)
	}
	if err != nil {
		return Result{}, classify(ctx, callCtx, err)
	}
	if resp == nil {
		return Result{}, fmt.Errorf("%w: provider returned no response", ErrInvalidJudgment)
	}

	if req.Schema == nil {
		text := strings.TrimSpace(resp.Message)
		if text == "" {
			return Result{}, invalidf("empty reply")
		}
		return Result{Text: text}, nil
	}

	var v scenario.Value
	if len(resp.ToolArguments) > 0 {
		v, err = decodeArguments(resp.ToolArguments, req.Schema.Type)
	} else {
		v, err = decodeText(resp.Message, req.Schema.Type)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Text: resp.Message}, nil
}

func toolDescription(schema scenario.ToolSchema) string {
	if schema.Description != "" {
		return "Record your judgment. " + schema.Description
	}
	return "Record your judgment as a single " + string(schema.Type) + " value."
}

// classify maps a provider error onto the judgment error taxonomy.
func classify(parent, call context.Context, err error) error {
	switch {
	case IsRetryable(err):
		return err
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(call.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
