// Package anthropic implements completion.Service on top of the Anthropic
// Messages API.
package anthropic

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Messager is the subset of the SDK client used here.
type Messager interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Config configures the client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
	Timeout     time.Duration
}

// Client is a completion.Service backed by Anthropic.
type Client struct {
	messages Messager
	cfg      Config
	logger   logging.Logger
}

var newMessager = func(cfg Config) Messager {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	c := sdk.NewClient(opts...)
	return &c.Messages
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.InvalidParam("anthropic: api key is required")
	}
	return NewClientWithMessager(newMessager(cfg), cfg, logger), nil
}

// NewClientWithMessager builds a Client around an existing Messager.
func NewClientWithMessager(m Messager, cfg Config, logger logging.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{messages: m, cfg: cfg, logger: logger.Named("anthropic")}
}

// Complete implements completion.Service.
func (c *Client) Complete(ctx context.Context, req *completion.Request) (*completion.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		c.logger.Warn("completion request failed",
			logging.String("model", c.cfg.Model),
			logging.Duration("elapsed", time.Since(start)),
			logging.Err(err))
		return nil, mapError(ctx, err)
	}

	resp := toResponse(msg)
	c.logger.Debug("completion finished",
		logging.String("model", resp.Model),
		logging.Int("tool_calls", len(resp.ToolCalls)),
		logging.Int64("input_tokens", resp.Usage.InputTokens),
		logging.Int64("output_tokens", resp.Usage.OutputTokens),
		logging.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (c *Client) buildParams(req *completion.Request) (sdk.MessageNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.InvalidParam("anthropic: request has no messages")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.cfg.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    make([]sdk.MessageParam, 0, len(req.Messages)),
		Temperature: sdk.Float(c.cfg.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case completion.RoleUser:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case completion.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return sdk.MessageNewParams{}, errors.InvalidParam(fmt.Sprintf("anthropic: unsupported role %q", m.Role))
		}
	}

	for _, name := range req.Tools {
		spec, ok := completion.Spec(name)
		if !ok {
			return sdk.MessageNewParams{}, completion.ErrUnknownTool.WithDetailf("name=%q", name)
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        string(spec.Name),
			Description: sdk.String(spec.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: spec.Properties,
				Required:   spec.Required,
			},
		}})
	}

	if len(params.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case completion.ToolChoiceForced:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfTool: &sdk.ToolChoiceToolParam{Name: string(req.ToolChoice.Name)}}
		case completion.ToolChoiceNone:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &sdk.ToolChoiceNoneParam{}}
		default:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{}}
		}
	}

	return params, nil
}

func toResponse(msg *sdk.Message) *completion.Response {
	resp := &completion.Response{
		Model: string(msg.Model),
		Usage: completion.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, completion.ToolCall{
				Name:      b.Name,
				Arguments: []byte(b.Input),
			})
		}
	}
	resp.Text = strings.TrimSpace(text.String())
	return resp
}

// mapError converts SDK and transport failures into AppErrors. Context
// errors stay in the chain so callers can tell deadlines from cancellation.
func mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !stderrors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrCodeServiceTimeout, "completion request timed out")
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrCodeCancelled, "completion request cancelled")
	}

	var apiErr *sdk.Error
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return errors.Wrap(err, errors.ErrCodeCompletionRateLimited, "completion service rate limited")
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return errors.Wrap(err, errors.ErrCodeServiceTimeout, "completion service timed out")
		case apiErr.StatusCode >= 500:
			return errors.Wrap(err, errors.ErrCodeCompletionService, "completion service error")
		default:
			return errors.Wrap(err, errors.ErrCodeCompletionRejected, "completion request rejected").
				WithDetailf("status=%d", apiErr.StatusCode)
		}
	}
	return errors.Wrap(err, errors.ErrCodeCompletionService, "completion transport error")
}

var _ completion.Service = (*Client)(nil)
