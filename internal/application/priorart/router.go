// Package priorart implements the prior-art search pipeline: the router that
// turns an idea into a search sentence, the similarity judge, the report
// synthesizer and the orchestrator that runs them in order.
package priorart

import (
	"context"
	"strings"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

const (
	routerMaxTokens      = 1024
	judgeMaxTokens       = 1024
	synthesizerMaxTokens = 4096
)

// Router classifies an idea as vague or specific.
type Router struct {
	llm    completion.Service
	logger logging.Logger
}

// NewRouter creates a Router.
func NewRouter(llm completion.Service, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{llm: llm, logger: logger.Named("router")}
}

// Classify makes one completion call. A reply without a tool call is a
// request for clarification; a single search_query call is a search.
func (r *Router) Classify(ctx context.Context, idea domain.Idea) (domain.RouterDecision, error) {
	if idea.IsBlank() {
		return domain.RouterDecision{}, errors.New(errors.ErrCodeInput, "idea is empty")
	}

	resp, err := r.llm.Complete(ctx, &completion.Request{
		System:     routerSystemPrompt,
		Messages:   []completion.Message{completion.UserMessage(strings.TrimSpace(string(idea)))},
		Tools:      []completion.ToolName{completion.ToolSearchQuery},
		ToolChoice: completion.Auto(),
		MaxTokens:  routerMaxTokens,
	})
	if err != nil {
		return domain.RouterDecision{}, errors.Wrap(err, errors.CodeUnknown, "router completion failed")
	}

	text := strings.TrimSpace(resp.Text)
	switch len(resp.ToolCalls) {
	case 0:
		if text == "" {
			return domain.RouterDecision{}, errors.New(errors.ErrCodeToolProtocol, "router returned neither text nor tool call")
		}
		r.logger.Debug("idea classified as vague", logging.Int("message_len", len(text)))
		return domain.Vague(text), nil
	case 1:
	default:
		return domain.RouterDecision{}, errors.Newf(errors.ErrCodeToolProtocol, "router made %d tool calls, expected 1", len(resp.ToolCalls))
	}

	inv, err := completion.Decode(resp.ToolCalls[0])
	if err != nil {
		return domain.RouterDecision{}, errors.Wrap(err, errors.ErrCodeToolProtocol, "invalid router tool call")
	}
	call, ok := inv.(completion.SearchQueryCall)
	if !ok {
		return domain.RouterDecision{}, errors.Newf(errors.ErrCodeToolProtocol, "router called %s, expected %s", inv.Tool(), completion.ToolSearchQuery)
	}

	r.logger.Debug("idea classified as specific", logging.String("search_query", call.QueryText))
	return domain.Specific(domain.SearchQuery(call.QueryText), text), nil
}
