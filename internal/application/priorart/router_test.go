package priorart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	apperrors "github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// replying returns a Service that captures the request and answers with resp.
func replying(resp *completion.Response, err error, captured **completion.Request) completion.Service {
	return completion.ServiceFunc(func(_ context.Context, req *completion.Request) (*completion.Response, error) {
		if captured != nil {
			*captured = req
		}
		return resp, err
	})
}

func searchCall(args string) completion.ToolCall {
	return completion.ToolCall{Name: string(completion.ToolSearchQuery), Arguments: []byte(args)}
}

func evalCall(args string) completion.ToolCall {
	return completion.ToolCall{Name: string(completion.ToolEvalScore), Arguments: []byte(args)}
}

func TestRouter_Classify_Vague(t *testing.T) {
	var req *completion.Request
	msg := "'자동차'만으로는 범위가 너무 넓습니다. 어떤 문제를 해결하려는지 알려주세요."
	r := NewRouter(replying(&completion.Response{Text: msg}, nil, &req), nil)

	d, err := r.Classify(context.Background(), "자동차")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionVague, d.Kind)
	assert.Equal(t, msg, d.ClarifyingMessage)

	require.NotNil(t, req)
	assert.Equal(t, completion.ToolChoiceAuto, req.ToolChoice.Mode)
	assert.Equal(t, []completion.ToolName{completion.ToolSearchQuery}, req.Tools)
	assert.Equal(t, routerSystemPrompt, req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "자동차", req.Messages[0].Content)
}

func TestRouter_Classify_Specific(t *testing.T) {
	resp := &completion.Response{
		Text:      "보호자 편의를 고려한 좋은 아이디어입니다.",
		ToolCalls: []completion.ToolCall{searchCall(`{"query_text":"보호자 냉방을 위해 손잡이 프레임에 결합된 송풍 장치를 구비한 유모차"}`)},
	}
	r := NewRouter(replying(resp, nil, nil), nil)

	d, err := r.Classify(context.Background(), "유모차 손잡이에 선풍기를 달아서 부모가 시원하게")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionSpecific, d.Kind)
	assert.Equal(t, domain.SearchQuery("보호자 냉방을 위해 손잡이 프레임에 결합된 송풍 장치를 구비한 유모차"), d.SearchQuery)
	assert.Equal(t, "보호자 편의를 고려한 좋은 아이디어입니다.", d.PrecedingMessage)
}

func TestRouter_Classify_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *completion.Response
	}{
		{"empty response", &completion.Response{Text: "  "}},
		{"two tool calls", &completion.Response{ToolCalls: []completion.ToolCall{
			searchCall(`{"query_text":"a"}`), searchCall(`{"query_text":"b"}`),
		}}},
		{"unknown tool", &completion.Response{ToolCalls: []completion.ToolCall{{Name: "web_search", Arguments: []byte(`{}`)}}}},
		{"missing query_text", &completion.Response{ToolCalls: []completion.ToolCall{searchCall(`{}`)}}},
		{"blank query_text", &completion.Response{ToolCalls: []completion.ToolCall{searchCall(`{"query_text":"   "}`)}}},
		{"malformed arguments", &completion.Response{ToolCalls: []completion.ToolCall{searchCall(`{"query_text":`)}}},
		{"wrong tool", &completion.Response{ToolCalls: []completion.ToolCall{evalCall(`{"eval_score":50,"reason":"x"}`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(replying(tt.resp, nil, nil), nil)
			_, err := r.Classify(context.Background(), "구체적인 아이디어")
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeToolProtocol), "got %v", err)
			assert.Equal(t, domain.ToolProtocolError, domain.KindOf(err, domain.CompletionServiceError))
		})
	}
}

func TestRouter_Classify_TransportError(t *testing.T) {
	cause := apperrors.New(apperrors.ErrCodeCompletionRateLimited, "429")
	r := NewRouter(replying(nil, cause, nil), nil)

	_, err := r.Classify(context.Background(), "아이디어")
	require.Error(t, err)
	assert.Equal(t, domain.CompletionServiceError, domain.KindOf(err, domain.ToolProtocolError))
}

func TestRouter_Classify_Deadline(t *testing.T) {
	r := NewRouter(replying(nil, context.DeadlineExceeded, nil), nil)

	_, err := r.Classify(context.Background(), "아이디어")
	require.Error(t, err)
	assert.Equal(t, domain.ServiceTimeout, domain.KindOf(err, domain.CompletionServiceError))
}

func TestRouter_Classify_BlankIdea(t *testing.T) {
	called := false
	svc := completion.ServiceFunc(func(context.Context, *completion.Request) (*completion.Response, error) {
		called = true
		return nil, nil
	})
	_, err := NewRouter(svc, nil).Classify(context.Background(), " \n\t")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInput))
	assert.False(t, called)
}
