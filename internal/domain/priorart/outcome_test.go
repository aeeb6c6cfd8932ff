package priorart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ServiceTimeout},
		{"deadline inside app error",
			apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrCodeRetrieval, "search"), ServiceTimeout},
		{"cancelled", context.Canceled, Cancelled},
		{"tool protocol", apperrors.New(apperrors.ErrCodeToolProtocol, "x"), ToolProtocolError},
		{"judge protocol", apperrors.New(apperrors.ErrCodeJudgeProtocol, "x"), JudgeProtocolError},
		{"rate limited", apperrors.New(apperrors.ErrCodeCompletionRateLimited, "x"), CompletionServiceError},
		{"embedding", apperrors.New(apperrors.ErrCodeEmbeddingFailed, "x"), RetrievalError},
		{"plain", errors.New("boom"), SynthesisError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err, SynthesisError))
		})
	}
}

func TestErrorKind_Code(t *testing.T) {
	assert.Equal(t, apperrors.ErrCodeAllJudgesFailed, AllJudgesFailedError.Code())
	assert.Equal(t, apperrors.ErrCodeInternal, ErrorKind("Other").Code())
}

func TestOutcomeConstructors(t *testing.T) {
	c := NeedsClarification("r1", "더 구체적으로 알려주세요")
	assert.Equal(t, StatusNeedsClarification, c.Status)
	assert.Nil(t, c.Report)
	assert.Nil(t, c.Failure)

	s := Succeeded("r2", "query", NoRelevantPriorArtReport(), nil)
	assert.Equal(t, StatusSuccess, s.Status)
	assert.NotNil(t, s.ScoredPatents)
	assert.Empty(t, s.ScoredPatents)

	f := Failed("r3", AllJudgesFailedError, StageEvaluating, "3 of 3 failed")
	assert.Equal(t, StatusFailure, f.Status)
	assert.Equal(t, "AllJudgesFailedError during evaluating: 3 of 3 failed", f.Failure.Error())
}

func TestDegradedCount(t *testing.T) {
	c := CandidatePatent{RawHit: hit("A", 0.1)}
	o := Succeeded("r", "q", Report{}, []ScoredPatent{
		Judged(c, EvaluationResult{Score: 80, Reason: "same"}),
		DegradedPatent(c, ServiceTimeout, "deadline"),
	})
	assert.Equal(t, 1, o.DegradedCount())

	score, ok := o.ScoredPatents[0].Score()
	assert.True(t, ok)
	assert.Equal(t, 80, score)
	_, ok = o.ScoredPatents[1].Score()
	assert.False(t, ok)
}

func TestEvaluationResult_Valid(t *testing.T) {
	assert.True(t, EvaluationResult{Score: 0, Reason: "r"}.Valid())
	assert.True(t, EvaluationResult{Score: 100, Reason: "r"}.Valid())
	assert.False(t, EvaluationResult{Score: 101, Reason: "r"}.Valid())
	assert.False(t, EvaluationResult{Score: 50, Reason: " "}.Valid())
}

func TestIdea_IsBlank(t *testing.T) {
	assert.True(t, Idea(" \n\t").IsBlank())
	assert.False(t, Idea("자동차").IsBlank())
}
