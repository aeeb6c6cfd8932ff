package priorart

import (
	"context"
	"strings"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Judge scores one candidate patent against the reference text.
type Judge struct {
	llm    completion.Service
	logger logging.Logger
}

// NewJudge creates a Judge.
func NewJudge(llm completion.Service, logger logging.Logger) *Judge {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Judge{llm: llm, logger: logger.Named("judge")}
}

// Evaluate forces a single cal_evalscore call. Any other reply shape is an
// ErrCodeJudgeProtocol error; completion failures keep their own code.
func (j *Judge) Evaluate(ctx context.Context, reference string, candidate domain.CandidatePatent) (domain.EvaluationResult, error) {
	if strings.TrimSpace(reference) == "" {
		return domain.EvaluationResult{}, errors.New(errors.ErrCodeInput, "judge reference text is empty")
	}

	resp, err := j.llm.Complete(ctx, &completion.Request{
		System:     judgeSystemPrompt,
		Messages:   []completion.Message{completion.UserMessage(judgeUserMessage(reference, candidate))},
		Tools:      []completion.ToolName{completion.ToolEvalScore},
		ToolChoice: completion.Force(completion.ToolEvalScore),
		MaxTokens:  judgeMaxTokens,
	})
	if err != nil {
		return domain.EvaluationResult{}, errors.Wrap(err, errors.CodeUnknown, "judge completion failed").
			WithDetailf("patent=%s", candidate.ID())
	}

	if n := len(resp.ToolCalls); n != 1 {
		return domain.EvaluationResult{}, errors.Newf(errors.ErrCodeJudgeProtocol, "judge made %d tool calls, expected 1", n).
			WithDetailf("patent=%s", candidate.ID())
	}
	inv, err := completion.Decode(resp.ToolCalls[0])
	if err != nil {
		return domain.EvaluationResult{}, errors.Wrap(err, errors.ErrCodeJudgeProtocol, "invalid judge tool call").
			WithDetailf("patent=%s", candidate.ID())
	}
	call, ok := inv.(completion.EvalScoreCall)
	if !ok {
		return domain.EvaluationResult{}, errors.Newf(errors.ErrCodeJudgeProtocol, "judge called %s, expected %s", inv.Tool(), completion.ToolEvalScore).
			WithDetailf("patent=%s", candidate.ID())
	}

	result := domain.EvaluationResult{Score: call.EvalScore, Reason: call.Reason}
	if !result.Valid() {
		return domain.EvaluationResult{}, errors.New(errors.ErrCodeJudgeProtocol, "judge result out of bounds").
			WithDetailf("patent=%s score=%d", candidate.ID(), call.EvalScore)
	}
	j.logger.Debug("candidate evaluated",
		logging.String("patent_id", candidate.ID()),
		logging.Int("rank", candidate.Rank),
		logging.Int("score", result.Score))
	return result, nil
}
