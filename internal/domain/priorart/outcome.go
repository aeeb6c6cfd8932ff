package priorart

import (
	"context"
	"errors"

	apperrors "github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// ErrorKind classifies why a run, or a single judge call, failed.
type ErrorKind string

const (
	InputError             ErrorKind = "InputError"
	ToolProtocolError      ErrorKind = "ToolProtocolError"
	RetrievalError         ErrorKind = "RetrievalError"
	JudgeProtocolError     ErrorKind = "JudgeProtocolError"
	AllJudgesFailedError   ErrorKind = "AllJudgesFailedError"
	SynthesisError         ErrorKind = "SynthesisError"
	ServiceTimeout         ErrorKind = "ServiceTimeout"
	CompletionServiceError ErrorKind = "CompletionServiceError"
	Cancelled              ErrorKind = "Cancelled"
)

var kindCodes = map[ErrorKind]apperrors.ErrorCode{
	InputError:             apperrors.ErrCodeInput,
	ToolProtocolError:      apperrors.ErrCodeToolProtocol,
	RetrievalError:         apperrors.ErrCodeRetrieval,
	JudgeProtocolError:     apperrors.ErrCodeJudgeProtocol,
	AllJudgesFailedError:   apperrors.ErrCodeAllJudgesFailed,
	SynthesisError:         apperrors.ErrCodeSynthesis,
	ServiceTimeout:         apperrors.ErrCodeServiceTimeout,
	CompletionServiceError: apperrors.ErrCodeCompletionService,
	Cancelled:              apperrors.ErrCodeCancelled,
}

// Code returns the error code that represents k.
func (k ErrorKind) Code() apperrors.ErrorCode {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return apperrors.ErrCodeInternal
}

// KindOf classifies err. A deadline anywhere in the chain is a
// ServiceTimeout; a cancellation is Cancelled; otherwise the outermost
// AppError code decides. Unclassified errors fall back to fallback.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || apperrors.IsCode(err, apperrors.ErrCodeServiceTimeout) {
		return ServiceTimeout
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	code := apperrors.GetCode(err)
	for kind, c := range kindCodes {
		if c == code {
			return kind
		}
	}
	switch code {
	case apperrors.ErrCodeCompletionRateLimited, apperrors.ErrCodeCompletionRejected:
		return CompletionServiceError
	case apperrors.ErrCodeEmbeddingFailed, apperrors.ErrCodeEmbeddingEmpty,
		apperrors.ErrCodeVectorSearchFailed, apperrors.ErrCodeVectorConnection, apperrors.ErrCodeVectorUnhealthy:
		return RetrievalError
	case apperrors.ErrCodeTimeout:
		return ServiceTimeout
	}
	return fallback
}

// Stage names a step of the pipeline state machine.
type Stage string

const (
	StageClassifying  Stage = "classifying"
	StageRetrieving   Stage = "retrieving"
	StageDeduping     Stage = "deduping"
	StageEvaluating   Stage = "evaluating"
	StageSynthesizing Stage = "synthesizing"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusNeedsClarification Status = "needs_clarification"
	StatusSuccess            Status = "success"
	StatusFailure            Status = "failure"
)

// Failure describes why a run ended in StatusFailure.
type Failure struct {
	Kind   ErrorKind `json:"kind"`
	Stage  Stage     `json:"stage,omitempty"`
	Detail string    `json:"detail"`
}

func (f *Failure) Error() string {
	if f.Stage == "" {
		return string(f.Kind) + ": " + f.Detail
	}
	return string(f.Kind) + " during " + string(f.Stage) + ": " + f.Detail
}

// PipelineOutcome is the single result of a run. Exactly one of Message
// (clarification), Report (success) or Failure is meaningful, as selected
// by Status.
type PipelineOutcome struct {
	Status        Status         `json:"status"`
	RunID         string         `json:"run_id"`
	SearchQuery   SearchQuery    `json:"search_query,omitempty"`
	Message       string         `json:"message,omitempty"`
	Report        *Report        `json:"report,omitempty"`
	ScoredPatents []ScoredPatent `json:"scored_patents,omitempty"`
	Failure       *Failure       `json:"failure,omitempty"`
}

// NeedsClarification builds a clarification outcome.
func NeedsClarification(runID, message string) PipelineOutcome {
	return PipelineOutcome{Status: StatusNeedsClarification, RunID: runID, Message: message}
}

// Succeeded builds a success outcome. scored is never nil in the result.
func Succeeded(runID string, query SearchQuery, report Report, scored []ScoredPatent) PipelineOutcome {
	if scored == nil {
		scored = []ScoredPatent{}
	}
	return PipelineOutcome{
		Status:        StatusSuccess,
		RunID:         runID,
		SearchQuery:   query,
		Report:        &report,
		ScoredPatents: scored,
	}
}

// Failed builds a failure outcome.
func Failed(runID string, kind ErrorKind, stage Stage, detail string) PipelineOutcome {
	return PipelineOutcome{
		Status:  StatusFailure,
		RunID:   runID,
		Failure: &Failure{Kind: kind, Stage: stage, Detail: detail},
	}
}

// DegradedCount returns the number of candidates the judge could not score.
func (o PipelineOutcome) DegradedCount() int {
	n := 0
	for _, s := range o.ScoredPatents {
		if s.Degraded {
			n++
		}
	}
	return n
}
