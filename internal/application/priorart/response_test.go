package priorart

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
)

func TestNewAnalyzeResponse_Success(t *testing.T) {
	scored := []domain.ScoredPatent{
		domain.Judged(candidate("KR-1", 0, 0.1), domain.EvaluationResult{Score: 88, Reason: "구성이 거의 같습니다."}),
		domain.Judged(candidate("KR-2", 1, 0.2), domain.EvaluationResult{Score: 32, Reason: "분야만 같습니다."}),
		domain.DegradedPatent(candidate("KR-3", 2, 0.3), domain.ServiceTimeout, "deadline"),
	}
	o := domain.Succeeded("run-9", "검색 문장", domain.Report{Markdown: wellFormedReport}, scored)

	resp := NewAnalyzeResponse(o, 50, true)
	assert.Equal(t, ResponseSuccess, resp.Status)
	assert.Equal(t, wellFormedReport, resp.ChatResponse)
	assert.Equal(t, "검색 문장", resp.SearchQuery)
	assert.Equal(t, "run-9", resp.RunID)
	assert.Equal(t, 1, resp.Degraded)
	assert.Contains(t, resp.ReportHTML, "<h2>")
	require.Len(t, resp.PatentList, 3)

	first := resp.PatentList[0]
	assert.Equal(t, MatchSuccess, first.MatchStatus)
	assert.Equal(t, "KR-1", first.PatentID)
	assert.Equal(t, "발명 KR-1", first.Title)
	assert.Equal(t, "2021-03-04", first.ApplicationDate)
	assert.Equal(t, "출원인", first.Applicant)
	assert.Equal(t, "구성이 거의 같습니다.", first.Summary)
	require.NotNil(t, first.RelevanceScore)
	assert.InDelta(t, 0.88, *first.RelevanceScore, 1e-9)

	assert.Equal(t, MatchFailed, resp.PatentList[1].MatchStatus)
	assert.Equal(t, MatchFailed, resp.PatentList[2].MatchStatus)
	assert.Nil(t, resp.PatentList[2].RelevanceScore)

	raw, err := json.Marshal(resp.PatentList[2])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"relevanceScore":null`)
	assert.Contains(t, string(raw), `"matchstatus":"failed"`)
}

func TestNewAnalyzeResponse_ThresholdIsInclusive(t *testing.T) {
	o := domain.Succeeded("r", "q", domain.Report{Markdown: "m"}, []domain.ScoredPatent{
		domain.Judged(candidate("A", 0, 0), domain.EvaluationResult{Score: 50, Reason: "r"}),
	})
	resp := NewAnalyzeResponse(o, 50, false)
	assert.Equal(t, MatchSuccess, resp.PatentList[0].MatchStatus)
	assert.Empty(t, resp.ReportHTML)
}

func TestNewAnalyzeResponse_Clarification(t *testing.T) {
	resp := NewAnalyzeResponse(domain.NeedsClarification("r", "더 구체적으로 알려주세요."), 50, true)
	assert.Equal(t, ResponseClarification, resp.Status)
	assert.Equal(t, "더 구체적으로 알려주세요.", resp.ChatResponse)
	assert.NotNil(t, resp.PatentList)
	assert.Empty(t, resp.PatentList)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"patentList":[]`)
}

func TestNewAnalyzeResponse_Failure(t *testing.T) {
	o := domain.Failed("r", domain.AllJudgesFailedError, domain.StageEvaluating, "all 3 evaluations failed")
	resp := NewAnalyzeResponse(o, 50, true)
	assert.Equal(t, ResponseError, resp.Status)
	assert.Equal(t, "all 3 evaluations failed", resp.Message)
	assert.Equal(t, "AllJudgesFailedError", resp.ErrorKind)
	assert.Equal(t, "evaluating", resp.Stage)
	assert.Empty(t, resp.PatentList)
}

func TestNewAnalyzeResponse_FailureWithoutDetail(t *testing.T) {
	o := domain.Failed("r", domain.RetrievalError, domain.StageRetrieving, "")
	resp := NewAnalyzeResponse(o, 50, false)
	assert.Equal(t, "patent retrieval failed", resp.Message)
	assert.Equal(t, "RetrievalError", resp.ErrorKind)
}

func TestErrorResponse(t *testing.T) {
	raw, err := json.Marshal(ErrorResponse("No 'idea_text' provided."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"No 'idea_text' provided."}`, string(raw))
}
