package priorart

import (
	"strings"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// API envelope status values.
const (
	ResponseSuccess       = "success"
	ResponseClarification = "clarification_needed"
	ResponseError         = "error"
)

// Match status values of a patent entry.
const (
	MatchSuccess = "success"
	MatchFailed  = "failed"
)

// AnalyzeResponse is the JSON shape returned to the front end.
type AnalyzeResponse struct {
	Status       string        `json:"status"`
	ChatResponse string        `json:"chatResponse,omitempty"`
	PatentList   []PatentEntry `json:"patentList"`
	Message      string        `json:"message,omitempty"`
	SearchQuery  string        `json:"searchQuery,omitempty"`
	RunID        string        `json:"runId,omitempty"`
	ReportHTML   string        `json:"reportHtml,omitempty"`
	Degraded     int           `json:"degraded"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	Stage        string        `json:"stage,omitempty"`
}

// PatentEntry is one row of patentList. RelevanceScore is null for entries
// the judge could not score.
type PatentEntry struct {
	MatchStatus     string   `json:"matchstatus"`
	PatentID        string   `json:"patentId"`
	Title           string   `json:"title"`
	ApplicationDate string   `json:"applicationDate"`
	Applicant       string   `json:"applicant"`
	Summary         string   `json:"summary"`
	RelevanceScore  *float64 `json:"relevanceScore"`
}

// ErrorBody is the envelope for requests rejected before a run starts.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse builds an ErrorBody.
func ErrorResponse(message string) ErrorBody {
	return ErrorBody{Status: ResponseError, Message: message}
}

// NewAnalyzeResponse maps an outcome onto the API envelope. Scored patents
// at or above matchThreshold are reported as matches. The HTML rendering is
// included only when withHTML is set and rendering succeeds.
func NewAnalyzeResponse(o domain.PipelineOutcome, matchThreshold int, withHTML bool) AnalyzeResponse {
	resp := AnalyzeResponse{RunID: o.RunID, PatentList: []PatentEntry{}}

	switch o.Status {
	case domain.StatusNeedsClarification:
		resp.Status = ResponseClarification
		resp.ChatResponse = o.Message

	case domain.StatusSuccess:
		resp.Status = ResponseSuccess
		resp.SearchQuery = string(o.SearchQuery)
		resp.Degraded = o.DegradedCount()
		if o.Report != nil {
			resp.ChatResponse = o.Report.Markdown
			if withHTML {
				if html, err := o.Report.HTML(); err == nil {
					resp.ReportHTML = html
				}
			}
		}
		for _, s := range o.ScoredPatents {
			resp.PatentList = append(resp.PatentList, patentEntry(s, matchThreshold))
		}

	default:
		resp.Status = ResponseError
		if f := o.Failure; f != nil {
			resp.Message = f.Detail
			if strings.TrimSpace(resp.Message) == "" {
				resp.Message = errors.DefaultMessageForCode(f.Kind.Code())
			}
			resp.ErrorKind = string(f.Kind)
			resp.Stage = string(f.Stage)
		}
	}
	return resp
}

func patentEntry(s domain.ScoredPatent, matchThreshold int) PatentEntry {
	md := s.Candidate.Metadata
	e := PatentEntry{
		MatchStatus:     MatchFailed,
		PatentID:        md.ApplicationNumber,
		Title:           md.Title,
		ApplicationDate: md.ApplicationDate,
		Applicant:       md.Applicant,
	}
	if score, ok := s.Score(); ok {
		rel := float64(score) / 100
		e.RelevanceScore = &rel
		e.Summary = s.Evaluation.Reason
		if score >= matchThreshold {
			e.MatchStatus = MatchSuccess
		}
	}
	return e
}
