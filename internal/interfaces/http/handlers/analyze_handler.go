package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	app "github.com/turtacn/KeyIP-PriorArt/internal/application/priorart"
	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// IdeaSearcher runs one prior-art search. *priorart.Pipeline implements it.
type IdeaSearcher interface {
	RunIdeaSearch(ctx context.Context, ideaText string) domain.PipelineOutcome
}

// AnalyzeRequest is the body of POST /api/analyze-idea.
type AnalyzeRequest struct {
	IdeaText string `json:"idea_text"`
}

const msgMissingIdea = "No 'idea_text' provided."

// AnalyzeHandler serves the idea analysis endpoint.
type AnalyzeHandler struct {
	searcher       IdeaSearcher
	matchThreshold int
	maxBodySize    int64
	logger         logging.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler. maxBodySize ≤ 0 disables the
// body limit.
func NewAnalyzeHandler(searcher IdeaSearcher, matchThreshold int, maxBodySize int64, logger logging.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnalyzeHandler{
		searcher:       searcher,
		matchThreshold: matchThreshold,
		maxBodySize:    maxBodySize,
		logger:         logger.Named("analyze"),
	}
}

// AnalyzeIdea handles POST /api/analyze-idea.
//
// Clarification and success are 200. A pipeline failure maps its error kind
// to a status code; the body still carries the run ID and failing stage.
func (h *AnalyzeHandler) AnalyzeIdea(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, app.ErrorResponse("Request body too large."))
			return
		}
		writeJSON(w, http.StatusBadRequest, app.ErrorResponse(msgMissingIdea))
		return
	}
	if strings.TrimSpace(req.IdeaText) == "" {
		writeJSON(w, http.StatusBadRequest, app.ErrorResponse(msgMissingIdea))
		return
	}

	outcome := h.searcher.RunIdeaSearch(r.Context(), req.IdeaText)
	resp := app.NewAnalyzeResponse(outcome, h.matchThreshold, true)

	status := http.StatusOK
	if f := outcome.Failure; f != nil {
		code := f.Kind.Code()
		status = errors.HTTPStatusForCode(code)
		fields := []logging.Field{
			logging.RunID(outcome.RunID),
			logging.String("error_kind", string(f.Kind)),
			logging.Stage(string(f.Stage)),
		}
		if errors.IsServerError(code) {
			h.logger.Error("analysis failed", fields...)
		} else {
			h.logger.Warn("analysis failed", fields...)
		}
	}
	writeJSON(w, status, resp)
}
