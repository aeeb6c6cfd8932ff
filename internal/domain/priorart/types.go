// Package priorart holds the entities of a prior-art search run and the pure
// logic over them (deduplication, outcome classification, report rendering).
// Nothing in this package performs I/O.
package priorart

import "strings"

// Idea is the raw invention description submitted by a user.
type Idea string

// IsBlank reports whether the idea has no non-whitespace content.
func (i Idea) IsBlank() bool {
	return strings.TrimSpace(string(i)) == ""
}

// SearchQuery is the retrieval-optimized sentence produced by the router.
type SearchQuery string

// PatentMetadata is the bibliographic data attached to a retrieved document.
// ApplicationNumber is the identity used for deduplication.
type PatentMetadata struct {
	ApplicationNumber string            `json:"application_number"`
	Title             string            `json:"title"`
	Applicant         string            `json:"applicant"`
	ApplicationDate   string            `json:"application_date"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// RawHit is one result of a vector search. Lower Distance means more similar.
type RawHit struct {
	Document string         `json:"document"`
	Metadata PatentMetadata `json:"metadata"`
	Distance float64        `json:"distance"`
}

// CandidatePatent is the best hit for a distinct application number. Rank is
// the 0-based position after deduplication.
type CandidatePatent struct {
	RawHit
	Rank int `json:"rank"`
}

// ID returns the deduplication identifier.
func (c CandidatePatent) ID() string {
	return c.Metadata.ApplicationNumber
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// EvaluationResult is the judge's verdict on one candidate.
type EvaluationResult struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Valid reports whether Score is within bounds and Reason is non-empty.
func (e EvaluationResult) Valid() bool {
	return e.Score >= MinScore && e.Score <= MaxScore && strings.TrimSpace(e.Reason) != ""
}

// ScoredPatent pairs a candidate with its evaluation. When the judge failed
// for the candidate, Evaluation is nil and Degraded is set.
type ScoredPatent struct {
	Candidate     CandidatePatent   `json:"candidate"`
	Evaluation    *EvaluationResult `json:"evaluation,omitempty"`
	Degraded      bool              `json:"degraded"`
	FailureKind   ErrorKind         `json:"failure_kind,omitempty"`
	FailureDetail string            `json:"failure_detail,omitempty"`
}

// Judged returns a successfully evaluated ScoredPatent.
func Judged(c CandidatePatent, r EvaluationResult) ScoredPatent {
	return ScoredPatent{Candidate: c, Evaluation: &r}
}

// DegradedPatent returns a ScoredPatent recording a judge failure.
func DegradedPatent(c CandidatePatent, kind ErrorKind, detail string) ScoredPatent {
	return ScoredPatent{Candidate: c, Degraded: true, FailureKind: kind, FailureDetail: detail}
}

// Score returns the evaluation score and whether one exists.
func (s ScoredPatent) Score() (int, bool) {
	if s.Evaluation == nil {
		return 0, false
	}
	return s.Evaluation.Score, true
}

// DecisionKind distinguishes the two router branches.
type DecisionKind string

const (
	DecisionVague    DecisionKind = "vague"
	DecisionSpecific DecisionKind = "specific"
)

// RouterDecision is the router's classification of an idea. A vague decision
// carries ClarifyingMessage; a specific one carries SearchQuery and any text
// the model produced before its tool call.
type RouterDecision struct {
	Kind              DecisionKind `json:"kind"`
	ClarifyingMessage string       `json:"clarifying_message,omitempty"`
	SearchQuery       SearchQuery  `json:"search_query,omitempty"`
	PrecedingMessage  string       `json:"preceding_message,omitempty"`
}

// Vague builds a clarification decision.
func Vague(message string) RouterDecision {
	return RouterDecision{Kind: DecisionVague, ClarifyingMessage: message}
}

// Specific builds a search decision.
func Specific(query SearchQuery, preceding string) RouterDecision {
	return RouterDecision{Kind: DecisionSpecific, SearchQuery: query, PrecedingMessage: preceding}
}
