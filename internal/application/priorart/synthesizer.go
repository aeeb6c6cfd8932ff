package priorart

import (
	"context"
	"strings"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Synthesizer writes the final markdown report.
type Synthesizer struct {
	llm    completion.Service
	logger logging.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(llm completion.Service, logger logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Synthesizer{llm: llm, logger: logger.Named("synthesizer")}
}

// Synthesize produces the report for scored. An empty list returns the fixed
// no-prior-art report without calling the completion service.
func (s *Synthesizer) Synthesize(ctx context.Context, idea domain.Idea, query domain.SearchQuery, scored []domain.ScoredPatent) (domain.Report, error) {
	if len(scored) == 0 {
		return domain.NoRelevantPriorArtReport(), nil
	}

	resp, err := s.llm.Complete(ctx, &completion.Request{
		System:    synthesizerSystemPrompt,
		Messages:  []completion.Message{completion.UserMessage(synthesisUserMessage(idea, query, scored))},
		MaxTokens: synthesizerMaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Report{}, errors.Wrap(err, errors.CodeUnknown, "synthesis completion failed")
		}
		return domain.Report{}, errors.Wrap(err, errors.ErrCodeSynthesis, "synthesis completion failed")
	}

	md := strings.TrimSpace(resp.Text)
	if md == "" {
		return domain.Report{}, errors.New(errors.ErrCodeSynthesis, "synthesizer returned an empty report")
	}

	report := domain.Report{Markdown: md}
	if missing := report.MissingSections(); len(missing) > 0 {
		s.logger.Warn("report is missing sections", logging.Any("sections", missing))
	}
	return report, nil
}
