package priorart

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/common"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Classifier decides whether an idea is specific enough to search.
type Classifier interface {
	Classify(ctx context.Context, idea domain.Idea) (domain.RouterDecision, error)
}

// Retriever returns raw nearest-neighbour hits for a search sentence.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.SearchQuery, topN int) ([]domain.RawHit, error)
}

// Evaluator scores one candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, reference string, candidate domain.CandidatePatent) (domain.EvaluationResult, error)
}

// ReportWriter produces the final report.
type ReportWriter interface {
	Synthesize(ctx context.Context, idea domain.Idea, query domain.SearchQuery, scored []domain.ScoredPatent) (domain.Report, error)
}

// PipelineDeps holds everything a Pipeline needs. Metrics and Logger may be
// nil.
type PipelineDeps struct {
	Router      Classifier
	Retriever   Retriever
	Judge       Evaluator
	Synthesizer ReportWriter
	Config      config.PipelineConfig
	// Collection labels the retrieval hit histogram.
	Collection string
	Metrics    *prometheus.AppMetrics
	Logger     logging.Logger
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Pipeline runs one idea through classification, retrieval, deduplication,
// evaluation and synthesis.
type Pipeline struct {
	router      Classifier
	retriever   Retriever
	judge       Evaluator
	synthesizer ReportWriter
	cfg         config.PipelineConfig
	collection  string
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
	batch       common.BatchProcessor[domain.CandidatePatent, domain.EvaluationResult]
	newRunID    func() string
}

// NewPipeline validates deps and builds the judge fan-out.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Router == nil || deps.Retriever == nil || deps.Judge == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("pipeline: router, retriever, judge and synthesizer are required")
	}
	cfg := deps.Config
	if cfg.TopN < 1 || cfg.JudgeConcurrency < 1 {
		return nil, fmt.Errorf("pipeline: top_n and judge_concurrency must be positive")
	}
	if cfg.RouterTimeout <= 0 || cfg.RetrievalTimeout <= 0 || cfg.JudgeTimeout <= 0 || cfg.SynthesisTimeout <= 0 {
		return nil, fmt.Errorf("pipeline: timeouts must be positive")
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.NewNopAppMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	logger := deps.Logger.Named("pipeline")

	opts := []common.BatchOption{
		common.WithName("judge"),
		common.WithMaxConcurrency(cfg.JudgeConcurrency),
		common.WithItemTimeout(cfg.JudgeTimeout),
		common.WithBatchTimeout(evaluationBudget(cfg)),
		common.WithObserver(deps.Metrics),
		common.WithLogger(logger),
	}
	if cfg.JudgeMaxRetries > 0 {
		opts = append(opts, common.WithRetryPolicy(cfg.JudgeMaxRetries, cfg.JudgeRetryBackoff, completion.IsTransient))
	}
	if cfg.CircuitBreakerThreshold > 0 {
		opts = append(opts, common.WithCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout))
	}

	return &Pipeline{
		router:      deps.Router,
		retriever:   deps.Retriever,
		judge:       deps.Judge,
		synthesizer: deps.Synthesizer,
		cfg:         cfg,
		collection:  deps.Collection,
		metrics:     deps.Metrics,
		logger:      logger,
		batch:       common.NewBatchProcessor[domain.CandidatePatent, domain.EvaluationResult](opts...),
		newRunID:    uuid.NewString,
	}, nil
}

// evaluationBudget bounds a whole judge batch: every wave of JudgeConcurrency
// items may use all its attempts and back-offs.
func evaluationBudget(cfg config.PipelineConfig) time.Duration {
	waves := (cfg.TopN + cfg.JudgeConcurrency - 1) / cfg.JudgeConcurrency
	attempts := time.Duration(cfg.JudgeMaxRetries + 1)
	perItem := cfg.JudgeTimeout*attempts + cfg.JudgeRetryBackoff*attempts*2
	return time.Duration(waves)*perItem + time.Second
}

// Close waits for in-flight evaluations and rejects new runs.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.batch.Shutdown(ctx)
}

// RunIdeaSearch runs the whole pipeline for ideaText. It never returns an
// error; every failure is reported through the outcome.
func (p *Pipeline) RunIdeaSearch(ctx context.Context, ideaText string) domain.PipelineOutcome {
	runID := p.newRunID()
	log := p.logger.With(logging.RunID(runID))
	start := time.Now()

	outcome := p.run(ctx, runID, log, domain.Idea(ideaText))

	var kind string
	fields := []logging.Field{
		logging.String("status", string(outcome.Status)),
		logging.Duration("elapsed", time.Since(start)),
	}
	if outcome.Failure != nil {
		kind = string(outcome.Failure.Kind)
		fields = append(fields,
			logging.String("error_kind", kind),
			logging.Stage(string(outcome.Failure.Stage)),
			logging.String("detail", outcome.Failure.Detail))
	}
	if outcome.Status == domain.StatusSuccess {
		fields = append(fields,
			logging.Int("candidates", len(outcome.ScoredPatents)),
			logging.Int("degraded", outcome.DegradedCount()))
	}
	p.metrics.RecordOutcome(string(outcome.Status), kind)
	if outcome.Status == domain.StatusFailure {
		log.Warn("pipeline failed", fields...)
	} else {
		log.Info("pipeline finished", fields...)
	}
	return outcome
}

func (p *Pipeline) run(ctx context.Context, runID string, log logging.Logger, idea domain.Idea) domain.PipelineOutcome {
	if idea.IsBlank() {
		return domain.Failed(runID, domain.InputError, "", "idea text is empty")
	}

	// Classifying
	if o, stop := p.cancelled(ctx, runID, domain.StageClassifying); stop {
		return o
	}
	var decision domain.RouterDecision
	err := p.stage(ctx, domain.StageClassifying, p.cfg.RouterTimeout, domain.CompletionServiceError, func(c context.Context) error {
		var err error
		decision, err = p.router.Classify(c, idea)
		return err
	})
	if err != nil {
		return p.failed(runID, domain.StageClassifying, domain.CompletionServiceError, err)
	}
	if decision.Kind == domain.DecisionVague {
		log.Info("idea needs clarification")
		return domain.NeedsClarification(runID, decision.ClarifyingMessage)
	}
	query := decision.SearchQuery
	log.Info("search query generated", logging.String("search_query", string(query)))

	// Retrieving
	if o, stop := p.cancelled(ctx, runID, domain.StageRetrieving); stop {
		return o
	}
	var hits []domain.RawHit
	err = p.stage(ctx, domain.StageRetrieving, p.cfg.RetrievalTimeout, domain.RetrievalError, func(c context.Context) error {
		var err error
		hits, err = p.retriever.Retrieve(c, query, p.cfg.TopN)
		return err
	})
	if err != nil {
		return p.failed(runID, domain.StageRetrieving, domain.RetrievalError, err)
	}
	p.metrics.RecordRetrievalHits(p.collection, len(hits))

	// Deduping
	dedupStart := time.Now()
	candidates := domain.Dedupe(hits)
	p.metrics.RecordStage(string(domain.StageDeduping), "ok", time.Since(dedupStart))
	log.Debug("hits deduplicated", logging.Int("hits", len(hits)), logging.Int("candidates", len(candidates)))

	// Evaluating
	if o, stop := p.cancelled(ctx, runID, domain.StageEvaluating); stop {
		return o
	}
	scored, err := p.evaluate(ctx, log, string(query), candidates)
	if err != nil {
		return p.failed(runID, domain.StageEvaluating, domain.Cancelled, err)
	}
	if len(candidates) > 0 && countDegraded(scored) == len(scored) {
		return domain.Failed(runID, domain.AllJudgesFailedError, domain.StageEvaluating,
			fmt.Sprintf("all %d evaluations failed; first: %s", len(scored), scored[0].FailureDetail))
	}

	// Synthesizing
	if o, stop := p.cancelled(ctx, runID, domain.StageSynthesizing); stop {
		return o
	}
	var report domain.Report
	err = p.stage(ctx, domain.StageSynthesizing, p.cfg.SynthesisTimeout, domain.SynthesisError, func(c context.Context) error {
		var err error
		report, err = p.synthesizer.Synthesize(c, idea, query, scored)
		return err
	})
	if err != nil {
		return p.failed(runID, domain.StageSynthesizing, domain.SynthesisError, err)
	}

	return domain.Succeeded(runID, query, report, scored)
}

// stage runs fn under its own timeout on a context detached from the
// caller's cancellation, and records its duration.
func (p *Pipeline) stage(ctx context.Context, stage domain.Stage, timeout time.Duration, fallback domain.ErrorKind, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err := fn(c)
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err, fallback))
	}
	p.metrics.RecordStage(string(stage), result, time.Since(start))
	return err
}

// evaluate fans the judge out over candidates and returns one ScoredPatent
// per candidate in rank order. A judge failure degrades its candidate; only
// a batch that cannot start is an error.
func (p *Pipeline) evaluate(ctx context.Context, log logging.Logger, reference string, candidates []domain.CandidatePatent) ([]domain.ScoredPatent, error) {
	if len(candidates) == 0 {
		return []domain.ScoredPatent{}, nil
	}

	start := time.Now()
	res, err := p.batch.Process(context.WithoutCancel(ctx), candidates,
		func(c context.Context, cand domain.CandidatePatent) (domain.EvaluationResult, error) {
			return p.judge.Evaluate(c, reference, cand)
		})
	if err != nil {
		p.metrics.RecordStage(string(domain.StageEvaluating), string(domain.Cancelled), time.Since(start))
		return nil, err
	}

	scored := make([]domain.ScoredPatent, 0, len(res.Results))
	for _, r := range res.Results {
		cand := candidates[r.Index]
		if r.Status == common.ItemStatusSuccess {
			scored = append(scored, domain.Judged(cand, r.Result))
			p.metrics.RecordJudge("")
			continue
		}

		kind := domain.KindOf(r.Error, domain.CompletionServiceError)
		if r.Status == common.ItemStatusTimeout {
			kind = domain.ServiceTimeout
		}
		detail := r.Status.String()
		if r.Error != nil {
			detail = r.Error.Error()
		}
		scored = append(scored, domain.DegradedPatent(cand, kind, detail))
		p.metrics.RecordJudge(string(kind))
		log.Warn("candidate evaluation failed",
			logging.String("patent_id", cand.ID()),
			logging.Int("rank", cand.Rank),
			logging.String("error_kind", string(kind)),
			logging.Int("attempts", r.Attempts),
			logging.String("detail", detail))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Candidate.Rank < scored[j].Candidate.Rank
	})

	result := "ok"
	if countDegraded(scored) == len(scored) {
		result = string(domain.AllJudgesFailedError)
	}
	p.metrics.RecordStage(string(domain.StageEvaluating), result, time.Since(start))
	return scored, nil
}

func (p *Pipeline) cancelled(ctx context.Context, runID string, next domain.Stage) (domain.PipelineOutcome, bool) {
	if err := ctx.Err(); err != nil {
		return domain.Failed(runID, domain.Cancelled, next, err.Error()), true
	}
	return domain.PipelineOutcome{}, false
}

func (p *Pipeline) failed(runID string, stage domain.Stage, fallback domain.ErrorKind, err error) domain.PipelineOutcome {
	kind := domain.KindOf(err, fallback)
	if stderrors.Is(err, common.ErrShutdown) {
		kind = domain.Cancelled
	}
	return domain.Failed(runID, kind, stage, err.Error())
}

func countDegraded(scored []domain.ScoredPatent) int {
	n := 0
	for _, s := range scored {
		if s.Degraded {
			n++
		}
	}
	return n
}
