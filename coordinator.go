package lgptune

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

//////
// Const, vars, types.
//////

// Phase is one search request: the environment to tune, the space to search
// and the evaluator to score proposals with.
type Phase struct {
	Environment string
	Space       *ParameterSpace
	Scorer      Scorer
}

// SessionResult summarizes a finished session, complete or failed.
type SessionResult struct {
	// Study is the study name.
	Study string

	// State is StateComplete or StateFailed.
	State SessionState

	// Best is the best record, valid when HasBest.
	Best    BestRecord
	HasBest bool

	// Trials is the study's trial log.
	Trials []TrialOutcome

	// ArtifactPath is where Best.Params was written, if anywhere.
	ArtifactPath string

	// OptimalPath is the generated optimal.toml, if any.
	OptimalPath string
}

// Coordinator runs search sessions. Sessions on one Coordinator run one after
// another: they share a BestTracker that is reset when a session starts.
type Coordinator struct {
	cfg        Config
	storage    StudyStorage
	artifacts  ArtifactStore
	metrics    *sessionMetrics
	best       *BestTracker
	logger     *slog.Logger
	now        func() time.Time
	newSampler func() (Sampler, error)
}

//////
// Factory.
//////

// NewCoordinator validates cfg and initializes storage.
func NewCoordinator(ctx context.Context, cfg Config, storage StudyStorage) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	metrics, err := newSessionMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	return &Coordinator{
		cfg:       cfg,
		storage:   storage,
		artifacts: ArtifactStore{Dir: cfg.ResultsDir},
		metrics:   metrics,
		best:      NewBestTracker(),
		logger:    cfg.logger(),
		now:       time.Now,
		newSampler: func() (Sampler, error) {
			return NewSampler(cfg.Sampler)
		},
	}, nil
}

//////
// Exported functionalities.
//////

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Artifacts returns the artifact store sessions persist into.
func (c *Coordinator) Artifacts() ArtifactStore { return c.artifacts }

// Run executes one session: it creates the study, runs NThreads workers of
// NTrials trials each, and persists the best record.
//
// How it works:
// 1. The study is created, named after the environment and the current time
// 2. Each worker repeatedly asks the study for a proposal, aggregates
// MedianTrials evaluator runs, updates the best record, decides pruning
// and tells the outcome to the study
// 3. The first worker error fails the session. Other workers are not
// interrupted; Run waits for all of them
// 4. The best record so far is written to the results directory, on
// failure too
//
// Important notes:
// - There is no retry and no per-trial isolation: one failing evaluator run
// fails the session
// - NaN scores are force-pruned and never become the best record
// - Pruned trials with a finite score may still become the best record
func (c *Coordinator) Run(ctx context.Context, phase Phase) (*SessionResult, error) {
	if err := phase.Space.Validate(); err != nil {
		return nil, err
	}

	sampler, err := c.newSampler()
	if err != nil {
		return nil, err
	}

	study, err := createStudy(ctx, c.storage, phase.Environment, c.now(), phase.Space, sampler)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With(slog.String("study", study.Name()))
	logger.Info("starting hyperparameter search",
		slog.String("environment", phase.Environment),
		slog.Int("trials_per_thread", c.cfg.NTrials),
		slog.Int("threads", c.cfg.NThreads),
		slog.Int("median_trials", c.cfg.MedianTrials),
	)

	if err := study.setState(ctx, StateRunning); err != nil {
		return nil, err
	}

	best := c.best
	best.Reset()

	aggregator := &Aggregator{
		Scorer:       phase.Scorer,
		MedianTrials: c.cfg.MedianTrials,
		onRun: func() {
			c.metrics.recordEvaluation(ctx, phase.Environment)
		},
	}

	p := pool.New().WithMaxGoroutines(c.cfg.NThreads).WithErrors().WithFirstError()

	for w := 0; w < c.cfg.NThreads; w++ {
		worker := w

		p.Go(func() error {
			return c.work(ctx, logger, worker, study, aggregator, best)
		})
	}

	runErr := p.Wait()

	result := &SessionResult{Study: study.Name(), Trials: study.Trials()}
	result.Best, result.HasBest = best.Snapshot()

	if result.HasBest {
		path, err := c.artifacts.Save(phase.Environment, result.Best.Params)
		if err != nil {
			logger.Error("saving best parameters", slog.Any("error", err))

			if runErr == nil {
				runErr = err
			}
		} else {
			result.ArtifactPath = path
			logger.Info("saved parameters", slog.String("path", path))
		}
	}

	if runErr != nil {
		result.State = StateFailed

		if err := study.setState(ctx, StateFailed); err != nil {
			logger.Error("marking study failed", slog.Any("error", err))
		}

		logger.Error("search failed", slog.Any("error", runErr))

		return result, fmt.Errorf("study %s: %w", study.Name(), runErr)
	}

	if result.HasBest && c.cfg.WriteOptimal {
		result.OptimalPath = c.writeOptimal(logger, phase.Environment, result.Best.Params)
	}

	result.State = StateComplete
	if err := study.setState(ctx, StateComplete); err != nil {
		return result, err
	}

	logger.Info("search complete",
		slog.Bool("has_best", result.HasBest),
		slog.Float64("best_score", best.bestScore()),
		slog.Int("trials", len(result.Trials)),
	)

	return result, nil
}

//////
// Internals.
//////

// work is one worker's loop of NTrials ask/evaluate/tell cycles.
func (c *Coordinator) work(
	ctx context.Context,
	logger *slog.Logger,
	worker int,
	study *Study,
	aggregator *Aggregator,
	best *BestTracker,
) error {
	logger = logger.With(slog.Int("worker", worker))

	for i := 0; i < c.cfg.NTrials; i++ {
		proposal := study.Ask()
		startedAt := c.now()

		agg, err := aggregator.Aggregate(ctx, proposal)
		if err != nil {
			return fmt.Errorf("worker %d, trial %d: %w", worker, i, err)
		}

		outcome := TrialOutcome{
			ID:           uuid.NewString(),
			Worker:       worker,
			Proposal:     proposal,
			Score:        agg.Score,
			Params:       agg.Params,
			Intermediate: agg.Progress,
			Invalid:      agg.Invalid,
			StartedAt:    startedAt,
			FinishedAt:   c.now(),
		}

		// The best record is updated before, and regardless of, pruning.
		if !agg.Invalid {
			best.Update(agg.Score, agg.Params)
		}

		outcome.Pruned = agg.Invalid || c.cfg.Thresholds.ShouldPrune(study.Environment(), agg.Score)

		outcome, err = study.Tell(ctx, outcome)
		if err != nil {
			return err
		}

		c.metrics.recordTrial(ctx, study.Environment(), outcome)

		attrs := []any{
			slog.Int("trial", outcome.Number),
			slog.Float64("score", outcome.Score),
			slog.Bool("pruned", outcome.Pruned),
		}
		if outcome.Invalid {
			attrs = append(attrs, slog.String("reason", ErrInvalidScore.Error()))
		}

		logger.Debug("trial finished", attrs...)

		c.sendProgress(ProgressUpdate{
			Study:        study.Name(),
			Worker:       worker,
			CurrentTrial: i + 1,
			TotalTrials:  c.cfg.NTrials,
			Params:       proposal.Values(),
			Score:        outcome.Score,
			Pruned:       outcome.Pruned,
			BestScore:    best.bestScore(),
		})
	}

	return nil
}

func (c *Coordinator) sendProgress(update ProgressUpdate) {
	if c.cfg.ProgressChan == nil {
		return
	}

	select {
	case c.cfg.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

// writeOptimal generates optimal.toml. Failures are logged, not returned:
// the artifact is already persisted.
func (c *Coordinator) writeOptimal(logger *slog.Logger, env, params string) string {
	rec, err := ParseParameterRecord(params)
	if err != nil {
		logger.Warn("skipping optimal config", slog.Any("error", err))
		return ""
	}

	path, err := WriteOptimalConfig(c.cfg.ConfigsDir, env, rec)
	if err != nil {
		logger.Warn("writing optimal config", slog.Any("error", err))
		return ""
	}

	if path != "" {
		logger.Info("generated optimal config", slog.String("path", path))
	}

	return path
}
