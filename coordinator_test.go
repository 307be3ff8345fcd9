package lgptune

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePhase(env string, scorer Scorer) Phase {
	return Phase{Environment: env, Space: BaseSpace(), Scorer: scorer}
}

func TestCoordinatorRunsThreadsTimesTrials(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 4
	cfg.NTrials = 10

	c, storage := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(scores(1, 2, 3)...)

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.NoError(t, err)

	assert.Equal(t, int64(40), scorer.calls.Load())
	require.Len(t, res.Trials, 40)
	assert.Equal(t, StateComplete, res.State)

	workers := map[int]int{}
	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.Number)
		assert.NotEmpty(t, trial.ID)
		workers[trial.Worker]++
	}

	assert.Equal(t, map[int]int{0: 10, 1: 10, 2: 10, 3: 10}, workers)

	stored, err := storage.LoadTrials(context.Background(), res.Study)
	require.NoError(t, err)
	assert.Len(t, stored, 40)

	summary, ok, err := storage.GetStudy(context.Background(), res.Study)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateComplete, summary.State)
	assert.Equal(t, "iris_baseline", summary.Environment)
}

func TestCoordinatorMedianTrialsMultipliesEvaluations(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 4
	cfg.NTrials = 10
	cfg.MedianTrials = 3

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(scores(1)...)

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.NoError(t, err)

	assert.Equal(t, int64(120), scorer.calls.Load())
	assert.Len(t, res.Trials, 40)
}

func TestCoordinatorBestIsMaxScore(t *testing.T) {
	cfg := testConfig(t)

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(scores(5, 2, 8, 1, 3, 7)...)

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.NoError(t, err)
	require.Len(t, res.Trials, 6)
	require.True(t, res.HasBest)

	maxScore := math.Inf(-1)
	for _, trial := range res.Trials {
		maxScore = math.Max(maxScore, trial.Score)
	}

	assert.Equal(t, 8.0, maxScore)
	assert.Equal(t, BestRecord{Score: 8, Params: "p8"}, res.Best)

	data, err := os.ReadFile(filepath.Join(cfg.ResultsDir, "iris_baseline.json"))
	require.NoError(t, err)
	assert.Equal(t, "p8", string(data))
	assert.Equal(t, filepath.Join(cfg.ResultsDir, "iris_baseline.json"), res.ArtifactPath)
}

func TestCoordinatorFailurePersistsBest(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 1
	cfg.NTrials = 5

	c, storage := newTestCoordinator(t, cfg)

	scorer := newSequenceScorer(scores(4, 9)...)
	scorer.failAt = 2

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.Error(t, err)

	var invocationErr *ScorerInvocationError
	require.True(t, errors.As(err, &invocationErr))
	assert.Equal(t, "boom", invocationErr.Stderr)

	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, res.Trials, 2)
	assert.Equal(t, int64(3), scorer.calls.Load())

	require.True(t, res.HasBest)
	assert.Equal(t, 9.0, res.Best.Score)

	data, err := os.ReadFile(filepath.Join(cfg.ResultsDir, "iris_baseline.json"))
	require.NoError(t, err)
	assert.Equal(t, "p9", string(data))

	summary, _, err := storage.GetStudy(context.Background(), res.Study)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, summary.State)
}

func TestCoordinatorFailureWaitsForOtherWorkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 4
	cfg.NTrials = 5

	c, storage := newTestCoordinator(t, cfg)

	scorer := newSequenceScorer(scores(2, 6, 4)...)
	scorer.failAt = 0

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.Error(t, err)

	var invocationErr *ScorerInvocationError
	require.True(t, errors.As(err, &invocationErr))

	// One worker stops at its first trial; the other three finish theirs.
	require.NotNil(t, res)
	assert.Len(t, res.Trials, 15)
	assert.Equal(t, int64(16), scorer.calls.Load())
	assert.Equal(t, StateFailed, res.State)

	require.True(t, res.HasBest)
	assert.Equal(t, 6.0, res.Best.Score)
	assert.FileExists(t, filepath.Join(cfg.ResultsDir, "iris_baseline.json"))

	stored, err := storage.LoadTrials(context.Background(), res.Study)
	require.NoError(t, err)
	assert.Len(t, stored, 15)
}

func TestCoordinatorFailureWithoutBestWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 1

	c, _ := newTestCoordinator(t, cfg)

	scorer := newSequenceScorer(scores(1)...)
	scorer.failAt = 0

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.Error(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.False(t, res.HasBest)
	assert.Empty(t, res.ArtifactPath)
	assert.NoFileExists(t, filepath.Join(cfg.ResultsDir, "iris_baseline.json"))
}

func TestCoordinatorNaNScoresArePruned(t *testing.T) {
	cfg := testConfig(t)

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(RunResult{Score: math.NaN(), Params: "pnan"})

	res, err := c.Run(context.Background(), basePhase("mountain_car_lgp", scorer))
	require.NoError(t, err)

	assert.Equal(t, StateComplete, res.State)
	assert.False(t, res.HasBest)
	assert.Empty(t, res.ArtifactPath)

	for _, trial := range res.Trials {
		assert.True(t, trial.Pruned)
		assert.True(t, trial.Invalid)
	}
}

func TestCoordinatorPrunedTrialCanBeBest(t *testing.T) {
	cfg := testConfig(t)

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(scores(0.5, 0.7)...)

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.NoError(t, err)

	for _, trial := range res.Trials {
		assert.True(t, trial.Pruned)
		assert.False(t, trial.Invalid)
	}

	require.True(t, res.HasBest)
	assert.Equal(t, 0.7, res.Best.Score)
}

func TestCoordinatorSendsProgress(t *testing.T) {
	progress := make(chan ProgressUpdate, 100)

	cfg := testConfig(t)
	cfg.ProgressChan = progress

	c, _ := newTestCoordinator(t, cfg)

	res, err := c.Run(context.Background(), basePhase("iris_baseline", newSequenceScorer(scores(0.95)...)))
	require.NoError(t, err)

	close(progress)

	var updates []ProgressUpdate
	for u := range progress {
		updates = append(updates, u)
	}

	require.Len(t, updates, 6)

	for _, u := range updates {
		assert.Equal(t, res.Study, u.Study)
		assert.Equal(t, 3, u.TotalTrials)
		assert.Equal(t, 0.95, u.BestScore)
		assert.False(t, u.Pruned)
		assert.Contains(t, u.Params, "max_instructions")
	}
}

func TestCoordinatorProposalsStayInSpace(t *testing.T) {
	cfg := testConfig(t)
	cfg.NTrials = 8

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(scores(1, 5, 2, 9, 3)...)
	space := BaseSpace()

	_, err := c.Run(context.Background(), Phase{Environment: "iris_baseline", Space: space, Scorer: scorer})
	require.NoError(t, err)

	for _, p := range scorer.proposals() {
		assert.True(t, space.Contains(p), "%v", p.Values())
	}
}

func TestCoordinatorStudyNameCollision(t *testing.T) {
	cfg := testConfig(t)

	c, _ := newTestCoordinator(t, cfg)

	fixed := time.Unix(1700000000, 0)
	c.now = func() time.Time { return fixed }

	res, err := c.Run(context.Background(), basePhase("iris_baseline", newSequenceScorer(scores(1)...)))
	require.NoError(t, err)
	assert.Equal(t, "iris_baseline_1700000000", res.Study)

	_, err = c.Run(context.Background(), basePhase("iris_baseline", newSequenceScorer(scores(1)...)))
	assert.ErrorIs(t, err, ErrStudyExists)
}

func TestCoordinatorWritesOptimalConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 1
	cfg.NTrials = 2

	dir := filepath.Join(cfg.ConfigsDir, "iris_baseline")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.toml"), []byte(`
[hyperparameters]
population_size = 100

[hyperparameters.program]
max_instructions = 50
external_factor = 10.0
`), 0o644))

	c, _ := newTestCoordinator(t, cfg)
	scorer := newSequenceScorer(RunResult{Score: 0.97, Params: baseRecord})

	res, err := c.Run(context.Background(), basePhase("iris_baseline", scorer))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "optimal.toml"), res.OptimalPath)

	var doc struct {
		Hyperparameters struct {
			PopulationSize int `toml:"population_size"`
			Program        struct {
				MaxInstructions int     `toml:"max_instructions"`
				ExternalFactor  float64 `toml:"external_factor"`
			} `toml:"program"`
		} `toml:"hyperparameters"`
	}

	_, err = toml.DecodeFile(res.OptimalPath, &doc)
	require.NoError(t, err)

	assert.Equal(t, 100, doc.Hyperparameters.PopulationSize)
	assert.Equal(t, 12, doc.Hyperparameters.Program.MaxInstructions)
	assert.Equal(t, 3.5, doc.Hyperparameters.Program.ExternalFactor)
}

func TestNewCoordinatorRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 0

	_, err := NewCoordinator(context.Background(), cfg, NewMemoryStorage())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCoordinatorResetsBestBetweenSessions(t *testing.T) {
	cfg := testConfig(t)

	c, _ := newTestCoordinator(t, cfg)

	first, err := c.Run(context.Background(), basePhase("cart_pole_lgp", newSequenceScorer(scores(900)...)))
	require.NoError(t, err)
	assert.Equal(t, 900.0, first.Best.Score)

	second, err := c.Run(context.Background(), basePhase("mountain_car_lgp", newSequenceScorer(scores(-120, -90)...)))
	require.NoError(t, err)

	require.True(t, second.HasBest)
	assert.Equal(t, BestRecord{Score: -90, Params: "p-90"}, second.Best)

	data, err := os.ReadFile(filepath.Join(cfg.ResultsDir, "mountain_car_lgp.json"))
	require.NoError(t, err)
	assert.Equal(t, "p-90", string(data))
}
