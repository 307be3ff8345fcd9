package lgptune

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDependentAndBaseFor(t *testing.T) {
	tests := []struct {
		name      string
		dependent bool
		base      string
	}{
		{name: "cart_pole_with_q", dependent: true, base: "cart_pole_lgp"},
		{name: "mountain_car_with_q", dependent: true, base: "mountain_car_lgp"},
		{name: "cart_pole_q", dependent: true, base: "cart_pole_lgp"},
		{name: "cart-pole-q", dependent: true, base: "cart-pole-lgp"},
		{name: "cart_pole_lgp"},
		{name: "iris_baseline"},
		{name: "quantum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dependent, IsDependent(tt.name))

			base, ok := BaseFor(tt.name)
			assert.Equal(t, tt.dependent, ok)
			assert.Equal(t, tt.base, base)
		})
	}
}

// recordingFactory hands out one sequenceScorer per environment.
type recordingFactory struct {
	result RunResult

	mu      sync.Mutex
	order   []string
	scorers map[string]*sequenceScorer
}

func (f *recordingFactory) build(env string, _ *ParameterSpace) Scorer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scorers == nil {
		f.scorers = map[string]*sequenceScorer{}
	}

	s := newSequenceScorer(f.result)
	f.scorers[env] = s
	f.order = append(f.order, env)

	return s
}

func (f *recordingFactory) calls() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, s := range f.scorers {
		n += s.calls.Load()
	}

	return n
}

func TestPhaseChainerMissingDependency(t *testing.T) {
	cfg := testConfig(t)
	c, storage := newTestCoordinator(t, cfg)

	factory := &recordingFactory{result: RunResult{Score: 500, Params: dependentRecord}}
	pc := NewPhaseChainer(c, StaticCatalog{"cart_pole_lgp", "cart_pole_with_q"}, factory.build)

	res, err := pc.Run(context.Background(), "cart_pole_with_q")
	require.Error(t, err)
	assert.Nil(t, res)

	var missing *MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "cart_pole_lgp", missing.Base)
	assert.Equal(t, filepath.Join(cfg.ResultsDir, "cart_pole_lgp.json"), missing.Path)
	assert.Contains(t, err.Error(), "cart_pole_lgp.json")

	// Nothing was spawned and no study was created.
	assert.Zero(t, factory.calls())
	assert.Empty(t, factory.order)
	assert.Empty(t, storage.studies)
}

func TestPhaseChainerUnknownEnvironment(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(t))

	pc := NewPhaseChainer(c, StaticCatalog{"iris_baseline"}, (&recordingFactory{}).build)

	_, err := pc.Run(context.Background(), "pong")

	var unknown *UnknownEnvironmentError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"iris_baseline"}, unknown.Known)
	assert.Contains(t, err.Error(), "iris_baseline")
}

func TestPhaseChainerDependentUsesBaseArtifact(t *testing.T) {
	cfg := testConfig(t)
	c, _ := newTestCoordinator(t, cfg)

	_, err := c.Artifacts().Save("cart_pole_lgp", baseRecord)
	require.NoError(t, err)

	factory := &recordingFactory{result: RunResult{Score: 450, Params: dependentRecord}}
	pc := NewPhaseChainer(c, StaticCatalog{"cart_pole_lgp", "cart_pole_with_q"}, factory.build)

	phase, err := pc.Resolve("cart_pole_with_q")
	require.NoError(t, err)
	assert.Equal(t, 5, phase.Space.Dim())

	res, err := pc.Run(context.Background(), "cart_pole_with_q")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)

	for _, p := range factory.scorers["cart_pole_with_q"].proposals() {
		mi, _ := p.Get("max_instructions")
		ef, _ := p.Get("external_factor")
		assert.Equal(t, 12.0, mi)
		assert.Equal(t, 3.5, ef)
	}

	rec, err := c.Artifacts().Load("cart_pole_with_q")
	require.NoError(t, err)
	assert.IsType(t, DependentParams{}, rec)
}

func TestPhaseChainerRunAllOrdersBaseFirst(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 1
	cfg.NTrials = 1

	for _, env := range []string{"cart_pole_with_q", "cart_pole_lgp", "iris_baseline"} {
		dir := filepath.Join(cfg.ConfigsDir, env)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "default.toml"), []byte("name = \""+env+"\"\n"), 0o644))
	}

	c, _ := newTestCoordinator(t, cfg)

	factory := &recordingFactory{result: RunResult{Score: 1000, Params: baseRecord}}
	pc := NewPhaseChainer(c, DirCatalog{Dir: cfg.ConfigsDir}, factory.build)

	results, err := pc.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"cart_pole_lgp", "iris_baseline", "cart_pole_with_q"}, factory.order)

	for _, res := range results {
		assert.Equal(t, StateComplete, res.State)
		assert.NotEmpty(t, res.ArtifactPath)
	}
}

func TestPhaseChainerRunAllStopsOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.NThreads = 1
	cfg.NTrials = 1

	c, _ := newTestCoordinator(t, cfg)

	// The base phase fails on its first run, so the dependent phase never
	// starts.
	factory := &recordingFactory{result: RunResult{Score: 1, Params: "{}"}}

	failing := func(env string, space *ParameterSpace) Scorer {
		s := factory.build(env, space).(*sequenceScorer)
		s.failAt = 0

		return s
	}

	pc := NewPhaseChainer(c, StaticCatalog{"cart_pole_with_q", "cart_pole_lgp"}, failing)

	results, err := pc.RunAll(context.Background())
	require.Error(t, err)

	var invocationErr *ScorerInvocationError
	assert.True(t, errors.As(err, &invocationErr))

	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Equal(t, []string{"cart_pole_lgp"}, factory.order)
}
