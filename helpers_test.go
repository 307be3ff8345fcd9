package lgptune

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

const baseRecord = `{"program_parameters":{"max_instructions":12,"instruction_generator_parameters":{"n_extras":1,"external_factor":3.5}}}`

const dependentRecord = `{"program_parameters":{"program_parameters":{"max_instructions":7,"instruction_generator_parameters":{"n_extras":1,"external_factor":2.25}},"consts":{"alpha":0.1,"gamma":0.9,"epsilon":0.2,"alpha_decay":0.01,"epsilon_decay":0.05}}}`

// sequenceScorer returns results[i] for the i-th call, cycling. It fails on
// call failAt (0-based) when failAt >= 0.
type sequenceScorer struct {
	results []RunResult
	failAt  int64

	calls atomic.Int64

	mu   sync.Mutex
	seen []Proposal
}

func newSequenceScorer(results ...RunResult) *sequenceScorer {
	return &sequenceScorer{results: results, failAt: -1}
}

func (s *sequenceScorer) Score(_ context.Context, p Proposal) (RunResult, error) {
	i := s.calls.Add(1) - 1

	s.mu.Lock()
	s.seen = append(s.seen, p)
	s.mu.Unlock()

	if i == s.failAt {
		return RunResult{}, &ScorerInvocationError{Command: []string{"lgp"}, Stderr: "boom"}
	}

	return s.results[int(i)%len(s.results)], nil
}

func (s *sequenceScorer) proposals() []Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Proposal(nil), s.seen...)
}

// scores builds results with params "p<score>".
func scores(values ...float64) []RunResult {
	out := make([]RunResult, len(values))
	for i, v := range values {
		out[i] = RunResult{Score: v, Params: fmt.Sprintf("p%v", v)}
	}

	return out
}

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.NTrials = 3
	cfg.NThreads = 2
	cfg.MedianTrials = 1
	cfg.ResultsDir = t.TempDir()
	cfg.ConfigsDir = t.TempDir()
	cfg.Sampler.Seed = 1
	cfg.Sampler.InitialSamples = 2
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Meter = noop.NewMeterProvider().Meter("test")

	return cfg
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *MemoryStorage) {
	t.Helper()

	storage := NewMemoryStorage()

	c, err := NewCoordinator(context.Background(), cfg, storage)
	require.NoError(t, err)

	return c, storage
}
