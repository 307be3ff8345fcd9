package lgptune

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

//////
// Const, vars, types.
//////

// Sampler kinds.
const (
	SamplerGP     = "gp"
	SamplerRandom = "random"
)

// Sampler is a study's proposal-generation strategy. It holds the strategy's
// history and must be safe for concurrent use: every worker of a session asks
// and tells through the same Sampler.
type Sampler interface {
	// Propose returns the next point to evaluate.
	Propose(space *ParameterSpace) Proposal

	// Observe feeds a completed trial back into the strategy.
	Observe(space *ParameterSpace, p Proposal, score float64)
}

// SamplerConfig configures the proposal strategy.
//
// Recommended settings:
//   - InitialSamples: 5-20 (more = better initial model)
//   - NumCandidates: 50-500 (more = better search but slower proposals)
type SamplerConfig struct {
	// Kind is "gp" (default) or "random".
	Kind string `toml:"kind"`

	// InitialSamples is the number of observations gathered by uniform
	// sampling before the surrogate model drives proposals.
	InitialSamples int `toml:"initial_samples"`

	// NumCandidates is the number of random candidates ranked by the
	// acquisition function per proposal.
	NumCandidates int `toml:"num_candidates"`

	// Acquisition names the acquisition function: ucb, pi, ei or thompson.
	Acquisition string `toml:"acquisition"`

	// Beta is the UCB exploration weight.
	Beta float64 `toml:"beta"`

	// Xi is the minimum improvement PI and EI look for.
	Xi float64 `toml:"xi"`

	// Seed seeds the sampler's random source. Zero uses the clock.
	Seed int64 `toml:"seed"`

	// KernelWidth is the RBF kernel width over the normalized space. Zero
	// keeps the model's default.
	KernelWidth float64 `toml:"kernel_width"`
}

// DefaultSamplerConfig returns a GP/UCB configuration.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Kind:           SamplerGP,
		InitialSamples: 10,
		NumCandidates:  50,
		Acquisition:    "ucb",
		Beta:           2.0,
		Xi:             0.01,
	}
}

// Validate checks the configuration.
func (c SamplerConfig) Validate() error {
	switch strings.ToLower(c.Kind) {
	case "", SamplerGP, SamplerRandom:
	default:
		return fmt.Errorf("%w: unknown sampler %q", ErrInvalidConfig, c.Kind)
	}

	if c.InitialSamples < 0 {
		return fmt.Errorf("%w: initial samples must not be negative", ErrInvalidConfig)
	}

	if c.KernelWidth < 0 {
		return fmt.Errorf("%w: kernel width must not be negative", ErrInvalidConfig)
	}

	if c.NumCandidates < 1 {
		return fmt.Errorf("%w: num candidates must be at least 1", ErrInvalidConfig)
	}

	if _, err := AcquisitionByName(c.Acquisition); err != nil {
		return err
	}

	return nil
}

// NewSampler builds the configured sampler.
func NewSampler(cfg SamplerConfig) (Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := newRand(cfg.Seed)

	if strings.ToLower(cfg.Kind) == SamplerRandom {
		return &RandomSampler{rng: rng}, nil
	}

	acq, _ := AcquisitionByName(cfg.Acquisition)

	gp := newGaussianProcess()
	gp.SetSigma(cfg.KernelWidth)

	return &GPSampler{
		initialSamples: cfg.InitialSamples,
		numCandidates:  cfg.NumCandidates,
		acquisition:    acq,
		acqParams: AcquisitionParams{
			Beta:        cfg.Beta,
			Xi:          cfg.Xi,
			BestSoFar:   math.Inf(-1),
			RandomState: rng,
		},
		rng: rng,
		gp:  gp,
	}, nil
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return rand.New(rand.NewSource(seed))
}

//////
// Random sampler.
//////

// RandomSampler proposes uniformly random points and ignores feedback.
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Propose implements Sampler.
func (r *RandomSampler) Propose(space *ParameterSpace) Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	return space.Sample(r.rng)
}

// Observe implements Sampler.
func (r *RandomSampler) Observe(*ParameterSpace, Proposal, float64) {}

//////
// GP sampler.
//////

// GPSampler is a Bayesian optimization strategy: uniform sampling until
// InitialSamples observations exist, then for each proposal it generates
// NumCandidates random candidates, predicts their score with the Gaussian
// Process and proposes the one the acquisition function ranks highest.
//
// Thread safety:
// - The random source and acquisition parameters are guarded by mu
// - The surrogate model carries its own RWMutex
type GPSampler struct {
	initialSamples int
	numCandidates  int
	acquisition    AcquisitionFunc

	// mu protects rng and acqParams.
	mu        sync.Mutex
	rng       *rand.Rand
	acqParams AcquisitionParams

	gp *gaussianProcess
}

// Propose implements Sampler.
func (g *GPSampler) Propose(space *ParameterSpace) Proposal {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Phase 1: initial random sampling.
	if g.gp.Len() < g.initialSamples || space.Dim() == 0 {
		return space.Sample(g.rng)
	}

	// Phase 2: rank random candidates by the acquisition function.
	var (
		next            []float64
		bestAcquisition = math.Inf(-1)
	)

	for j := 0; j < g.numCandidates; j++ {
		candidate := make([]float64, space.Dim())
		for i := range candidate {
			candidate[i] = g.rng.Float64()
		}

		mean, variance := g.gp.Predict(candidate)

		acquisition := g.acquisition(mean, variance, g.acqParams)
		if next == nil || acquisition > bestAcquisition {
			bestAcquisition = acquisition
			next = candidate
		}
	}

	return space.FromUnit(next)
}

// Observe implements Sampler. NaN scores are not fed to the model.
func (g *GPSampler) Observe(space *ParameterSpace, p Proposal, score float64) {
	if math.IsNaN(score) {
		return
	}

	g.gp.Update(space.ToUnit(p), score)

	g.mu.Lock()
	defer g.mu.Unlock()

	if score > g.acqParams.BestSoFar {
		g.acqParams.BestSoFar = score
	}
}
