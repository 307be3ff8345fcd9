package lgptune

import (
	"math/rand"
	"sort"
	"time"

	"golang.org/x/exp/constraints"
)

// ProgressUpdate represents the state of a session after one trial finished.
type ProgressUpdate struct {
	// Study is the name of the study the trial belongs to.
	Study string

	// Worker is the index of the worker that ran the trial.
	Worker int

	// CurrentTrial is the 1-based trial number within the worker.
	CurrentTrial int

	// TotalTrials is the number of trials each worker runs.
	TotalTrials int

	// Params holds the proposal that was evaluated.
	Params map[string]float64

	// Score is the aggregated score of the trial.
	Score float64

	// Pruned reports whether the trial was discarded.
	Pruned bool

	// BestScore holds the best score of the session so far. NaN while unset.
	BestScore float64
}

// ParameterRange defines the valid range for a hyperparameter.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (int64 or float64)
//
// Fields:
// - Min: The minimum (inclusive) value for this hyperparameter
// - Max: The maximum (inclusive) value for this hyperparameter
//
// Usage:
//
//	// Program length between 1 and 100 instructions.
//	maxInstructions := ParameterRange[int64]{Min: 1, Max: 100}
//
//	// Learning rate of the Q table.
//	alpha := ParameterRange[float64]{Min: 0, Max: 1}
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// Valid reports whether Min <= Max.
func (r ParameterRange[T]) Valid() bool {
	return r.Min <= r.Max
}

// Contains reports whether v lies within the inclusive range.
func (r ParameterRange[T]) Contains(v T) bool {
	return v >= r.Min && v <= r.Max
}

// ParamKind distinguishes integer from floating-point hyperparameters.
type ParamKind int

const (
	// KindFloat is a continuous parameter.
	KindFloat ParamKind = iota

	// KindInt is an integral parameter. Values are always whole numbers.
	KindInt
)

// String implements fmt.Stringer.
func (k ParamKind) String() string {
	if k == KindInt {
		return "int"
	}

	return "float"
}

// ParameterSpec declares one searched hyperparameter.
type ParameterSpec struct {
	// Name is the hyperparameter name, e.g. "max_instructions".
	Name string

	// Kind is int or float.
	Kind ParamKind

	// Range is the inclusive search range. Integer ranges are stored as
	// float64 holding whole numbers.
	Range ParameterRange[float64]

	// Override is the evaluator override key the value is passed under,
	// e.g. "hyperparameters.program.max_instructions".
	Override string
}

// ConstantSpec declares a parameter that is passed to the evaluator but not
// searched, typically a value fixed by a prerequisite phase.
type ConstantSpec struct {
	Name     string
	Kind     ParamKind
	Value    float64
	Override string
}

// Proposal is one candidate point in hyperparameter space. It is immutable:
// accessors return copies.
type Proposal struct {
	values map[string]float64
}

// NewProposal builds a proposal from a name to value map. The map is copied.
func NewProposal(values map[string]float64) Proposal {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}

	return Proposal{values: cp}
}

// Get returns the value of the named parameter.
func (p Proposal) Get(name string) (float64, bool) {
	v, ok := p.values[name]

	return v, ok
}

// Len returns the number of parameters in the proposal.
func (p Proposal) Len() int {
	return len(p.values)
}

// Names returns the parameter names in ascending order.
func (p Proposal) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// Values returns a copy of the underlying map.
func (p Proposal) Values() map[string]float64 {
	cp := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		cp[k] = v
	}

	return cp
}

// TrialOutcome is the record of one finished trial. It is created by the
// worker that ran the trial and never changed once told to the Study.
type TrialOutcome struct {
	// ID uniquely identifies the trial across studies.
	ID string

	// Number is the 0-based position of the trial in the study log.
	Number int

	// Worker is the index of the worker that ran the trial.
	Worker int

	// Proposal is the evaluated point.
	Proposal Proposal

	// Score is the aggregated (lower-median) score.
	Score float64

	// Params is the serialized parameter record paired with Score.
	Params string

	// Intermediate holds the progress scores of the chosen run.
	Intermediate []float64

	// Pruned reports whether the trial was discarded.
	Pruned bool

	// Invalid reports whether Score is not-a-number.
	Invalid bool

	// StartedAt and FinishedAt bound the trial's evaluation.
	StartedAt  time.Time
	FinishedAt time.Time
}

// AcquisitionFunc scores a candidate point from the surrogate model's
// prediction. Higher values indicate more promising points.
//
// Parameters:
// - mean: The predicted score at a point (higher is better)
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement: Probability of finding a better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB.
	// Typical values range from 0.1 to 5.0, with 2.0 being a good default.
	Beta float64

	// Xi is the minimum improvement over BestSoFar that PI and EI look for.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (highest) observed score. The sampler keeps it
	// up to date.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// Do NOT share it between samplers.
	RandomState *rand.Rand
}
