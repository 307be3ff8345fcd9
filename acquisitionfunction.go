package lgptune

import (
	"fmt"
	"math"
	"strings"
)

//////
// Available acquisition functions.
// Each function helps the GP sampler decide which candidate to propose next by
// balancing exploration (trying new areas) and exploitation (focusing on
// known good areas). Studies maximize, so higher values are better.
//////

// UCB implements the Upper Confidence Bound acquisition function.
//
// How it works:
// - Combines the predicted mean score with the uncertainty (variance)
// - Higher values are better (studies maximize the score)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean + params.Beta*math.Sqrt(nonNegative(variance))
}

// ProbabilityOfImprovement (PI) calculates the probability that a point will
// improve upon the current best observed score by at least Xi.
//
// Parameters:
// - mean: Predicted score at this point
// - variance: Uncertainty in the prediction
// - params.BestSoFar: Best score observed so far
// - params.Xi: Minimum improvement desired
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(nonNegative(variance))
	if sigma == 0 {
		if mean > params.BestSoFar+params.Xi {
			return 1
		}

		return 0
	}

	z := (mean - params.BestSoFar - params.Xi) / sigma

	return normalCDF(z)
}

// ExpectedImprovement (EI) calculates the expected value of the improvement
// over the current best score.
//
// How it works:
// - Combines the probability of improvement with the magnitude of improvement
// - Often provides better exploration than PI
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(nonNegative(variance))
	improvement := mean - params.BestSoFar - params.Xi

	if sigma == 0 {
		return math.Max(improvement, 0)
	}

	z := improvement / sigma

	return improvement*normalCDF(z) + sigma*normalPDF(z)
}

// ThompsonSampling draws one sample from the posterior at the point.
//
// Warning:
// - Always initialize RandomState before using this function
// - Don't share RandomState between different samplers.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(nonNegative(variance))*params.RandomState.NormFloat64()
}

// AcquisitionByName resolves a configured acquisition function name. The
// empty name resolves to UCB.
func AcquisitionByName(name string) (AcquisitionFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ucb":
		return UCB, nil
	case "pi", "probability_of_improvement":
		return ProbabilityOfImprovement, nil
	case "ei", "expected_improvement":
		return ExpectedImprovement, nil
	case "thompson", "thompson_sampling":
		return ThompsonSampling, nil
	default:
		return nil, fmt.Errorf("%w: unknown acquisition function %q", ErrInvalidConfig, name)
	}
}
