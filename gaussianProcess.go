package lgptune

import (
	"math"
	"sync"
)

//////
// Const, vars, types.
//////

// gaussianProcess implements a thread-safe Gaussian Process style surrogate
// over normalized inputs. The GP sampler uses it to predict the score of
// untested hyperparameter combinations from previously observed trials.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: Slice of observed input points, each coordinate in [0, 1]
// - Y: Slice of observed scores at each input point
// - sigma: Kernel width parameter controlling the smoothness of interpolation
//
// Thread safety:
// - All fields are protected by the RWMutex
// - Uses RLock for Predict, Len and GetSigma, Lock for Update and SetSigma
//
// Memory usage:
// - O(n) memory where n is number of observations.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the input points (normalized hyperparameter combinations).
	X [][]float64

	// Y stores the observed scores at each point in X.
	Y []float64

	// sigma is the kernel width parameter
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	sigma float64
}

//////
// Methods.
//////

// rbf implements the Radial Basis Function (Gaussian) kernel.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points
// - Caller must hold at least the read lock
func (gp *gaussianProcess) rbf(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// Predict estimates the expected score and uncertainty at a given point.
//
// Returns:
// - mean: Kernel-weighted average of observed scores, or their plain mean
// when x is far from every observation
// - variance: 0 at an observed point, growing to the observed score
// variance (or 1 with a single observation) far from all of them
//
// Important notes:
// - Returns (0, 1) if no observations exist
// - O(n) time complexity where n is the number of observations
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	n := len(gp.X)
	if n == 0 {
		return 0, 1
	}

	var (
		weightSum   float64
		weightedSum float64
		ySum        float64
		maxK        float64
	)

	for i := range gp.X {
		k := gp.rbf(x, gp.X[i])

		weightSum += k
		weightedSum += k * gp.Y[i]
		ySum += gp.Y[i]

		if k > maxK {
			maxK = k
		}
	}

	prior := ySum / float64(n)

	var yVar float64

	for _, y := range gp.Y {
		d := y - prior
		yVar += d * d
	}

	yVar /= float64(n)
	if yVar == 0 {
		yVar = 1
	}

	// Blend towards the prior as the point moves away from the data.
	if weightSum > 1e-12 {
		local := weightedSum / weightSum
		mean = maxK*local + (1-maxK)*prior
	} else {
		mean = prior
	}

	variance = (1 - maxK*maxK) * yVar

	return mean, variance
}

// Update adds a new observation point to the model.
//
// Important notes:
// - Creates a deep copy of input slice x to prevent external modifications
// - NaN and infinite scores are ignored
func (gp *gaussianProcess) Update(x []float64, y float64) {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return
	}

	gp.mu.Lock()
	defer gp.mu.Unlock()

	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

// SetSigma updates the kernel width parameter. Non-positive values are
// ignored.
func (gp *gaussianProcess) SetSigma(sigma float64) {
	if sigma <= 0 {
		return
	}

	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.sigma = sigma
}

// GetSigma returns the current kernel width parameter.
func (gp *gaussianProcess) GetSigma() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.sigma
}

//////
// Factory.
//////

// newGaussianProcess creates a model with sigma = 0.2, a width suited to
// inputs normalized to the unit cube.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		sigma: 0.2,
	}
}
