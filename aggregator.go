package lgptune

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Aggregate is the single result a trial reduces to.
type Aggregate struct {
	// Score is the lower-median final score.
	Score float64

	// Params is the parameter record paired with Score.
	Params string

	// Progress is the progress trace of the chosen run.
	Progress []float64

	// Runs holds every run's final score in invocation order.
	Runs []float64

	// Invalid reports a NaN Score.
	Invalid bool
}

// Aggregator evaluates a proposal MedianTrials times and keeps the run at
// ascending-sorted index floor(MedianTrials/2): a lower median, never a mean
// and never interpolated for even counts.
type Aggregator struct {
	Scorer       Scorer
	MedianTrials int

	// onRun, when set, is called after every successful run.
	onRun func()
}

// Aggregate runs the scorer synchronously MedianTrials times. The first
// scorer error fails the whole trial without retry.
func (a *Aggregator) Aggregate(ctx context.Context, p Proposal) (Aggregate, error) {
	if a.MedianTrials < 1 {
		return Aggregate{}, fmt.Errorf("%w: median trials must be at least 1, got %d", ErrInvalidConfig, a.MedianTrials)
	}

	runs := make([]RunResult, 0, a.MedianTrials)

	for i := 0; i < a.MedianTrials; i++ {
		res, err := a.Scorer.Score(ctx, p)
		if err != nil {
			return Aggregate{}, err
		}

		if a.onRun != nil {
			a.onRun()
		}

		runs = append(runs, res)
	}

	finals := make([]float64, len(runs))
	for i, r := range runs {
		finals[i] = r.Score
	}

	// Stable: equal scores keep their run order.
	sort.SliceStable(runs, func(i, j int) bool {
		return lessNaNLast(runs[i].Score, runs[j].Score)
	})

	chosen := runs[len(runs)/2]

	return Aggregate{
		Score:    chosen.Score,
		Params:   chosen.Params,
		Progress: chosen.Progress,
		Runs:     finals,
		Invalid:  math.IsNaN(chosen.Score),
	}, nil
}
