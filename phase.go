package lgptune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ScorerFactory builds the evaluator for one phase.
type ScorerFactory func(env string, space *ParameterSpace) Scorer

// CommandScorers returns a factory of subprocess scorers configured by cfg.
func CommandScorers(cfg Config) ScorerFactory {
	return func(env string, space *ParameterSpace) Scorer {
		return &CommandScorer{
			Path:    cfg.EvaluatorPath,
			Config:  env,
			Space:   space,
			Timeout: cfg.EvaluatorTimeout,
			Logger:  cfg.logger(),
		}
	}
}

// IsDependent reports whether name denotes a dependent (Q-learning) phase:
// it contains "with_q" or ends in "_q" or "-q".
func IsDependent(name string) bool {
	return strings.Contains(name, "with_q") ||
		strings.HasSuffix(name, "_q") ||
		strings.HasSuffix(name, "-q")
}

// BaseFor derives the prerequisite phase of a dependent phase, e.g.
// cart_pole_with_q -> cart_pole_lgp and cart-pole-q -> cart-pole-lgp.
func BaseFor(name string) (string, bool) {
	switch {
	case strings.Contains(name, "with_q"):
		return strings.Replace(name, "with_q", "lgp", 1), true
	case strings.HasSuffix(name, "_q"):
		return strings.TrimSuffix(name, "_q") + "_lgp", true
	case strings.HasSuffix(name, "-q"):
		return strings.TrimSuffix(name, "-q") + "-lgp", true
	default:
		return "", false
	}
}

// PhaseChainer sequences base and dependent phases. A dependent phase only
// starts once its base phase has persisted a best record.
type PhaseChainer struct {
	coordinator *Coordinator
	catalog     Catalog
	scorers     ScorerFactory
}

// NewPhaseChainer wires a chainer. A nil scorers uses CommandScorers.
func NewPhaseChainer(coordinator *Coordinator, catalog Catalog, scorers ScorerFactory) *PhaseChainer {
	if scorers == nil {
		scorers = CommandScorers(coordinator.Config())
	}

	return &PhaseChainer{
		coordinator: coordinator,
		catalog:     catalog,
		scorers:     scorers,
	}
}

// Resolve builds the phase for name without running it. It fails with
// *UnknownEnvironmentError for unrecognized names and with
// *MissingDependencyError when a dependent phase's base artifact is absent.
func (pc *PhaseChainer) Resolve(name string) (Phase, error) {
	ok, known, err := catalogContains(pc.catalog, name)
	if err != nil {
		return Phase{}, fmt.Errorf("list environments: %w", err)
	}

	if !ok {
		return Phase{}, &UnknownEnvironmentError{Name: name, Known: known}
	}

	space := BaseSpace()

	if IsDependent(name) {
		if base, ok := BaseFor(name); ok {
			artifacts := pc.coordinator.Artifacts()

			rec, err := artifacts.Load(base)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return Phase{}, &MissingDependencyError{Phase: name, Base: base, Path: artifacts.Path(base)}
				}

				return Phase{}, fmt.Errorf("load parameters of %s: %w", base, err)
			}

			space = DependentSpace(rec)
		}
	}

	return Phase{
		Environment: name,
		Space:       space,
		Scorer:      pc.scorers(name, space),
	}, nil
}

// Run resolves and runs one phase.
func (pc *PhaseChainer) Run(ctx context.Context, name string) (*SessionResult, error) {
	phase, err := pc.Resolve(name)
	if err != nil {
		return nil, err
	}

	return pc.coordinator.Run(ctx, phase)
}

// RunAll runs every base phase of the catalog, then every dependent phase.
// The first failing phase stops the chain.
func (pc *PhaseChainer) RunAll(ctx context.Context) ([]*SessionResult, error) {
	names, err := pc.catalog.Environments()
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}

	var base, dependent []string

	for _, n := range names {
		if IsDependent(n) {
			dependent = append(dependent, n)
		} else {
			base = append(base, n)
		}
	}

	logger := pc.coordinator.logger
	results := make([]*SessionResult, 0, len(names))

	for i, group := range [][]string{base, dependent} {
		logger.Info("starting search phase", slog.Int("phase", i+1), slog.Any("environments", group))

		for _, n := range group {
			res, err := pc.Run(ctx, n)
			if res != nil {
				results = append(results, res)
			}

			if err != nil {
				return results, err
			}
		}
	}

	logger.Info("all environments completed", slog.Int("sessions", len(results)))

	return results, nil
}
