package lgptune

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// SessionState is the lifecycle state of a study.
type SessionState string

const (
	StateCreated  SessionState = "created"
	StateRunning  SessionState = "running"
	StateComplete SessionState = "complete"
	StateFailed   SessionState = "failed"
)

// DirectionMaximize is the only objective direction studies use.
const DirectionMaximize = "maximize"

// StudyName returns the unique name of a study of env created at t.
func StudyName(env string, t time.Time) string {
	return fmt.Sprintf("%s_%d", env, t.Unix())
}

// Study is one named optimization session: an append-only trial log plus the
// sampler's history. It is shared by every worker of the session.
type Study struct {
	name      string
	env       string
	createdAt time.Time
	space     *ParameterSpace
	sampler   Sampler
	storage   StudyStorage

	mu     sync.Mutex
	state  SessionState
	trials []TrialOutcome
}

// createStudy registers a new study in storage.
func createStudy(ctx context.Context, storage StudyStorage, env string, createdAt time.Time, space *ParameterSpace, sampler Sampler) (*Study, error) {
	s := &Study{
		name:      StudyName(env, createdAt),
		env:       env,
		createdAt: createdAt,
		space:     space,
		sampler:   sampler,
		storage:   storage,
		state:     StateCreated,
	}

	if err := storage.CreateStudy(ctx, StudySummary{
		Name:        s.name,
		Environment: env,
		Direction:   DirectionMaximize,
		State:       StateCreated,
		CreatedAt:   createdAt,
	}); err != nil {
		return nil, fmt.Errorf("create study %s: %w", s.name, err)
	}

	return s, nil
}

// Name returns the study name.
func (s *Study) Name() string { return s.name }

// Environment returns the environment the study tunes.
func (s *Study) Environment() string { return s.env }

// Space returns the parameter space of the study.
func (s *Study) Space() *ParameterSpace { return s.space }

// State returns the lifecycle state.
func (s *Study) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Study) setState(ctx context.Context, state SessionState) error {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	return s.storage.SetStudyState(ctx, s.name, state)
}

// Ask returns the next proposal from the sampler.
func (s *Study) Ask() Proposal {
	return s.sampler.Propose(s.space)
}

// Tell appends a finished trial to the log, persists it, and feeds its score
// to the sampler. The trial's Number is assigned here.
func (s *Study) Tell(ctx context.Context, outcome TrialOutcome) (TrialOutcome, error) {
	s.mu.Lock()

	outcome.Number = len(s.trials)

	if err := s.storage.SaveTrial(ctx, s.name, outcome); err != nil {
		s.mu.Unlock()
		return outcome, fmt.Errorf("save trial %d of %s: %w", outcome.Number, s.name, err)
	}

	s.trials = append(s.trials, outcome)
	s.mu.Unlock()

	// Pruned trials still teach the model where scores are low.
	if !math.IsNaN(outcome.Score) {
		s.sampler.Observe(s.space, outcome.Proposal, outcome.Score)
	}

	return outcome, nil
}

// Trials returns a copy of the trial log.
func (s *Study) Trials() []TrialOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]TrialOutcome(nil), s.trials...)
}
