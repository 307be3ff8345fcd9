package lgptune

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// ErrStudyExists is returned when a study name is already taken.
var ErrStudyExists = errors.New("study already exists")

// ErrStudyNotFound is returned for operations on an unknown study.
var ErrStudyNotFound = errors.New("study not found")

// StudySummary is the persisted header of a study.
type StudySummary struct {
	Name        string
	Environment string
	Direction   string
	State       SessionState
	CreatedAt   time.Time
}

// StudyStorage persists studies and their trial logs. Implementations are
// safe for concurrent use.
type StudyStorage interface {
	Init(ctx context.Context) error
	CreateStudy(ctx context.Context, study StudySummary) error
	GetStudy(ctx context.Context, name string) (StudySummary, bool, error)
	SetStudyState(ctx context.Context, name string, state SessionState) error
	SaveTrial(ctx context.Context, study string, trial TrialOutcome) error
	LoadTrials(ctx context.Context, study string) ([]TrialOutcome, error)
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Kind is memory, sqlite or postgres.
	Kind string `toml:"kind"`

	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `toml:"dsn"`
}

// NewStorage builds an uninitialized storage backend.
func NewStorage(cfg StorageConfig) (StudyStorage, error) {
	switch cfg.Kind {
	case "", StorageMemory:
		return NewMemoryStorage(), nil
	case StorageSQLite, StoragePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: %s storage requires a dsn", ErrInvalidConfig, cfg.Kind)
		}

		return NewSQLStorage(cfg.Kind, cfg.DSN), nil
	default:
		return nil, fmt.Errorf("%w: unsupported storage backend: %s", ErrInvalidConfig, cfg.Kind)
	}
}

// CloseIfSupported closes storages holding resources.
func CloseIfSupported(storage StudyStorage) error {
	closer, ok := storage.(interface{ Close() error })
	if !ok {
		return nil
	}

	return closer.Close()
}

// MemoryStorage keeps studies in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	studies map[string]StudySummary
	trials  map[string][]TrialOutcome
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		studies: make(map[string]StudySummary),
		trials:  make(map[string][]TrialOutcome),
	}
}

func (s *MemoryStorage) Init(context.Context) error {
	return nil
}

func (s *MemoryStorage) CreateStudy(_ context.Context, study StudySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[study.Name]; ok {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.Name)
	}

	s.studies[study.Name] = study

	return nil
}

func (s *MemoryStorage) GetStudy(_ context.Context, name string) (StudySummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	study, ok := s.studies[name]

	return study, ok, nil
}

func (s *MemoryStorage) SetStudyState(_ context.Context, name string, state SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, name)
	}

	study.State = state
	s.studies[name] = study

	return nil
}

func (s *MemoryStorage) SaveTrial(_ context.Context, study string, trial TrialOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[study]; !ok {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, study)
	}

	s.trials[study] = append(s.trials[study], trial)

	return nil
}

func (s *MemoryStorage) LoadTrials(_ context.Context, study string) ([]TrialOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.studies[study]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, study)
	}

	return append([]TrialOutcome(nil), s.trials[study]...), nil
}
