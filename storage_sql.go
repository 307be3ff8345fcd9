package lgptune

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// SQLStorage persists studies in SQLite or PostgreSQL.
type SQLStorage struct {
	driver string
	dsn    string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLStorage returns a storage for driver "sqlite" or "postgres". Call
// Init before use.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{driver: driver, dsn: dsn}
}

func (s *SQLStorage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("storage dsn is required")
	}

	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return err
	}

	// SQLite allows a single writer, and ":memory:" databases are per
	// connection.
	if s.driver == StorageSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createStudyTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db

	return nil
}

func (s *SQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

func (s *SQLStorage) CreateStudy(ctx context.Context, study StudySummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, s.rebind(`
		INSERT INTO studies (name, environment, direction, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), study.Name, study.Environment, study.Direction, string(study.State), formatTime(study.CreatedAt))
	if err == nil {
		return nil
	}

	// A failed insert of a name that now exists lost the primary key race,
	// whatever the driver's error looks like.
	if _, ok, getErr := s.GetStudy(ctx, study.Name); getErr == nil && ok {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.Name)
	}

	return err
}

func (s *SQLStorage) GetStudy(ctx context.Context, name string) (StudySummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return StudySummary{}, false, err
	}

	var (
		study     StudySummary
		state     string
		createdAt string
	)

	err = db.QueryRowContext(ctx, s.rebind(`
		SELECT name, environment, direction, state, created_at FROM studies WHERE name = ?
	`), name).Scan(&study.Name, &study.Environment, &study.Direction, &state, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StudySummary{}, false, nil
		}

		return StudySummary{}, false, err
	}

	study.State = SessionState(state)

	if study.CreatedAt, err = parseTime(createdAt); err != nil {
		return StudySummary{}, false, fmt.Errorf("decode study %s: %w", name, err)
	}

	return study, true, nil
}

func (s *SQLStorage) SetStudyState(ctx context.Context, name string, state SessionState) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, s.rebind(`UPDATE studies SET state = ? WHERE name = ?`), string(state), name)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, name)
	}

	return nil
}

func (s *SQLStorage) SaveTrial(ctx context.Context, study string, trial TrialOutcome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	proposal, err := json.Marshal(trial.Proposal.Values())
	if err != nil {
		return fmt.Errorf("encode proposal of trial %s: %w", trial.ID, err)
	}

	intermediate, err := json.Marshal(finiteOnly(trial.Intermediate))
	if err != nil {
		return fmt.Errorf("encode intermediate values of trial %s: %w", trial.ID, err)
	}

	score := sql.NullFloat64{Float64: trial.Score, Valid: !math.IsNaN(trial.Score)}

	_, err = db.ExecContext(ctx, s.rebind(`
		INSERT INTO trials (id, study_name, number, worker, proposal, score, params, intermediate, pruned, invalid, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		trial.ID, study, trial.Number, trial.Worker, string(proposal), score, trial.Params,
		string(intermediate), trial.Pruned, trial.Invalid,
		formatTime(trial.StartedAt), formatTime(trial.FinishedAt),
	)

	return err
}

func (s *SQLStorage) LoadTrials(ctx context.Context, study string) ([]TrialOutcome, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	if _, ok, err := s.GetStudy(ctx, study); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, study)
	}

	rows, err := db.QueryContext(ctx, s.rebind(`
		SELECT id, number, worker, proposal, score, params, intermediate, pruned, invalid, started_at, finished_at
		FROM trials WHERE study_name = ? ORDER BY number
	`), study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trials []TrialOutcome

	for rows.Next() {
		var (
			trial        TrialOutcome
			proposal     string
			score        sql.NullFloat64
			intermediate string
			startedAt    string
			finishedAt   string
		)

		if err := rows.Scan(
			&trial.ID, &trial.Number, &trial.Worker, &proposal, &score, &trial.Params,
			&intermediate, &trial.Pruned, &trial.Invalid, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}

		var values map[string]float64
		if err := json.Unmarshal([]byte(proposal), &values); err != nil {
			return nil, fmt.Errorf("decode proposal of trial %s: %w", trial.ID, err)
		}

		trial.Proposal = NewProposal(values)

		if err := json.Unmarshal([]byte(intermediate), &trial.Intermediate); err != nil {
			return nil, fmt.Errorf("decode intermediate values of trial %s: %w", trial.ID, err)
		}

		trial.Score = math.NaN()
		if score.Valid {
			trial.Score = score.Float64
		}

		if trial.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}

		if trial.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}

		trials = append(trials, trial)
	}

	return trials, rows.Err()
}

func (s *SQLStorage) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	return s.db, nil
}

// rebind turns "?" placeholders into "$n" for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.driver != StoragePostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

func createStudyTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS studies (
			name TEXT PRIMARY KEY,
			environment TEXT NOT NULL,
			direction TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trials (
			id TEXT PRIMARY KEY,
			study_name TEXT NOT NULL REFERENCES studies (name),
			number INTEGER NOT NULL,
			worker INTEGER NOT NULL,
			proposal TEXT NOT NULL,
			score DOUBLE PRECISION,
			params TEXT NOT NULL,
			intermediate TEXT NOT NULL,
			pruned BOOLEAN NOT NULL,
			invalid BOOLEAN NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS trials_study_number ON trials (study_name, number)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// finiteOnly drops NaN and infinities, which JSON cannot encode.
func finiteOnly(values []float64) []float64 {
	out := make([]float64, 0, len(values))

	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}

	return out
}
