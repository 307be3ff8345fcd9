package lgptune

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidScore marks a trial whose aggregated score is not-a-number.
	// Such trials are force-pruned and never update the best record.
	ErrInvalidScore = errors.New("aggregated score is not a number")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedOutput is returned when the evaluator output cannot be
	// parsed.
	ErrMalformedOutput = errors.New("malformed evaluator output")

	// ErrInvalidRecord is returned when a persisted parameter record cannot
	// be resolved.
	ErrInvalidRecord = errors.New("invalid parameter record")
)

// ScorerInvocationError reports an evaluator run that failed, either through
// a non-empty error stream or a failing process. It aborts the session.
type ScorerInvocationError struct {
	// Command is the evaluator command line.
	Command []string

	// Stderr is the evaluator's error stream.
	Stderr string

	// Err is the underlying process error, if any.
	Err error
}

func (e *ScorerInvocationError) Error() string {
	var b strings.Builder

	b.WriteString("error running command")

	if len(e.Command) > 0 {
		fmt.Fprintf(&b, " %q", strings.Join(e.Command, " "))
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}

	return b.String()
}

func (e *ScorerInvocationError) Unwrap() error {
	return e.Err
}

// MissingDependencyError reports a dependent phase whose base phase has not
// persisted its parameters yet.
type MissingDependencyError struct {
	// Phase is the dependent phase that was requested.
	Phase string

	// Base is the prerequisite phase.
	Base string

	// Path is where the base phase's artifact was expected.
	Path string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("parameters of %s not found: %s (run the %s search before %s)", e.Base, e.Path, e.Base, e.Phase)
}

// UnknownEnvironmentError reports a name outside the recognized set.
type UnknownEnvironmentError struct {
	Name  string
	Known []string
}

func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q, valid environments: %s", e.Name, strings.Join(e.Known, ", "))
}
