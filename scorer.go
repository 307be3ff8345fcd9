package lgptune

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// RunResult is the parsed output of one evaluator run.
type RunResult struct {
	// Progress holds the intermediate progress scores, in order.
	Progress []float64

	// Score is the final score. May be NaN.
	Score float64

	// Params is the serialized parameter record, forwarded verbatim.
	Params string
}

// Scorer evaluates a proposal once. Implementations must be safe for
// concurrent use: every worker of a session shares one Scorer.
type Scorer interface {
	Score(ctx context.Context, p Proposal) (RunResult, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, p Proposal) (RunResult, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, p Proposal) (RunResult, error) {
	return f(ctx, p)
}

// CommandScorer runs the external evaluator as a subprocess:
//
//	<Path> experiment run <Config> --override <key>=<value> ...
//
// The call blocks until the process exits. Timeout is an opt-in hook; zero
// means the evaluator may run indefinitely.
type CommandScorer struct {
	// Path is the evaluator executable.
	Path string

	// Config is the experiment config (environment) name.
	Config string

	// Space renders proposals into override flags.
	Space *ParameterSpace

	// Timeout bounds one run when positive.
	Timeout time.Duration

	// Logger receives the command line at debug level.
	Logger *slog.Logger
}

// Command returns the argument list used to evaluate p, executable first.
func (c *CommandScorer) Command(p Proposal) []string {
	args := []string{c.Path, "experiment", "run", c.Config}

	for _, o := range c.Space.Overrides(p) {
		args = append(args, "--override", o.String())
	}

	return args
}

// Score implements Scorer. A non-empty error stream or a failing process is
// reported as *ScorerInvocationError.
func (c *CommandScorer) Score(ctx context.Context, p Proposal) (RunResult, error) {
	command := c.Command(p)

	if c.Logger != nil {
		c.Logger.Debug("running evaluator", slog.String("command", strings.Join(command, " ")))
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil || stderr.Len() > 0 {
		return RunResult{}, &ScorerInvocationError{
			Command: command,
			Stderr:  stderr.String(),
			Err:     runErr,
		}
	}

	return ParseEvaluatorOutput(stdout.String())
}

// ParseEvaluatorOutput parses newline-delimited evaluator output: zero or
// more progress scores, one final score (possibly "nan"), then one trailing
// line holding the serialized parameter record.
func ParseEvaluatorOutput(output string) (RunResult, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return RunResult{}, fmt.Errorf("%w: expected a score line and a parameter line, got %d line(s)", ErrMalformedOutput, len(lines))
	}

	scoreLines := lines[:len(lines)-1]
	scores := make([]float64, 0, len(scoreLines))

	for i, line := range scoreLines {
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return RunResult{}, fmt.Errorf("%w: line %d: %v", ErrMalformedOutput, i+1, err)
		}

		scores = append(scores, v)
	}

	return RunResult{
		Progress: scores[:len(scores)-1],
		Score:    scores[len(scores)-1],
		Params:   strings.TrimRight(lines[len(lines)-1], "\r"),
	}, nil
}
