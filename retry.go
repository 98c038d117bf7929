package provbatch

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	// defaultMaxAttempts is used when Policy.MaxAttempts is left at zero.
	defaultMaxAttempts = 3
	// defaultBaseDelay is used when Policy.BaseDelay is left at zero.
	defaultBaseDelay = 2 * time.Second
)

// StepFunc performs one attempt of an external operation, returning the
// captured provider output. The output is inspected for embedded error
// markers even when err is nil.
type StepFunc func(ctx context.Context) (string, error)

// StepStatus is the terminal status of a step after all attempts.
type StepStatus int

const (
	// StepSuccess means an attempt completed without any error indication.
	StepSuccess StepStatus = iota
	// StepRetriable means the attempt budget was exhausted on transient errors.
	StepRetriable
	// StepFatal means an attempt hit a condition that retrying cannot change.
	StepFatal
)

// StepResult is the outcome of executing a step through a Policy.
type StepResult struct {
	Status   StepStatus
	Output   string // Captured output of the last attempt
	Attempts int    // Number of attempts actually made
	Err      error  // Nil on StepSuccess
}

// Policy bounds retries of a single fallible remote operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, minimum 1.
	// Zero falls back to a default of 3.
	MaxAttempts int

	// BaseDelay seeds the attempt-indexed backoff: the sleep before attempt
	// n+1 is BaseDelay*n, optionally jittered. Zero falls back to 2s.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds up to 50% random variance to each backoff sleep, spreading
	// out herds of workers retrying against the same provider.
	Jitter bool

	// Classifier decides which attempts succeeded, which are worth retrying,
	// and which are fatal. Nil falls back to DefaultClassifier.
	Classifier *Classifier
}

// Validate checks that the Policy configuration is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxAttempts cannot be negative"))
	}
	if p.BaseDelay < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("BaseDelay cannot be negative"))
	}
	if p.MaxDelay < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxDelay cannot be negative"))
	}
	return nil
}

// Execute runs the step until it succeeds, hits a fatal condition, or
// exhausts the attempt budget. The fatal check takes precedence over
// remaining attempts: a fatal marker is never retried.
func (p Policy) Execute(ctx context.Context, step StepFunc) StepResult {
	classifier := p.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxAttempts
	}

	var output string
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err = step(ctx)
		switch classifier.Classify(output, err) {
		case ClassOK:
			return StepResult{Status: StepSuccess, Output: output, Attempts: attempt}
		case ClassFatal:
			return StepResult{
				Status:   StepFatal,
				Output:   output,
				Attempts: attempt,
				Err:      attemptError(output, err),
			}
		}
		if attempt == attempts {
			break
		}
		if !sleepContext(ctx, p.backoff(attempt)) {
			return StepResult{
				Status:   StepRetriable,
				Output:   output,
				Attempts: attempt,
				Err:      ctx.Err(),
			}
		}
	}

	return StepResult{
		Status:   StepRetriable,
		Output:   output,
		Attempts: attempts,
		Err:      attemptError(output, err),
	}
}

// backoff returns the sleep duration before the attempt following the given
// one-based attempt index.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	delay := base * time.Duration(attempt)
	if p.Jitter {
		delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// sleepContext sleeps for the given duration, returning false if the context
// was cancelled before the duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// attemptError derives a human-readable error from a failed attempt,
// preferring the first line of captured provider output over the raw call
// error.
func attemptError(output string, err error) error {
	line := firstLine(output)
	if line != "" {
		return errors.New(line)
	}
	if err != nil {
		return err
	}
	return errors.New("provider call failed without output")
}

// firstLine returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for line := range strings.Lines(s) {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
