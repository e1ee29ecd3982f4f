package generation

import (
	"context"
	"fmt"
	"time"

	"imageapi/internal/infra"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 60
)

// Policy bounds the wait for one job: MaxAttempts status queries, each
// preceded by a fixed Interval.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy waits up to two minutes at a two second cadence.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultPollInterval, MaxAttempts: DefaultPollMaxAttempts}
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollMaxAttempts
	}
	return p
}

// StatusFunc queries the current status document of one job.
type StatusFunc func(ctx context.Context) (Payload, error)

// Poller runs the status loop for a single job.
type Poller struct {
	policy Policy
	after  func(time.Duration) <-chan time.Time
	logger *infra.Logger
}

// NewPoller builds a Poller; zero policy fields take the defaults.
func NewPoller(policy Policy, logger *infra.Logger) *Poller {
	return &Poller{
		policy: policy.withDefaults(),
		after:  time.After,
		logger: infra.LoggerOrDiscard(logger),
	}
}

// Policy returns the effective policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// Wait polls until the job succeeds, fails, the budget runs out or ctx ends.
// It returns the last status document and the number of queries issued.
func (p *Poller) Wait(ctx context.Context, requestID string, status StatusFunc) (Payload, int, error) {
	var last Payload
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return last, attempt - 1, ctx.Err()
		case <-p.after(p.policy.Interval):
		}

		doc, err := status(ctx)
		if err != nil {
			return last, attempt, fmt.Errorf("query status of %s: %w", requestID, err)
		}
		last = doc

		state := doc.State()
		switch {
		case isSuccess(state):
			return doc, attempt, nil
		case isFailure(state):
			return doc, attempt, &JobFailedError{RequestID: requestID, State: state, Status: doc}
		}
		p.logger.Debug().
			Str("request_id", requestID).
			Str("state", state).
			Int("attempt", attempt).
			Msg("generation: job pending")
	}
	return last, p.policy.MaxAttempts, fmt.Errorf("%w after %d attempts", ErrTimeout, p.policy.MaxAttempts)
}
