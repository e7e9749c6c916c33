package outbox

import (
	"time"

	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

// Policy bounds the retry schedule shared by every channel.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultPolicy mirrors the production dispatch settings.
var DefaultPolicy = Policy{
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Minute,
	MaxRetries:   5,
}

// Decision is the outcome of one failed delivery attempt.
type Decision struct {
	Attempts      int
	Terminal      bool
	NextAttemptAt time.Time
	LastError     string
}

// Plan computes the state transition for a failed attempt. attempts is the
// count recorded before this attempt; the returned Attempts includes it.
// Non-retryable errors (malformed payloads, rejected requests) go terminal
// immediately instead of exhausting the schedule.
func Plan(attempts int, err error, now time.Time, policy Policy) Decision {
	decision := Decision{Attempts: attempts + 1}
	if err != nil {
		decision.LastError = err.Error()
	}

	if !pkgerrors.IsRetryable(err) || decision.Attempts >= policy.MaxRetries {
		decision.Terminal = true
		return decision
	}

	decision.NextAttemptAt = now.Add(policy.Delay(decision.Attempts))
	return decision
}

// Delay returns the capped exponential delay for the given attempt count.
func (p Policy) Delay(attempts int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
