package resilient

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// State is the externally visible circuit state of an upstream.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
)

// Transition describes a single breaker state change.
type Transition struct {
	Upstream string
	From     State
	To       State
	At       time.Time
}

func fromBreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[*Response] {
	cfg := c.cfg
	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return failureRatio > cfg.FailureThreshold
		},
		// only transient upstream failures count against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.onTransition(Transition{
				Upstream: name,
				From:     fromBreakerState(from),
				To:       fromBreakerState(to),
				At:       time.Now(),
			})
		},
	})
}
