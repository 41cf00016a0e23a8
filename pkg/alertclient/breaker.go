package alertclient

import (
	"github.com/sony/gobreaker"
)

// CircuitBreaker guards alert deliveries so a sink outage cannot stall
// the pipeline that is trying to report it.
type CircuitBreaker interface {
	Execute(fn func() error) error
}

// NewCircuitBreaker builds the breaker the client sends through. With
// the breaker disabled, calls pass straight to the sink.
func NewCircuitBreaker(cfg Config) CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return passthroughBreaker{}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert-sink",
		MaxRequests: uint32(cfg.CBHalfOpenMaxSuccess),
		Interval:    cfg.CBSamplingDuration,
		Timeout:     cfg.CBRecoveryTime,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.CBMinRequests) {
				return false
			}
			return counts.TotalFailures >= uint32(cfg.CBFailureThreshold)
		},
	})

	return gobreakerBreaker{cb: cb}
}

type passthroughBreaker struct{}

func (passthroughBreaker) Execute(fn func() error) error {
	return fn()
}

type gobreakerBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func (g gobreakerBreaker) Execute(fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}
