// Package circuitbreaker guards calls to one downstream service.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("service temporarily unavailable")

type Settings struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes are allowed while half-open.
	HalfOpenRequests uint32
	// IsSuccessful decides whether an error counts against the breaker.
	// Defaults to err == nil.
	IsSuccessful  func(err error) bool
	OnStateChange func(name, from, to string)
}

type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func New(s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}

	threshold := s.FailureThreshold
	st := gobreaker.Settings{
		Name:         s.Name,
		MaxRequests:  s.HalfOpenRequests,
		Timeout:      s.OpenTimeout,
		IsSuccessful: s.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, from.String(), to.String())
		}
	}

	return &Breaker{
		name: s.Name,
		cb:   gobreaker.NewCircuitBreaker[struct{}](st),
	}
}

// Execute runs fn unless the breaker is open. Rejections wrap ErrOpen.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) Name() string {
	return b.name
}
