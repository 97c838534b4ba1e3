package recovery

import (
	"context"
	"fmt"
	"sync"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy skips what it can and records every error it was asked
// about.
type LenientStrategy struct {
	mu     sync.Mutex
	Errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if location.ObjectNum > 0 {
		s.Errors = append(s.Errors, fmt.Errorf("[%s] object %d %d: %w", location.Component, location.ObjectNum, location.ObjectGen, err))
	} else {
		s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	}
	return ActionSkip
}

// Recorded returns a snapshot of the errors seen so far.
func (s *LenientStrategy) Recorded() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.Errors))
	copy(out, s.Errors)
	return out
}

// Tolerates reports whether the strategy lets the caller continue past err.
func Tolerates(ctx context.Context, s Strategy, err error, loc Location) bool {
	if s == nil {
		return false
	}
	return s.OnError(ctx, err, loc) != ActionFail
}
