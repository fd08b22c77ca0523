// Package steps walks a participant through an ordered list of screens and
// records how far they got.
package steps

import (
	"context"
	"errors"
	"fmt"
)

// ErrDone is returned when advancing a sequence that has already completed.
var ErrDone = errors.New("steps: sequence already complete")

// Progress persists a sequence's position and completion marker.
type Progress interface {
	Index(ctx context.Context) (int, error)
	SetIndex(ctx context.Context, i int) error
	Done(ctx context.Context) (bool, error)
	SetDone(ctx context.Context) error
}

// Context is what a Source may inspect when choosing steps.
type Context struct {
	PlayerID string
	GameID   string
}

// Source produces the ordered step names for a participant.
type Source func(Context) []string

// Static returns a Source that always yields names.
func Static(names ...string) Source {
	return func(Context) []string { return names }
}

// Sequence is one ordered list of steps bound to its progress markers.
type Sequence struct {
	steps    []string
	progress Progress
}

func New(steps []string, p Progress) *Sequence {
	return &Sequence{steps: steps, progress: p}
}

// Current returns the step to show. When done is true there is nothing left
// to show and the caller renders what the sequence wraps.
func (s *Sequence) Current(ctx context.Context) (name string, index int, done bool, err error) {
	done, err = s.progress.Done(ctx)
	if err != nil {
		return "", 0, false, fmt.Errorf("read done marker: %w", err)
	}
	if done {
		return "", len(s.steps), true, nil
	}

	index, err = s.progress.Index(ctx)
	if err != nil {
		return "", 0, false, fmt.Errorf("read step index: %w", err)
	}
	if index < 0 {
		index = 0
	}
	if index >= len(s.steps) {
		if err := s.progress.SetDone(ctx); err != nil {
			return "", 0, false, fmt.Errorf("write done marker: %w", err)
		}
		return "", len(s.steps), true, nil
	}
	return s.steps[index], index, false, nil
}

// Advance completes the current step. Completing the last step marks the
// sequence done.
func (s *Sequence) Advance(ctx context.Context) error {
	_, index, done, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if done {
		return ErrDone
	}

	next := index + 1
	if err := s.progress.SetIndex(ctx, next); err != nil {
		return fmt.Errorf("write step index: %w", err)
	}
	if next >= len(s.steps) {
		if err := s.progress.SetDone(ctx); err != nil {
			return fmt.Errorf("write done marker: %w", err)
		}
	}
	return nil
}

// Len returns the number of steps in the sequence.
func (s *Sequence) Len() int { return len(s.steps) }
