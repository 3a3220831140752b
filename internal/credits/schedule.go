package credits

import (
	"context"
	"time"

	"github.com/swiftbridge/convert-client/internal/config"
)

// Schedule gives the delay to wait after a given (1-based) attempt.
type Schedule interface {
	NextDelay(attempt int) time.Duration
}

// LinearSchedule waits Base + Step*attempt, so delays never decrease.
type LinearSchedule struct {
	Base time.Duration
	Step time.Duration
}

// DefaultSchedule returns the 300ms + 100ms*attempt schedule.
func DefaultSchedule() LinearSchedule {
	return LinearSchedule{Base: config.DefaultReconcileBaseDelay, Step: config.DefaultReconcileStepDelay}
}

func (s LinearSchedule) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base, step := s.Base, s.Step
	if base < 0 {
		base = 0
	}
	if step < 0 {
		step = 0
	}
	return base + time.Duration(attempt)*step
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
