package credits

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/monitoring"
)

// ProfileRefresher refreshes the session profile. *session.Manager satisfies it.
type ProfileRefresher interface {
	Refresh(ctx context.Context) error
}

// BalanceSource reads the balance. ok is false when the read was superseded.
type BalanceSource interface {
	Balance(ctx context.Context) (b Balance, ok bool, err error)
}

// Result is the single terminal value of Reconcile.
type Result struct {
	// Balance is the last observed available credit count.
	Balance int
	// Last is the last balance successfully read, nil if none was.
	Last *Balance
	// Attempts is how many balance queries were issued.
	Attempts int
	// Confirmed is set when a positive balance was observed.
	Confirmed bool
	// Superseded is set when the session expired mid-run.
	Superseded bool
	// Err is the last query error, if any.
	Err error
}

// Poller waits for an asynchronous credit grant to become visible.
type Poller struct {
	profile     ProfileRefresher
	balances    BalanceSource
	schedule    Schedule
	maxAttempts int
	sleep       SleepFunc
	metrics     *monitoring.Metrics
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSchedule sets the delay schedule.
func WithSchedule(s Schedule) PollerOption {
	return func(p *Poller) { p.schedule = s }
}

// WithMaxAttempts caps balance queries per run.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) PollerOption {
	return func(p *Poller) { p.sleep = fn }
}

// WithMetrics enables reconciliation counters.
func WithMetrics(m *monitoring.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// NewPoller creates a poller. profile may be nil.
func NewPoller(profile ProfileRefresher, balances BalanceSource, opts ...PollerOption) *Poller {
	p := &Poller{
		profile:     profile,
		balances:    balances,
		schedule:    DefaultSchedule(),
		maxAttempts: config.DefaultReconcileAttempts,
		sleep:       Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig builds a poller from reconcile settings.
func FromConfig(cfg config.ReconcileConfig, profile ProfileRefresher, balances BalanceSource, opts ...PollerOption) *Poller {
	base := []PollerOption{
		WithMaxAttempts(cfg.MaxAttempts),
		WithSchedule(LinearSchedule{Base: cfg.BaseDelay, Step: cfg.StepDelay}),
	}
	return NewPoller(profile, balances, append(base, opts...)...)
}

// Reconcile polls until a positive balance is seen, the attempts run out,
// the session expires, or ctx is done. At most one query is in flight.
func (p *Poller) Reconcile(ctx context.Context) Result {
	var res Result
	start := time.Now()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		if p.profile != nil {
			if err := p.profile.Refresh(ctx); err != nil {
				log.Debug().Err(err).Int("attempt", attempt).Msg("reconcile: profile refresh failed")
			}
		}

		balance, ok, err := p.balances.Balance(ctx)
		res.Attempts = attempt

		switch {
		case err != nil:
			res.Err = err
			log.Debug().Err(err).Int("attempt", attempt).Msg("reconcile: balance query failed")
		case !ok:
			res.Superseded = true
		default:
			b := balance
			res.Last = &b
			res.Balance = balance.AvailableCredits
			res.Confirmed = balance.AvailableCredits > 0
		}
		if res.Superseded || res.Confirmed {
			break
		}

		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.schedule.NextDelay(attempt)); err != nil {
				break
			}
		}
	}

	if p.metrics != nil {
		p.metrics.RecordReconcile(res.Attempts, res.Confirmed)
	}
	log.Info().
		Int("attempts", res.Attempts).
		Int("balance", res.Balance).
		Bool("confirmed", res.Confirmed).
		Bool("superseded", res.Superseded).
		Dur("elapsed", time.Since(start)).
		Msg("reconcile: finished")
	return res
}
