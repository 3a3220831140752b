package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/swiftbridge/convert-client/internal/auth"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/conversion"
	"github.com/swiftbridge/convert-client/internal/credits"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/journal"
	"github.com/swiftbridge/convert-client/internal/monitoring"
	"github.com/swiftbridge/convert-client/internal/session"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/transport"
)

// app wires one process-lifetime session: one token store, one bus, one
// session manager. Nothing credential-bearing outlives it.
type app struct {
	cfg       *config.Config
	metrics   *monitoring.Metrics
	bus       *events.Bus
	store     *tokenstore.MemoryStore
	transport *transport.Transport
	session   *session.Manager
	auth      *auth.Client
	convert   *conversion.Coordinator
	credits   *credits.Client
	poller    *credits.Poller
	journal   *journal.SQLiteJournal

	// creditsStale is set by refresh_credits and cleared once the profile is re-read.
	creditsStale atomic.Bool

	closeLog func() error
}

func loadConfig(opts globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.apiURL != "" {
		cfg.API.BaseURL = opts.apiURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newApp(opts globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	out, closeLog, err := monitoring.OpenLogOutput(cfg.Logging.Output)
	if err != nil {
		return nil, fmt.Errorf("log output: %w", err)
	}
	monitoring.SetupLogging(cfg.Logging.Level, out)

	a := &app{
		cfg:      cfg,
		metrics:  monitoring.NewMetrics(),
		bus:      events.NewBus(),
		store:    tokenstore.NewMemoryStore(),
		closeLog: closeLog,
	}

	a.transport = transport.FromConfig(cfg, a.store,
		transport.WithPublisher(a.bus),
		transport.WithMetrics(a.metrics),
	)
	a.session = session.NewManager(a.store, a.transport, a.bus, session.WithLoginPath(cfg.Session.LoginPath))
	a.auth = auth.NewClient(a.transport)
	a.credits = credits.NewClient(a.transport)
	a.poller = credits.FromConfig(cfg.Reconcile, a.session, a.credits, credits.WithMetrics(a.metrics))

	convertOpts := []conversion.Option{
		conversion.WithPublisher(a.bus),
		conversion.WithMetrics(a.metrics),
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Journal.Path).Msg("journal disabled")
		} else {
			a.journal = j
			convertOpts = append(convertOpts, conversion.WithRecorder(j))
		}
	}
	a.convert = conversion.NewCoordinator(a.transport, convertOpts...)

	a.bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.KindRefreshCredits {
			a.creditsStale.Store(true)
		}
	})

	if cfg.Session.Token != "" {
		a.store.Set(cfg.Session.Token)
	}
	return a, nil
}

// syncCredits re-reads the profile after a refresh_credits signal.
func (a *app) syncCredits(ctx context.Context) {
	if !a.creditsStale.Swap(false) || !a.session.Authenticated() {
		return
	}
	if err := a.session.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("credit refresh after conversion failed")
	}
}

func (a *app) close() {
	a.session.Close()
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}
