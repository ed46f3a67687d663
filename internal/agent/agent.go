// Package agent composes the availability controller, order synchronizer,
// action dispatcher and push listener into one rider-session-scoped unit,
// and enforces the cross-component policies none of them can own alone.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rider-agent/internal/api"
	"github.com/example/rider-agent/internal/availability"
	"github.com/example/rider-agent/internal/geo"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/orders"
	"github.com/example/rider-agent/internal/push"
)

// ErrHasActiveOrders blocks the offline direction while the rider still has
// live orders. Rejected locally; no backend call is made.
var ErrHasActiveOrders = errors.New("cannot go offline with active orders")

// SessionStore is the slice of session persistence the agent touches at logout.
type SessionStore interface {
	Clear() error
}

type Config struct {
	Session  models.Session
	Sessions SessionStore
	API      *api.Client
	Sampler  geo.Sampler
	Logger   *slog.Logger

	PollInterval   time.Duration
	ReportInterval time.Duration
	MinMoveMeters  float64
	OfflineMaxAge  time.Duration
	PushURL        string
}

type Agent struct {
	session  models.Session
	sessions SessionStore
	ctrl     *availability.Controller
	sync     *orders.Synchronizer
	actions  *orders.Dispatcher
	push     *push.Listener
	logger   *slog.Logger

	mu          sync.Mutex
	baseCtx     context.Context
	stopPolling context.CancelFunc
}

func New(cfg Config) *Agent {
	a := &Agent{
		session:  cfg.Session,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		baseCtx:  context.Background(),
	}
	a.ctrl = availability.New(availability.Config{
		RiderID:        cfg.Session.RiderID,
		Backend:        cfg.API,
		Sampler:        cfg.Sampler,
		Logger:         cfg.Logger,
		ReportInterval: cfg.ReportInterval,
		MinMoveMeters:  cfg.MinMoveMeters,
		OfflineMaxAge:  cfg.OfflineMaxAge,
		OnTransition:   a.onAvailability,
	})
	a.sync = orders.NewSynchronizer(cfg.Session.RiderID, cfg.API, a.ctrl.IsOnline, cfg.PollInterval, cfg.Logger)
	a.actions = orders.NewDispatcher(cfg.Session.RiderID, cfg.API, a.sync, cfg.Logger)
	if cfg.PushURL != "" {
		a.push = push.NewListener(cfg.PushURL, a.sync, cfg.Logger)
	}
	return a
}

// Start binds the agent's background work to ctx. The push channel runs for
// the whole session; the poll scheduler only runs while online.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()
	if a.push != nil {
		go a.push.Run(ctx)
	}
}

func (a *Agent) Session() models.Session { return a.session }

func (a *Agent) Availability() availability.State { return a.ctrl.Snapshot() }

func (a *Agent) Orders() *orders.Synchronizer { return a.sync }

func (a *Agent) Actions() *orders.Dispatcher { return a.actions }

func (a *Agent) GoOnline(ctx context.Context) error { return a.ctrl.GoOnline(ctx) }

// GoOffline applies the active-orders policy before touching the network.
func (a *Agent) GoOffline(ctx context.Context) error {
	if a.sync.HasActive() {
		return ErrHasActiveOrders
	}
	return a.ctrl.GoOffline(ctx)
}

func (a *Agent) Toggle(ctx context.Context) error {
	if a.ctrl.IsOnline() {
		return a.GoOffline(ctx)
	}
	return a.GoOnline(ctx)
}

// Shutdown is the session teardown path. It never fails: offline cleanup is
// best-effort and polling stops via the availability transition hook.
func (a *Agent) Shutdown(ctx context.Context) {
	a.ctrl.Teardown(ctx)

	// The rider may never have gone online; make sure no scheduler leaks.
	a.mu.Lock()
	if a.stopPolling != nil {
		a.stopPolling()
		a.stopPolling = nil
	}
	a.mu.Unlock()
}

// Logout runs the offline teardown first and clears the stored session only
// after it finishes, so a crash mid-logout never leaves an online rider with
// no identity on disk.
func (a *Agent) Logout(ctx context.Context) error {
	a.Shutdown(ctx)
	if a.sessions == nil {
		return nil
	}
	return a.sessions.Clear()
}

// onAvailability starts the poll scheduler on the online edge and stops it on
// the offline edge, within the same call, so polling never outlives being
// online by more than the cancellation.
func (a *Agent) onAvailability(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if online {
		if a.stopPolling != nil {
			return
		}
		ctx, cancel := context.WithCancel(a.baseCtx)
		a.stopPolling = cancel
		go a.sync.Run(ctx)
		return
	}
	if a.stopPolling != nil {
		a.stopPolling()
		a.stopPolling = nil
	}
}
