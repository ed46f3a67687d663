// Package availability owns the rider's online/offline state and everything
// that hangs off it: the tracking subscription, the periodic location
// reporter, and the single authoritative availability write per transition.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rider-agent/internal/geo"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/observability"
)

// ErrBusy means an online/offline transition is already in flight. A fast
// double-tap must not race two availability writes.
var ErrBusy = errors.New("availability transition already in flight")

// Backend is the slice of the rider API the controller needs.
type Backend interface {
	SetAvailability(ctx context.Context, riderID string, active bool, coord *models.Coordinate) error
	UpdateLocation(ctx context.Context, riderID string, coord models.Coordinate) error
}

// State is a read-only snapshot for other components and the status surface.
type State struct {
	Online    bool               `json:"online"`
	Tracking  bool               `json:"tracking"`
	LastKnown *models.Coordinate `json:"last_known,omitempty"`
}

type Config struct {
	RiderID        string
	Backend        Backend
	Sampler        geo.Sampler
	Logger         *slog.Logger
	ReportInterval time.Duration // location write cadence while tracking
	MinMoveMeters  float64       // movement threshold for a write
	OfflineMaxAge  time.Duration // acceptable staleness of the offline fix
	OnTransition   func(online bool)
}

type Controller struct {
	riderID       string
	backend       Backend
	sampler       geo.Sampler
	logger        *slog.Logger
	reporter      *Reporter
	offlineMaxAge time.Duration
	onTransition  func(online bool)

	mu        sync.Mutex
	cond      *sync.Cond
	busy      bool
	online    bool
	tracking  bool
	lastKnown *models.Coordinate
}

func New(cfg Config) *Controller {
	if cfg.OfflineMaxAge <= 0 {
		cfg.OfflineMaxAge = 30 * time.Second
	}
	c := &Controller{
		riderID:       cfg.RiderID,
		backend:       cfg.Backend,
		sampler:       cfg.Sampler,
		logger:        cfg.Logger,
		offlineMaxAge: cfg.OfflineMaxAge,
		onTransition:  cfg.OnTransition,
	}
	c.cond = sync.NewCond(&c.mu)
	c.reporter = NewReporter(cfg.RiderID, cfg.Backend, cfg.Sampler, cfg.ReportInterval, cfg.MinMoveMeters, cfg.Logger)
	c.reporter.SetSampleHook(c.noteSample)
	return c
}

// GoOnline acquires a fresh fix, performs the availability write, then starts
// tracking. Going online without a coordinate is not permitted: any failure
// before the write leaves the rider offline with no backend call made.
func (c *Controller) GoOnline(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	c.mu.Lock()
	if c.online {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.sampler.RequestForeground(ctx); err != nil {
		return fmt.Errorf("foreground location permission: %w", err)
	}
	coord, err := c.sampler.Current(ctx, 0)
	if err != nil {
		return fmt.Errorf("acquire fix: %w", err)
	}
	if err := c.backend.SetAvailability(ctx, c.riderID, true, &coord); err != nil {
		return err
	}

	c.mu.Lock()
	c.online = true
	c.lastKnown = &coord
	c.mu.Unlock()

	c.startTracking(ctx)
	observability.Online.Set(1)
	c.logger.Info("rider online", "lat", coord.Lat, "lng", coord.Lng)
	if c.onTransition != nil {
		c.onTransition(true)
	}
	return nil
}

// GoOffline stops tracking first so no reporter write races the offline
// write, then reports a best-known coordinate with the availability flip.
// If the write fails the rider is still online server-side, so tracking is
// resumed and the error returned.
func (c *Controller) GoOffline(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	return c.transitionOffline(ctx)
}

func (c *Controller) transitionOffline(ctx context.Context) error {
	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.stopTracking()

	coord := c.bestOfflineFix(ctx)
	if err := c.backend.SetAvailability(ctx, c.riderID, false, coord); err != nil {
		c.startTracking(ctx)
		return err
	}

	c.mu.Lock()
	c.online = false
	c.mu.Unlock()

	observability.Online.Set(0)
	c.logger.Info("rider offline")
	if c.onTransition != nil {
		c.onTransition(false)
	}
	return nil
}

// Toggle flips whichever direction applies to the current state. The caller
// is responsible for blocking the offline direction while live orders exist;
// that policy needs order data this component does not own.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	if online {
		return c.GoOffline(ctx)
	}
	return c.GoOnline(ctx)
}

// Teardown is the logout path: best-effort offline cleanup that always
// completes. It waits for any in-flight transition to resolve before taking
// the guard itself, so it never races a half-finished GoOnline. Network
// failures are logged, never returned, and local state ends offline
// regardless so session teardown can proceed.
func (c *Controller) Teardown(ctx context.Context) {
	c.mu.Lock()
	for c.busy {
		c.cond.Wait()
	}
	c.busy = true
	online := c.online
	c.mu.Unlock()
	defer c.end()

	if !online {
		c.stopTracking()
		return
	}

	c.stopTracking()
	coord := c.bestOfflineFix(ctx)
	if err := c.backend.SetAvailability(ctx, c.riderID, false, coord); err != nil {
		c.logger.Warn("offline write failed during teardown", "error", err)
	}

	c.mu.Lock()
	c.online = false
	c.mu.Unlock()
	observability.Online.Set(0)
	if c.onTransition != nil {
		c.onTransition(false)
	}
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{Online: c.online, Tracking: c.tracking}
	if c.lastKnown != nil {
		lk := *c.lastKnown
		s.LastKnown = &lk
	}
	return s
}

func (c *Controller) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Controller) IsTracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

// bestOfflineFix prefers a recent fix but falls back to the retained last
// known coordinate, and may be nil if neither exists.
func (c *Controller) bestOfflineFix(ctx context.Context) *models.Coordinate {
	if coord, err := c.sampler.Current(ctx, c.offlineMaxAge); err == nil {
		c.mu.Lock()
		c.lastKnown = &coord
		c.mu.Unlock()
		return &coord
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnown
}

func (c *Controller) startTracking(ctx context.Context) {
	if err := c.sampler.RequestBackground(ctx); err != nil {
		c.logger.Warn("background location permission not granted", "error", err)
	}
	if err := c.reporter.Start(); err != nil {
		c.logger.Warn("location tracking failed to start", "error", err)
		return
	}
	c.mu.Lock()
	c.tracking = true
	c.mu.Unlock()
}

func (c *Controller) stopTracking() {
	c.reporter.Stop()
	c.mu.Lock()
	c.tracking = false
	c.mu.Unlock()
}

func (c *Controller) noteSample(coord models.Coordinate) {
	c.mu.Lock()
	c.lastKnown = &coord
	c.mu.Unlock()
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	c.cond.Broadcast()
}
