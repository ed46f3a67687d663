// Package orders keeps the client's view of the rider's orders in sync with
// the backend and serializes the rider's state-changing actions against it.
package orders

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/observability"
)

// Fetcher is the read slice of the backend the synchronizer needs.
type Fetcher interface {
	OrdersByStatus(ctx context.Context, riderID string, status models.OrderStatus) ([]models.Order, error)
}

// Synchronizer polls the live status buckets and merges the results into one
// collection. Every refresh is an all-or-nothing replacement: a failing
// bucket fetch leaves the previous collection untouched, because a stale but
// consistent view beats a partially updated one.
type Synchronizer struct {
	riderID  string
	backend  Fetcher
	online   func() bool
	interval time.Duration
	logger   *slog.Logger

	mu              sync.RWMutex
	active          map[string]models.Order
	completed       []models.Order
	completedLoaded bool

	refreshMu sync.Mutex
}

func NewSynchronizer(riderID string, backend Fetcher, online func() bool, interval time.Duration, logger *slog.Logger) *Synchronizer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Synchronizer{
		riderID:  riderID,
		backend:  backend,
		online:   online,
		interval: interval,
		logger:   logger,
		active:   make(map[string]models.Order),
	}
}

// RefreshActive polls every live bucket in parallel and replaces the active
// collection with the union of the results. When the rider is offline the
// call is a no-op unless forced; there is no work to receive offline.
func (s *Synchronizer) RefreshActive(ctx context.Context, force bool) error {
	if !force && !s.online() {
		return nil
	}

	// Serialized so a timer-driven refresh and a user-driven one cannot
	// interleave their replacements.
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	observability.OrderPollsTotal.Inc()

	buckets := models.LiveStatuses()
	results := make([][]models.Order, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, status := range buckets {
		i, status := i, status
		g.Go(func() error {
			fetched, err := s.backend.OrdersByStatus(gctx, s.riderID, status)
			if err != nil {
				return err
			}
			results[i] = fetched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.OrderPollFailures.Inc()
		s.logger.Warn("active order refresh failed", "error", err)
		return err
	}

	next := make(map[string]models.Order)
	for _, bucket := range results {
		for _, o := range bucket {
			next[o.OrderID] = o
		}
	}

	s.mu.Lock()
	s.active = next
	s.mu.Unlock()
	return nil
}

// RefreshCompleted fetches the delivered bucket. It runs on demand only, not
// on the recurring timer; the result rarely changes within a session.
func (s *Synchronizer) RefreshCompleted(ctx context.Context) error {
	fetched, err := s.backend.OrdersByStatus(ctx, s.riderID, models.StatusDelivered)
	if err != nil {
		s.logger.Warn("completed order refresh failed", "error", err)
		return err
	}
	sortByCreated(fetched)
	s.mu.Lock()
	s.completed = fetched
	s.completedLoaded = true
	s.mu.Unlock()
	return nil
}

// EnsureCompleted fetches the delivered bucket only if it has never been
// loaded this session, so viewing the completed list repeatedly stays free.
func (s *Synchronizer) EnsureCompleted(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.completedLoaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.RefreshCompleted(ctx)
}

// Run polls on a fixed interval until ctx is cancelled. The first refresh
// happens immediately so going online is followed by a poll within one tick.
func (s *Synchronizer) Run(ctx context.Context) {
	if err := s.RefreshActive(ctx, true); err != nil {
		s.logger.Warn("initial order refresh failed", "error", err)
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.RefreshActive(ctx, false)
		}
	}
}

// Active returns a snapshot of live orders, oldest first.
func (s *Synchronizer) Active() []models.Order {
	s.mu.RLock()
	out := make([]models.Order, 0, len(s.active))
	for _, o := range s.active {
		if o.Status.IsLive() {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()
	sortByCreated(out)
	return out
}

func (s *Synchronizer) Completed() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.completed))
	copy(out, s.completed)
	return out
}

func (s *Synchronizer) Get(orderID string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.active[orderID]
	return o, ok
}

// HasActive reports whether any cached order is still in a live state. The
// availability layer uses this to block going offline mid-delivery.
func (s *Synchronizer) HasActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.active {
		if o.Status.IsLive() {
			return true
		}
	}
	return false
}

func sortByCreated(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OrderID < orders[j].OrderID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
