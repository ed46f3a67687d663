package geo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/rider-agent/internal/models"
)

// ErrPermissionDenied is returned when the platform refuses location access.
var ErrPermissionDenied = errors.New("location permission denied")

// ErrNoFix is returned when no position fix is available within the caller's
// freshness window.
var ErrNoFix = errors.New("no location fix available")

// Subscription is a handle to an active watch. Stop is idempotent and
// guarantees no further callbacks after it returns.
type Subscription interface {
	Stop()
}

// Sampler is the device location capability. Foreground permission must be
// granted before the first Watch or Current call; background permission is
// requested best-effort and its absence degrades tracking without aborting it.
type Sampler interface {
	RequestForeground(ctx context.Context) error
	RequestBackground(ctx context.Context) error
	// Watch delivers every new fix to fn until the subscription is stopped.
	// fn runs on the sampler's delivery path and must return quickly.
	Watch(fn func(models.Coordinate)) (Subscription, error)
	// Current returns a one-shot fix. A cached fix no older than maxAge is
	// acceptable; maxAge <= 0 demands a fresh one.
	Current(ctx context.Context, maxAge time.Duration) (models.Coordinate, error)
}

// SimSampler replays a scripted route. It backs local runs and tests; a real
// device adapter implements the same interface against platform services.
type SimSampler struct {
	mu       sync.Mutex
	route    []models.Coordinate
	pos      int
	interval time.Duration
	last     *models.Coordinate
	subs     map[int]func(models.Coordinate)
	nextSub  int
	stopCh   chan struct{}
	running  bool
}

func NewSimSampler(route []models.Coordinate, interval time.Duration) *SimSampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimSampler{route: route, interval: interval, subs: make(map[int]func(models.Coordinate))}
}

func (s *SimSampler) RequestForeground(ctx context.Context) error { return nil }
func (s *SimSampler) RequestBackground(ctx context.Context) error { return nil }

func (s *SimSampler) Watch(fn func(models.Coordinate)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		go s.loop(s.stopCh)
	}
	return &simSubscription{s: s, id: id}, nil
}

func (s *SimSampler) Current(ctx context.Context, maxAge time.Duration) (models.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && maxAge > 0 && time.Since(s.last.SampledAt) <= maxAge {
		return *s.last, nil
	}
	return s.advanceLocked()
}

// Inject overrides the current position, e.g. from a replay file or a test.
func (s *SimSampler) Inject(c models.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.SampledAt = time.Now()
	s.last = &c
	s.deliverLocked(c)
}

func (s *SimSampler) loop(stop chan struct{}) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			if c, err := s.advanceLocked(); err == nil {
				s.deliverLocked(c)
			}
			s.mu.Unlock()
		}
	}
}

// deliverLocked fans a fix out to every subscriber while holding the lock, so
// a stopped subscription can never receive a straggling callback. Callbacks
// must not call back into the sampler.
func (s *SimSampler) deliverLocked(c models.Coordinate) {
	for _, fn := range s.subs {
		fn(c)
	}
}

func (s *SimSampler) advanceLocked() (models.Coordinate, error) {
	if len(s.route) == 0 {
		if s.last != nil {
			return *s.last, nil
		}
		return models.Coordinate{}, ErrNoFix
	}
	c := s.route[s.pos%len(s.route)]
	s.pos++
	c.SampledAt = time.Now()
	if prev := s.last; prev != nil && (prev.Lat != c.Lat || prev.Lng != c.Lng) {
		dt := c.SampledAt.Sub(prev.SampledAt).Seconds()
		if dt > 0 {
			c.SpeedKmh = Haversine(prev.Lat, prev.Lng, c.Lat, c.Lng) / dt * 3.6
		}
		c.HeadingDeg = Bearing(prev.Lat, prev.Lng, c.Lat, c.Lng)
	}
	s.last = &c
	return c, nil
}

type simSubscription struct {
	s    *SimSampler
	id   int
	once sync.Once
}

func (sub *simSubscription) Stop() {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		defer sub.s.mu.Unlock()
		delete(sub.s.subs, sub.id)
		if len(sub.s.subs) == 0 && sub.s.running {
			close(sub.s.stopCh)
			sub.s.running = false
		}
	})
}
