package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rider-agent/internal/geo"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/observability"
)

// LocationWriter is the slice of the backend the reporter needs.
type LocationWriter interface {
	UpdateLocation(ctx context.Context, riderID string, coord models.Coordinate) error
}

// Reporter pushes the rider's position on a fixed interval while tracking is
// active. A cycle only writes when the latest sample has moved at least
// minMove meters from the previously reported one; write failures are logged
// and the next tick tries again. Stop fully tears the reporter down so a
// later Start begins with a clean distance baseline.
type Reporter struct {
	riderID  string
	backend  LocationWriter
	sampler  geo.Sampler
	interval time.Duration
	minMove  float64
	logger   *slog.Logger
	onSample func(models.Coordinate)

	mu      sync.Mutex
	sub     geo.Subscription
	stop    chan struct{}
	done    chan struct{}
	latest  *models.Coordinate
	prev    *models.Coordinate
	running bool
}

func NewReporter(riderID string, backend LocationWriter, sampler geo.Sampler, interval time.Duration, minMove float64, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{
		riderID:  riderID,
		backend:  backend,
		sampler:  sampler,
		interval: interval,
		minMove:  minMove,
		logger:   logger,
	}
}

// SetSampleHook registers a callback invoked for every accepted sample while
// the reporter runs. Must be set before Start.
func (r *Reporter) SetSampleHook(fn func(models.Coordinate)) { r.onSample = fn }

func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	sub, err := r.sampler.Watch(r.noteSample)
	if err != nil {
		return err
	}
	r.sub = sub
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	// a sample noted between the last Stop and now belongs to the old run
	r.latest = nil
	r.prev = nil
	r.running = true
	go r.loop(r.stop, r.done)
	return nil
}

// Stop halts the timer and the stream subscription and waits for any
// in-flight cycle to finish, so no write can start after it returns. The
// movement baseline is reset as part of teardown.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop, done, sub := r.stop, r.done, r.sub
	r.sub = nil
	r.mu.Unlock()

	close(stop)
	sub.Stop()
	<-done

	r.mu.Lock()
	r.latest = nil
	r.prev = nil
	r.mu.Unlock()
}

func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reporter) noteSample(c models.Coordinate) {
	r.mu.Lock()
	r.latest = &c
	hook := r.onSample
	r.mu.Unlock()
	if hook != nil {
		hook(c)
	}
}

func (r *Reporter) loop(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			r.ReportOnce(ctx)
			cancel()
		}
	}
}

// ReportOnce runs a single reporting cycle against the most recent sample.
func (r *Reporter) ReportOnce(ctx context.Context) {
	r.mu.Lock()
	latest, prev := r.latest, r.prev
	r.mu.Unlock()

	if latest == nil {
		return
	}
	if prev != nil && !geo.MovedAtLeast(prev.Lat, prev.Lng, latest.Lat, latest.Lng, r.minMove) {
		observability.LocationWritesSuppressed.Inc()
		return
	}
	if err := r.backend.UpdateLocation(ctx, r.riderID, *latest); err != nil {
		observability.LocationWriteFailures.Inc()
		r.logger.Warn("location report failed", "error", err)
		return
	}
	observability.LocationWritesTotal.Inc()

	// Stop waits for the in-flight cycle before resetting the baseline, so
	// this cannot clobber a teardown.
	r.mu.Lock()
	r.prev = latest
	r.mu.Unlock()
}
