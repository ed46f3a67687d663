package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/example/rider-agent/internal/logging"
	"github.com/example/rider-agent/internal/models"
)

// fakeFetcher serves canned bucket responses and can fail single buckets.
type fakeFetcher struct {
	mu      sync.Mutex
	buckets map[models.OrderStatus][]models.Order
	fail    map[models.OrderStatus]error
	calls   map[models.OrderStatus]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		buckets: make(map[models.OrderStatus][]models.Order),
		fail:    make(map[models.OrderStatus]error),
		calls:   make(map[models.OrderStatus]int),
	}
}

func (f *fakeFetcher) OrdersByStatus(ctx context.Context, riderID string, status models.OrderStatus) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[status]++
	if err := f.fail[status]; err != nil {
		return nil, err
	}
	return f.buckets[status], nil
}

func (f *fakeFetcher) set(status models.OrderStatus, orders ...models.Order) {
	f.mu.Lock()
	f.buckets[status] = orders
	f.mu.Unlock()
}

func (f *fakeFetcher) failBucket(status models.OrderStatus, err error) {
	f.mu.Lock()
	f.fail[status] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) callCount(status models.OrderStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[status]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func order(id string, status models.OrderStatus, created time.Time) models.Order {
	return models.Order{OrderID: id, Status: status, CreatedAt: created}
}

func alwaysOnline() bool  { return true }
func alwaysOffline() bool { return false }

func newTestSync(f *fakeFetcher, online func() bool) *Synchronizer {
	return NewSynchronizer("r1", f, online, time.Hour, logging.NewWithWriter("error", io.Discard))
}

func TestRefreshActiveMergesBuckets(t *testing.T) {
	f := newFakeFetcher()
	now := time.Now()
	f.set(models.StatusOfferedToRider, order("o1", models.StatusOfferedToRider, now))
	f.set(models.StatusPickedUp, order("o2", models.StatusPickedUp, now.Add(-time.Minute)))

	s := newTestSync(f, alwaysOnline)
	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	active := s.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 active orders, got %d", len(active))
	}
	// oldest first
	if active[0].OrderID != "o2" || active[1].OrderID != "o1" {
		t.Fatalf("wrong order: %v %v", active[0].OrderID, active[1].OrderID)
	}
	for _, st := range models.LiveStatuses() {
		if f.callCount(st) != 1 {
			t.Fatalf("bucket %s fetched %d times", st, f.callCount(st))
		}
	}
}

func TestRefreshActiveIsAllOrNothing(t *testing.T) {
	f := newFakeFetcher()
	now := time.Now()
	f.set(models.StatusPickedUp, order("o1", models.StatusPickedUp, now))
	f.set(models.StatusOutForDelivery, order("o2", models.StatusOutForDelivery, now))

	s := newTestSync(f, alwaysOnline)
	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}
	before := s.Active()

	f.set(models.StatusPickedUp, order("o1", models.StatusPickedUp, now), order("o3", models.StatusPickedUp, now))
	f.failBucket(models.StatusOutForDelivery, errors.New("bucket down"))

	if err := s.RefreshActive(context.Background(), false); err == nil {
		t.Fatal("a failing bucket must fail the whole refresh")
	}
	after := s.Active()
	if len(after) != len(before) {
		t.Fatalf("collection changed on failed refresh: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].OrderID != before[i].OrderID || after[i].Status != before[i].Status {
			t.Fatalf("collection mutated on failed refresh: %+v vs %+v", before[i], after[i])
		}
	}
}

func TestRefreshActiveSkippedWhileOffline(t *testing.T) {
	f := newFakeFetcher()
	s := newTestSync(f, alwaysOffline)

	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("offline refresh should be a no-op, got %v", err)
	}
	if f.totalCalls() != 0 {
		t.Fatal("no fetches may happen while offline and unforced")
	}

	if err := s.RefreshActive(context.Background(), true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if f.totalCalls() != len(models.LiveStatuses()) {
		t.Fatalf("forced refresh must fetch every bucket, got %d calls", f.totalCalls())
	}
}

func TestOrderLeavingBucketsDisappearsOnNextPoll(t *testing.T) {
	f := newFakeFetcher()
	now := time.Now()
	f.set(models.StatusOfferedToRider, order("o1", models.StatusOfferedToRider, now))

	s := newTestSync(f, alwaysOnline)
	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(s.Active()) != 1 {
		t.Fatal("expected one active order")
	}

	// cancelled out-of-band: the order leaves every polled bucket
	f.set(models.StatusOfferedToRider)
	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(s.Active()) != 0 {
		t.Fatal("order must disappear once absent from every bucket")
	}
}

func TestCompletedFetchedOnDemandOnly(t *testing.T) {
	f := newFakeFetcher()
	f.set(models.StatusDelivered, order("d1", models.StatusDelivered, time.Now()))
	s := newTestSync(f, alwaysOnline)

	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.callCount(models.StatusDelivered) != 0 {
		t.Fatal("the delivered bucket is never part of the active poll")
	}

	if err := s.EnsureCompleted(context.Background()); err != nil {
		t.Fatalf("ensure completed: %v", err)
	}
	if err := s.EnsureCompleted(context.Background()); err != nil {
		t.Fatalf("ensure completed: %v", err)
	}
	if f.callCount(models.StatusDelivered) != 1 {
		t.Fatalf("completed view should be fetched once per session, got %d", f.callCount(models.StatusDelivered))
	}
	if got := s.Completed(); len(got) != 1 || got[0].OrderID != "d1" {
		t.Fatalf("unexpected completed view: %+v", got)
	}
}

func TestHasActive(t *testing.T) {
	f := newFakeFetcher()
	s := newTestSync(f, alwaysOnline)
	if s.HasActive() {
		t.Fatal("empty collection has no active orders")
	}
	f.set(models.StatusOutForDelivery, order("o1", models.StatusOutForDelivery, time.Now()))
	if err := s.RefreshActive(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !s.HasActive() {
		t.Fatal("expected an active order")
	}
}
