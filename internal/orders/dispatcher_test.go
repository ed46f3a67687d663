package orders

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/example/rider-agent/internal/api"
	"github.com/example/rider-agent/internal/logging"
	"github.com/example/rider-agent/internal/models"
)

type actionCall struct {
	kind    string
	orderID string
	status  models.OrderStatus
	otp     string
	reason  string
}

type fakeActions struct {
	mu      sync.Mutex
	calls   []actionCall
	fail    error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeActions) record(c actionCall) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeActions) AcceptOrder(ctx context.Context, riderID, orderID string) error {
	return f.record(actionCall{kind: "accept", orderID: orderID})
}

func (f *fakeActions) RejectOrder(ctx context.Context, riderID, orderID, reason string) error {
	return f.record(actionCall{kind: "reject", orderID: orderID, reason: reason})
}

func (f *fakeActions) UpdateOrderStatus(ctx context.Context, riderID, orderID string, status models.OrderStatus, otp string) error {
	return f.record(actionCall{kind: "status", orderID: orderID, status: status, otp: otp})
}

func (f *fakeActions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeActions) lastCall() actionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// seed loads the given orders into the synchronizer via a normal refresh.
func seed(t *testing.T, f *fakeFetcher, s *Synchronizer, orders ...models.Order) {
	t.Helper()
	byStatus := make(map[models.OrderStatus][]models.Order)
	for _, o := range orders {
		byStatus[o.Status] = append(byStatus[o.Status], o)
	}
	for st, os := range byStatus {
		f.set(st, os...)
	}
	if err := s.RefreshActive(context.Background(), true); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}
}

func newTestDispatcher(f *fakeFetcher, a *fakeActions) (*Dispatcher, *Synchronizer) {
	s := newTestSync(f, alwaysOnline)
	d := NewDispatcher("r1", a, s, logging.NewWithWriter("error", io.Discard))
	return d, s
}

func TestAcceptTriggersForcedRefresh(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusOfferedToRider, time.Now()))
	before := f.totalCalls()

	if err := d.Accept(context.Background(), "o1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if a.callCount() != 1 || a.lastCall().kind != "accept" {
		t.Fatalf("expected one accept call, got %+v", a.calls)
	}
	if f.totalCalls() != before+len(models.LiveStatuses()) {
		t.Fatal("a successful action must force an immediate refresh")
	}
}

func TestAcceptIllegalFromAssigned(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusRiderAssigned, time.Now()))

	if err := d.Accept(context.Background(), "o1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if a.callCount() != 0 {
		t.Fatal("illegal transitions never reach the backend")
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusOfferedToRider, time.Now()))

	if err := d.Reject(context.Background(), "o1", ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected reason-required error, got %v", err)
	}
	if a.callCount() != 0 {
		t.Fatal("no backend call without a reason")
	}
	if err := d.Reject(context.Background(), "o1", "too far"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.lastCall().reason != "too far" {
		t.Fatalf("reason not forwarded: %+v", a.lastCall())
	}
}

func TestDeliveredBlockedOnOTPMismatch(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{}
	d, s := newTestDispatcher(f, a)
	otp := "5678"
	o := order("o1", models.StatusOutForDelivery, time.Now())
	o.DeliveryOTP = &otp
	seed(t, f, s, o)

	err := d.Advance(context.Background(), "o1", models.StatusDelivered, "1234")
	if !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected OTP mismatch, got %v", err)
	}
	if a.callCount() != 0 {
		t.Fatal("a mismatched OTP must never produce a network call")
	}

	if err := d.Advance(context.Background(), "o1", models.StatusDelivered, "5678"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	call := a.lastCall()
	if call.status != models.StatusDelivered || call.otp != "5678" {
		t.Fatalf("unexpected status call: %+v", call)
	}
	if f.callCount(models.StatusDelivered) != 1 {
		t.Fatal("delivery must also refresh the completed view")
	}
}

func TestFailedAdvanceLeavesCachedStatus(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{fail: errors.New("network down")}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusPickedUp, time.Now()))

	if err := d.Advance(context.Background(), "o1", models.StatusOutForDelivery, ""); err == nil {
		t.Fatal("expected failure")
	}
	got, ok := s.Get("o1")
	if !ok || got.Status != models.StatusPickedUp {
		t.Fatalf("cached status must stay whatever the last poll returned, got %+v", got)
	}
}

func TestConflictForcesReconcileRefresh(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{fail: &api.StatusError{Code: http.StatusConflict, Message: "already assigned"}}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusOfferedToRider, time.Now()))
	before := f.totalCalls()

	// Another rider took the order; reconcile to the server's view.
	f.set(models.StatusOfferedToRider)
	err := d.Accept(context.Background(), "o1")
	if !api.IsConflict(err) {
		t.Fatalf("expected conflict to propagate, got %v", err)
	}
	if f.totalCalls() != before+len(models.LiveStatuses()) {
		t.Fatal("a conflict must trigger an immediate forced refresh")
	}
	if _, ok := s.Get("o1"); ok {
		t.Fatal("refresh should have dropped the conflicted order")
	}
}

func TestDuplicateSubmissionBlocked(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{entered: make(chan struct{}, 1), release: make(chan struct{})}
	d, s := newTestDispatcher(f, a)
	seed(t, f, s, order("o1", models.StatusOfferedToRider, time.Now()))

	errCh := make(chan error, 1)
	go func() { errCh <- d.Accept(context.Background(), "o1") }()
	<-a.entered // first action is mid-flight

	if err := d.Accept(context.Background(), "o1"); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}

	close(a.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first action should succeed: %v", err)
	}
	if a.callCount() != 1 {
		t.Fatalf("expected exactly one backend call, got %d", a.callCount())
	}
}

func TestUnknownOrder(t *testing.T) {
	f := newFakeFetcher()
	a := &fakeActions{}
	d, _ := newTestDispatcher(f, a)
	if err := d.Accept(context.Background(), "ghost"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected unknown order, got %v", err)
	}
}
