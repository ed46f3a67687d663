package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/rider-agent/internal/api"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/observability"
)

var (
	// ErrActionInFlight means another action for the same order has not
	// resolved yet; duplicate submissions must not reach the backend.
	ErrActionInFlight = errors.New("action already in flight for this order")

	// ErrOTPMismatch means the entered code does not match the order's
	// stored delivery code. The transition request is never sent.
	ErrOTPMismatch = errors.New("delivery OTP does not match")

	ErrReasonRequired    = errors.New("rejection reason is required")
	ErrUnknownOrder      = errors.New("order not in the active collection")
	ErrIllegalTransition = errors.New("transition not allowed from current status")
)

// ActionBackend is the write slice of the backend the dispatcher needs.
type ActionBackend interface {
	AcceptOrder(ctx context.Context, riderID, orderID string) error
	RejectOrder(ctx context.Context, riderID, orderID, reason string) error
	UpdateOrderStatus(ctx context.Context, riderID, orderID string, status models.OrderStatus, otp string) error
}

// Dispatcher serializes user-initiated transitions per order. The cached
// status is never updated optimistically: the backend is authoritative and a
// failed write must not desync the view, so every success is followed by a
// forced refresh instead of a local patch.
type Dispatcher struct {
	riderID string
	backend ActionBackend
	sync    *Synchronizer
	logger  *slog.Logger

	guard    sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(riderID string, backend ActionBackend, sync *Synchronizer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		riderID:  riderID,
		backend:  backend,
		sync:     sync,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Accept takes an offered order. Exactly one forward edge:
// OFFERED_TO_RIDER -> RIDER_ASSIGNED.
func (d *Dispatcher) Accept(ctx context.Context, orderID string) error {
	return d.run(ctx, "accept", orderID, func(o models.Order) error {
		if o.Status != models.StatusOfferedToRider {
			return fmt.Errorf("%w: %s", ErrIllegalTransition, o.Status)
		}
		return d.backend.AcceptOrder(ctx, d.riderID, orderID)
	})
}

// Reject declines an offered order. A reason is always required; the backend
// validates it and the dispatcher enforces it up front.
func (d *Dispatcher) Reject(ctx context.Context, orderID, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	return d.run(ctx, "reject", orderID, func(o models.Order) error {
		if o.Status != models.StatusOfferedToRider {
			return fmt.Errorf("%w: %s", ErrIllegalTransition, o.Status)
		}
		return d.backend.RejectOrder(ctx, d.riderID, orderID, reason)
	})
}

// Advance requests the next forward transition for the order. Marking
// DELIVERED requires the entered OTP to match the order's stored code before
// any network call is made.
func (d *Dispatcher) Advance(ctx context.Context, orderID string, next models.OrderStatus, otp string) error {
	return d.run(ctx, "advance", orderID, func(o models.Order) error {
		if !models.CanTransition(o.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, next)
		}
		sentOTP := ""
		if next == models.StatusDelivered && o.DeliveryOTP != nil {
			if otp != *o.DeliveryOTP {
				return ErrOTPMismatch
			}
			sentOTP = otp
		}
		if err := d.backend.UpdateOrderStatus(ctx, d.riderID, orderID, next, sentOTP); err != nil {
			return err
		}
		if next == models.StatusDelivered {
			if err := d.sync.RefreshCompleted(ctx); err != nil {
				d.logger.Warn("completed refresh after delivery failed", "error", err)
			}
		}
		return nil
	})
}

func (d *Dispatcher) run(ctx context.Context, action, orderID string, fn func(models.Order) error) error {
	if err := d.acquire(orderID); err != nil {
		return err
	}
	defer d.release(orderID)

	o, ok := d.sync.Get(orderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	err := fn(o)
	switch {
	case err == nil:
		observability.OrderActionsTotal.WithLabelValues(action, "ok").Inc()
		if rerr := d.sync.RefreshActive(ctx, true); rerr != nil {
			d.logger.Warn("refresh after action failed", "action", action, "error", rerr)
		}
		return nil
	case api.IsConflict(err):
		// The order changed server-side (taken by another rider, cancelled).
		// Reconcile to the server's view instead of retrying the stale action.
		observability.OrderActionsTotal.WithLabelValues(action, "conflict").Inc()
		if rerr := d.sync.RefreshActive(ctx, true); rerr != nil {
			d.logger.Warn("refresh after conflict failed", "action", action, "error", rerr)
		}
		return err
	default:
		observability.OrderActionsTotal.WithLabelValues(action, "error").Inc()
		return err
	}
}

func (d *Dispatcher) acquire(orderID string) error {
	d.guard.Lock()
	defer d.guard.Unlock()
	if _, busy := d.inFlight[orderID]; busy {
		return ErrActionInFlight
	}
	d.inFlight[orderID] = struct{}{}
	return nil
}

func (d *Dispatcher) release(orderID string) {
	d.guard.Lock()
	delete(d.inFlight, orderID)
	d.guard.Unlock()
}
