package models

// OrderStatus is the backend's order lifecycle field. The agent only ever
// requests forward transitions; CANCELLED can be reached out-of-band by
// dispatch or the customer and is reconciled on the next refresh.
type OrderStatus string

const (
	StatusOfferedToRider OrderStatus = "OFFERED_TO_RIDER"
	StatusRiderAssigned  OrderStatus = "RIDER_ASSIGNED"
	StatusPickedUp       OrderStatus = "PICKED_UP"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

// LiveStatuses are the buckets polled for the active view, in poll order.
func LiveStatuses() []OrderStatus {
	return []OrderStatus{StatusOfferedToRider, StatusRiderAssigned, StatusPickedUp, StatusOutForDelivery}
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) IsLive() bool {
	switch s {
	case StatusOfferedToRider, StatusRiderAssigned, StatusPickedUp, StatusOutForDelivery:
		return true
	}
	return false
}

// NextStatus returns the single legal forward edge from s, if any. Rejection
// is not an edge here: a rejected offer simply leaves the rider's view.
func (s OrderStatus) NextStatus() (OrderStatus, bool) {
	switch s {
	case StatusOfferedToRider:
		return StatusRiderAssigned, true
	case StatusRiderAssigned:
		return StatusPickedUp, true
	case StatusPickedUp:
		return StatusOutForDelivery, true
	case StatusOutForDelivery:
		return StatusDelivered, true
	}
	return "", false
}

// CanTransition reports whether the rider client may request from -> to.
func CanTransition(from, to OrderStatus) bool {
	next, ok := from.NextStatus()
	return ok && next == to
}
