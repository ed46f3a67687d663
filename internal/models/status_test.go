package models

import "testing"

func TestNextStatusEdges(t *testing.T) {
	cases := []struct {
		from OrderStatus
		want OrderStatus
		ok   bool
	}{
		{StatusOfferedToRider, StatusRiderAssigned, true},
		{StatusRiderAssigned, StatusPickedUp, true},
		{StatusPickedUp, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelivered, "", false},
		{StatusCancelled, "", false},
	}
	for _, tc := range cases {
		got, ok := tc.from.NextStatus()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("NextStatus(%s) = %s,%v want %s,%v", tc.from, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCanTransitionNeverSkipsOrReverses(t *testing.T) {
	if CanTransition(StatusRiderAssigned, StatusOutForDelivery) {
		t.Fatal("skipping a state must not be allowed")
	}
	if CanTransition(StatusPickedUp, StatusRiderAssigned) {
		t.Fatal("backward transition must not be allowed")
	}
	if CanTransition(StatusDelivered, StatusDelivered) {
		t.Fatal("terminal states have no outgoing edges")
	}
}

func TestLiveStatuses(t *testing.T) {
	for _, s := range LiveStatuses() {
		if !s.IsLive() || s.IsTerminal() {
			t.Fatalf("%s should be live and non-terminal", s)
		}
	}
	if StatusDelivered.IsLive() || StatusCancelled.IsLive() {
		t.Fatal("terminal states are not live")
	}
}
