package models

import "time"

// Coordinate is a single position fix. The agent never persists these beyond
// the one "last known" slot held by the availability controller.
type Coordinate struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   float64   `json:"speed_kmh"`
	HeadingDeg float64   `json:"heading_deg"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Session identifies the authenticated rider for the lifetime of a login.
type Session struct {
	RiderID string `json:"rider_id"`
	Phone   string `json:"phone"`
	Name    string `json:"name"`
}

type OrderItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is a server-owned snapshot. The agent never originates one; it only
// reads snapshots and requests transitions. Fields the backend may omit are
// pointers so "not yet known" stays distinguishable from "known empty".
type Order struct {
	OrderID         string      `json:"orderId"`
	Status          OrderStatus `json:"status"`
	CustomerPhone   string      `json:"customerPhone"`
	RestaurantID    string      `json:"restaurantId"`
	RestaurantName  string      `json:"restaurantName"`
	Items           []OrderItem `json:"items"`
	DeliveryFee     float64     `json:"deliveryFee"`
	GrandTotal      float64     `json:"grandTotal"`
	DeliveryAddress string      `json:"deliveryAddress"`
	PickupAddress   *string     `json:"pickupAddress,omitempty"`
	PickupLat       *float64    `json:"pickupLat,omitempty"`
	PickupLng       *float64    `json:"pickupLng,omitempty"`
	DeliveryLat     *float64    `json:"deliveryLat,omitempty"`
	DeliveryLng     *float64    `json:"deliveryLng,omitempty"`
	DeliveryOTP     *string     `json:"deliveryOtp,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}
