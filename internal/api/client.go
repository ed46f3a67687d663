// Package api is the HTTP client for the rider backend. The backend is the
// source of truth for rider availability and order state; every method here
// is a read of a snapshot or a request for a transition, never a local edit.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/example/rider-agent/internal/models"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// CheckLogin asks the backend whether the phone belongs to an approved rider
// and returns the session identity if it does.
func (c *Client) CheckLogin(ctx context.Context, phone string) (models.Session, error) {
	var out struct {
		Status   string `json:"status"`
		CanLogin bool   `json:"canLogin"`
		RiderID  string `json:"riderId"`
		Name     string `json:"name"`
		Reason   string `json:"reason"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/riders/login/check", map[string]any{"phone": phone}, &out)
	if err != nil {
		return models.Session{}, err
	}
	if !out.CanLogin {
		return models.Session{}, &StatusError{Code: http.StatusForbidden, Message: out.Reason}
	}
	return models.Session{RiderID: out.RiderID, Phone: phone, Name: out.Name}, nil
}

// SetAvailability performs the single authoritative online/offline write.
// coord may be nil only on the offline edge.
func (c *Client) SetAvailability(ctx context.Context, riderID string, active bool, coord *models.Coordinate) error {
	body := map[string]any{"riderId": riderID, "isActive": active}
	if coord != nil {
		body["lat"] = coord.Lat
		body["lng"] = coord.Lng
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/riders/%s/availability", url.PathEscape(riderID)), body, nil)
}

// UpdateLocation pushes one periodic position report.
func (c *Client) UpdateLocation(ctx context.Context, riderID string, coord models.Coordinate) error {
	body := map[string]any{
		"riderId":    riderID,
		"lat":        coord.Lat,
		"lng":        coord.Lng,
		"speedKmh":   coord.SpeedKmh,
		"headingDeg": coord.HeadingDeg,
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/riders/%s/location", url.PathEscape(riderID)), body, nil)
}

// OrdersByStatus fetches one lifecycle bucket.
func (c *Client) OrdersByStatus(ctx context.Context, riderID string, status models.OrderStatus) ([]models.Order, error) {
	var out struct {
		Orders []models.Order `json:"orders"`
		Total  int            `json:"total"`
	}
	path := fmt.Sprintf("/api/v1/riders/%s/orders?status=%s", url.PathEscape(riderID), url.QueryEscape(string(status)))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) AcceptOrder(ctx context.Context, riderID, orderID string) error {
	path := fmt.Sprintf("/api/v1/riders/%s/orders/%s/accept", url.PathEscape(riderID), url.PathEscape(orderID))
	return c.do(ctx, http.MethodPost, path, map[string]any{}, nil)
}

func (c *Client) RejectOrder(ctx context.Context, riderID, orderID, reason string) error {
	path := fmt.Sprintf("/api/v1/riders/%s/orders/%s/reject", url.PathEscape(riderID), url.PathEscape(orderID))
	return c.do(ctx, http.MethodPost, path, map[string]any{"reason": reason}, nil)
}

// UpdateOrderStatus requests one forward transition. otp travels only on the
// delivered edge and only after the client-side match has passed.
func (c *Client) UpdateOrderStatus(ctx context.Context, riderID, orderID string, status models.OrderStatus, otp string) error {
	body := map[string]any{"status": string(status)}
	if otp != "" {
		body["otp"] = otp
	}
	path := fmt.Sprintf("/api/v1/riders/%s/orders/%s/status", url.PathEscape(riderID), url.PathEscape(orderID))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Error
		if msg == "" {
			msg = errBody.Message
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
