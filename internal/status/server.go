// Package status is the agent's local HTTP surface: health, metrics, a state
// snapshot, and action routes standing in for the rider UI.
package status

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/rider-agent/internal/agent"
	"github.com/example/rider-agent/internal/api"
	"github.com/example/rider-agent/internal/availability"
	"github.com/example/rider-agent/internal/geo"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/orders"
)

type Server struct {
	agent  *agent.Agent
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(a *agent.Agent, logger *slog.Logger) *Server {
	s := &Server{agent: a, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.mux.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.mux.HandleFunc("/availability/toggle", s.handleToggle).Methods("POST")
	s.mux.HandleFunc("/logout", s.handleLogout).Methods("POST")
	s.mux.HandleFunc("/orders", s.handleOrders).Methods("GET")
	s.mux.HandleFunc("/orders/completed", s.handleCompleted).Methods("GET")
	s.mux.HandleFunc("/orders/refresh", s.handleRefresh).Methods("POST")
	s.mux.HandleFunc("/orders/{id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/orders/{id}/reject", s.handleReject).Methods("POST")
	s.mux.HandleFunc("/orders/{id}/status", s.handleAdvance).Methods("PUT")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.agent.Availability()
	writeJSON(w, http.StatusOK, map[string]any{
		"rider":        s.agent.Session(),
		"availability": snap,
		"activeOrders": len(s.agent.Orders().Active()),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Toggle(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Availability())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Logout(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.agent.Orders().Active()})
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Orders().EnsureCompleted(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.agent.Orders().Completed()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Orders().RefreshActive(r.Context(), true); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.agent.Orders().Active()})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.agent.Actions().Accept(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orderId": id})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agent.Actions().Reject(r.Context(), id, body.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orderId": id})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Status models.OrderStatus `json:"status"`
		OTP    string             `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agent.Actions().Advance(r.Context(), id, body.Status, body.OTP); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orderId": id, "status": body.Status})
}

// writeError maps the coordinator error taxonomy onto local HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway // default: upstream/network failure
	switch {
	case errors.Is(err, agent.ErrHasActiveOrders),
		errors.Is(err, availability.ErrBusy),
		errors.Is(err, orders.ErrActionInFlight),
		api.IsConflict(err):
		code = http.StatusConflict
	case errors.Is(err, orders.ErrOTPMismatch),
		errors.Is(err, orders.ErrReasonRequired),
		errors.Is(err, orders.ErrIllegalTransition),
		api.IsValidation(err):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrUnknownOrder):
		code = http.StatusNotFound
	case errors.Is(err, geo.ErrPermissionDenied):
		code = http.StatusForbidden
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
