package router

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/train-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/websocket"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *handlers.Handler, hub *websocket.Hub, log *logger.Logger, allowedOrigins []string) *mux.Router {
	r := mux.NewRouter()

	r.Use(loggingMiddleware(log))
	r.Use(corsMiddleware(allowedOrigins))

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Catalog
	api.HandleFunc("/stations", h.ListStations).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/schedules", h.FindSchedules).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/tickets", h.ListTickets).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/schedules/{id}/occupancy", h.SeatOccupancy).Methods(http.MethodGet, http.MethodOptions)

	// Sessions
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/criteria", h.UpdateCriteria).Methods(http.MethodPatch, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/search", h.Search).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/schedule", h.SelectSchedule).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/passengers/count", h.ResizePassengers).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/passengers/{index}", h.UpdatePassenger).Methods(http.MethodPatch, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/seats", h.PickSeats).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/seats/{index}", h.ClearSeat).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/seatmap", h.SeatMap).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/contact", h.UpdateContact).Methods(http.MethodPatch, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/advance", h.Advance).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/back", h.GoBack).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/reset", h.Reset).Methods(http.MethodPost, http.MethodOptions)

	// Orders
	api.HandleFunc("/sessions/{id}/order", h.SubmitOrder).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/payment", h.PaymentStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/ticket.pdf", h.Ticket).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/payments/{orderId}/callback", h.PaymentCallback).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/payments/{orderId}", h.CancelPayment).Methods(http.MethodDelete, http.MethodOptions)

	// WebSocket for real-time seat updates
	api.HandleFunc("/schedules/{id}/ws", hub.HandleWebSocket).Methods(http.MethodGet)

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	return r
}

func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	anyOrigin := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case anyOrigin:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case set[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures what a handler wrote for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			log.LogHTTPRequest(r, rec.status, rec.size, time.Since(start))
		})
	}
}
