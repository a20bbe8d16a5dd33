package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/catalog"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/seats"
	"github.com/cx-tal-miterani/train-booking-system/internal/service"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
	validate       *validator.Validate
	log            *logger.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(bookingService service.BookingService, log *logger.Logger) *Handler {
	return &Handler{
		bookingService: bookingService,
		validate:       validator.New(),
		log:            log,
	}
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

type scheduleQuery struct {
	Origin      string `validate:"required"`
	Destination string `validate:"required,nefield=Origin"`
	Date        string `validate:"required,datetime=2006-01-02"`
}

type selectScheduleRequest struct {
	ScheduleID string `json:"scheduleId" validate:"required"`
}

type stepRequest struct {
	Step models.Step `json:"step" validate:"required"`
}

type seatsRequest struct {
	Changes []seats.Change `json:"changes" validate:"required,min=1"`
}

type countsRequest struct {
	Adults   int `json:"adults" validate:"min=1"`
	Children int `json:"children" validate:"min=0"`
	Infants  int `json:"infants" validate:"min=0"`
}

// Response helpers
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.log.WithError(err).Warn("Failed to encode response")
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}

// respondErr maps the error taxonomy onto status codes.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsValidation(err):
		h.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Fields: apperr.Fields(err)})
	case apperr.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err.Error())
	case apperr.IsConflict(err), errors.Is(err, catalog.ErrSuperseded), errors.Is(err, booking.ErrStaleSnapshot):
		h.respondError(w, http.StatusConflict, err.Error())
	case apperr.IsTransport(err):
		h.respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.WithError(err).Error("Request failed")
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON body into dst and checks its validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, v interface{}) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.respondErr(w, err)
		return false
	}
	fields := make([]apperr.FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = apperr.Field(fe.Field(), "failed %s validation", fe.Tag())
	}
	h.respondErr(w, apperr.Validation(err, fields...))
	return false
}

func (h *Handler) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Passenger index must be a number")
		return 0, false
	}
	return index, true
}

// ListStations handles GET /api/stations
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.bookingService.ListStations(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stations)
}

// FindSchedules handles GET /api/schedules?origin=&destination=&date=
func (h *Handler) FindSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq := scheduleQuery{Origin: q.Get("origin"), Destination: q.Get("destination"), Date: q.Get("date")}
	if !h.check(w, sq) {
		return
	}
	schedules, err := h.bookingService.FindSchedules(r.Context(), catalog.Query(sq))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, schedules)
}

// ListTickets handles GET /api/tickets
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.bookingService.ListTickets(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tickets)
}

// SeatOccupancy handles GET /api/schedules/{id}/occupancy
func (h *Handler) SeatOccupancy(w http.ResponseWriter, r *http.Request) {
	occupied, err := h.bookingService.SeatOccupancy(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"occupied": occupied})
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.bookingService.CreateSession(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, view)
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.bookingService.GetSession(r.Context(), mux.Vars(r)["id"]))
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.bookingService.DeleteSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondView(w http.ResponseWriter) func(*service.SessionView, error) {
	return func(view *service.SessionView, err error) {
		if err != nil {
			h.respondErr(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, view)
	}
}

// UpdateCriteria handles PATCH /api/sessions/{id}/criteria
func (h *Handler) UpdateCriteria(w http.ResponseWriter, r *http.Request) {
	var patch booking.CriteriaPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondView(w)(h.bookingService.UpdateCriteria(r.Context(), mux.Vars(r)["id"], patch))
}

// Search handles POST /api/sessions/{id}/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.bookingService.Search(r.Context(), mux.Vars(r)["id"]))
}

// SelectSchedule handles POST /api/sessions/{id}/schedule
func (h *Handler) SelectSchedule(w http.ResponseWriter, r *http.Request) {
	var req selectScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w)(h.bookingService.SelectSchedule(r.Context(), mux.Vars(r)["id"], req.ScheduleID))
}

// UpdatePassenger handles PATCH /api/sessions/{id}/passengers/{index}
func (h *Handler) UpdatePassenger(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r)
	if !ok {
		return
	}
	var patch booking.PassengerPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondView(w)(h.bookingService.UpdatePassenger(r.Context(), mux.Vars(r)["id"], index, patch))
}

// ResizePassengers handles PUT /api/sessions/{id}/passengers/count
func (h *Handler) ResizePassengers(w http.ResponseWriter, r *http.Request) {
	var req countsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w)(h.bookingService.ResizePassengers(r.Context(), mux.Vars(r)["id"], models.PassengerCounts(req)))
}

// PickSeats handles POST /api/sessions/{id}/seats
func (h *Handler) PickSeats(w http.ResponseWriter, r *http.Request) {
	var req seatsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w)(h.bookingService.PickSeats(r.Context(), mux.Vars(r)["id"], req.Changes))
}

// ClearSeat handles DELETE /api/sessions/{id}/seats/{index}
func (h *Handler) ClearSeat(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r)
	if !ok {
		return
	}
	h.respondView(w)(h.bookingService.ClearSeat(r.Context(), mux.Vars(r)["id"], index))
}

// SeatMap handles GET /api/sessions/{id}/seatmap
func (h *Handler) SeatMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.bookingService.SeatMap(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, m)
}

// UpdateContact handles PATCH /api/sessions/{id}/contact
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var patch booking.ContactPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.respondView(w)(h.bookingService.UpdateContact(r.Context(), mux.Vars(r)["id"], patch))
}

// Advance handles POST /api/sessions/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w)(h.bookingService.Advance(r.Context(), mux.Vars(r)["id"], req.Step))
}

// GoBack handles POST /api/sessions/{id}/back
func (h *Handler) GoBack(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w)(h.bookingService.GoBack(r.Context(), mux.Vars(r)["id"], req.Step))
}

// Reset handles POST /api/sessions/{id}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.bookingService.Reset(r.Context(), mux.Vars(r)["id"]))
}

// SubmitOrder handles POST /api/sessions/{id}/order
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.bookingService.SubmitOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, view)
}

// PaymentStatus handles GET /api/sessions/{id}/payment
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.bookingService.PaymentStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// Ticket handles GET /api/sessions/{id}/ticket.pdf
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pdf, err := h.bookingService.Ticket(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ticket-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.log.WithSession(id).WithError(err).Warn("Failed to write ticket")
	}
}

// PaymentCallback handles POST /api/payments/{orderId}/callback
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderID := mux.Vars(r)["orderId"]
	if err := h.bookingService.PaymentCallback(r.Context(), orderID, req.PaymentCode); err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"orderId": orderID, "message": "Payment submitted"})
}

// CancelPayment handles DELETE /api/payments/{orderId}
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.bookingService.CancelPayment(r.Context(), mux.Vars(r)["orderId"]); err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
