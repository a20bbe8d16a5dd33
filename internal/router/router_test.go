package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/train-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/service/mocks"
	"github.com/cx-tal-miterani/train-booking-system/internal/websocket"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

func setup(origins []string) (*mocks.MockBookingService, *bytes.Buffer, http.Handler) {
	svc := new(mocks.MockBookingService)
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")
	r := SetupRouter(handlers.NewHandler(svc, log), websocket.NewHub(log, origins...), log, origins)
	return svc, &buf, r
}

func TestRouter_Health(t *testing.T) {
	_, buf, r := setup(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Empty(t, buf.String())
}

func TestRouter_LogsRequests(t *testing.T) {
	svc, buf, r := setup(nil)
	svc.On("ListStations", mock.Anything).Return([]models.Station{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "/api/stations")
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestRouter_CORS(t *testing.T) {
	_, _, r := setup([]string{"http://app.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_WildcardCORS(t *testing.T) {
	_, _, r := setup(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/stations", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	_, _, r := setup(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
