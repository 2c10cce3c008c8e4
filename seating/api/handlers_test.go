package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	resttransport "github.com/akriventsev/theater/framework/adapters/transport"
	"github.com/akriventsev/theater/framework/cqrs"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/eventsourcing"
	"github.com/akriventsev/theater/framework/transport"
	"github.com/akriventsev/theater/seating/application"
	"github.com/akriventsev/theater/seating/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// brokerDown имитирует недоступный брокер
type brokerDown struct{}

func (brokerDown) Publish(ctx context.Context, event events.Event) error {
	return errors.New("broker unavailable")
}

func newServer(t *testing.T, policy domain.ReservationPolicy) *resttransport.RESTAdapter {
	t.Helper()
	return newServerWithPublisher(t, policy, nil)
}

func newServerWithPublisher(t *testing.T, policy domain.ReservationPolicy, publisher events.EventPublisher) *resttransport.RESTAdapter {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := eventsourcing.NewInMemoryEventStore(eventsourcing.DefaultInMemoryEventStoreConfig())
	handler := domain.NewCommandHandler(
		domain.WithSeatIDPolicy(domain.RowMajorSeatID{SeatsPerRow: 20}),
		domain.WithReservationPolicy(policy),
	)
	service := application.NewSeatingService(store, publisher, handler, application.WithLogger(logger))

	validate := validator.New()
	commands := transport.NewInMemoryCommandBus().
		WithMiddleware(cqrs.RecoveryCommandMiddleware(logger)).
		WithMiddleware(cqrs.ValidationCommandMiddleware(validate))
	queries := transport.NewInMemoryQueryBus().
		WithMiddleware(cqrs.ValidationQueryMiddleware(validate))
	require.NoError(t, application.Register(service, commands, queries))

	config := resttransport.DefaultRESTConfig()
	config.EnableMetrics = false
	rest := resttransport.NewRESTAdapter(config, nil, logger)
	NewHandlers(commands, queries).Register(rest.API())
	return rest
}

func do(t *testing.T, rest *resttransport.RESTAdapter, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rest.Engine().ServeHTTP(w, req)
	return w
}

func TestReserve_Created(t *testing.T) {
	rest := newServer(t, domain.Unconditional)

	w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", `{"number":3,"row":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		TheaterID string `json:"theater_id"`
		Version   int64  `json:"version"`
		Published bool   `json:"published"`
		Events    []struct {
			Type   string `json:"type"`
			SeatID uint32 `json:"seat_id"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "hall-1", body.TheaterID)
	assert.Equal(t, int64(1), body.Version)
	assert.True(t, body.Published)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "seat.reserved", body.Events[0].Type)
	assert.Equal(t, uint32(43), body.Events[0].SeatID)
}

func TestReserve_StoredButNotPublished(t *testing.T) {
	rest := newServerWithPublisher(t, domain.Unconditional, brokerDown{})

	w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", `{"number":2,"row":1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		TheaterID string `json:"theater_id"`
		Version   int64  `json:"version"`
		Published bool   `json:"published"`
		Events    []struct {
			SeatID uint32 `json:"seat_id"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Published)
	assert.Equal(t, int64(1), body.Version)
	require.Len(t, body.Events, 1)
	assert.Equal(t, uint32(22), body.Events[0].SeatID)

	w = do(t, rest, http.MethodGet, "/api/v1/theaters/hall-1/seats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view application.SeatMapView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []uint32{22}, view.ReservedSeats)
}

func TestReserve_BadRequest(t *testing.T) {
	rest := newServer(t, domain.Unconditional)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"number":`},
		{"missing row", `{"number":1}`},
		{"negative", `{"number":-1,"row":0}`},
		{"out of range", `{"number":20,"row":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestReserve_DuplicateConflict(t *testing.T) {
	rest := newServer(t, domain.RejectDuplicates)

	w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", `{"number":0,"row":0}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", `{"number":0,"row":0}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body resttransport.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Code)
}

func TestQueries(t *testing.T) {
	rest := newServer(t, domain.Unconditional)

	for _, body := range []string{`{"number":5,"row":0}`, `{"number":1,"row":1}`} {
		w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, rest, http.MethodGet, "/api/v1/theaters/hall-1/seats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view application.SeatMapView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, int64(2), view.Version)
	assert.Equal(t, []uint32{5, 21}, view.ReservedSeats)

	w = do(t, rest, http.MethodGet, "/api/v1/theaters/hall-1/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []application.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, uint32(5), history[0].SeatID)

	w = do(t, rest, http.MethodGet, "/api/v1/events?from=2&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].Position)

	w = do(t, rest, http.MethodGet, "/api/v1/events?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeed_LimitBounds(t *testing.T) {
	rest := newServer(t, domain.Unconditional)

	w := do(t, rest, http.MethodPost, "/api/v1/theaters/hall-1/reservations", `{"number":0,"row":0}`)
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"default", "", http.StatusOK},
		{"max", "?limit=1000", http.StatusOK},
		{"zero", "?limit=0", http.StatusBadRequest},
		{"negative", "?limit=-1", http.StatusBadRequest},
		{"above max", "?limit=1001", http.StatusBadRequest},
		{"negative from", "?from=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, rest, http.MethodGet, "/api/v1/events"+tt.query, "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusBadRequest {
				return
			}
			var body resttransport.ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "VALIDATION_FAILED", body.Code)
		})
	}
}
