package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) PingFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("postgres", ok)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.0.0", response.Version)
	require.Len(t, response.Checks, 1)
	require.True(t, response.Checks["postgres"].Critical)
}

func TestHealthHandler_CriticalFailure(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("postgres", failing("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "connection refused", response.Checks["postgres"].Message)
}

func TestHealthHandler_OptionalFailureDegrades(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("postgres", ok)
	handler.RegisterOptional("kafka", failing("no brokers"))

	response := handler.Evaluate(context.Background())

	require.Equal(t, StatusDegraded, response.Status)
	require.Equal(t, StatusDegraded, response.Checks["kafka"].Status)
	require.Equal(t, StatusHealthy, response.Checks["postgres"].Status)
}

func TestEvaluateAppliesTimeout(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.SetTimeout(20 * time.Millisecond)
	handler.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	response := handler.Evaluate(context.Background())

	require.Equal(t, StatusUnhealthy, response.Status)
	require.Contains(t, response.Checks["slow"].Message, "deadline exceeded")
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		register func(h *Handler)
		wantCode int
		wantBody string
	}{
		{
			name:     "no checks",
			register: func(*Handler) {},
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name:     "critical check fails",
			register: func(h *Handler) { h.Register("postgres", failing("down")) },
			wantCode: http.StatusServiceUnavailable,
			wantBody: "not ready",
		},
		{
			name:     "optional check fails",
			register: func(h *Handler) { h.RegisterOptional("kafka", failing("down")) },
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			tt.register(handler)

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}
