package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/driver"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/resilience"
	"github.com/moffa90/go-visionai/result"
	"github.com/moffa90/go-visionai/transport/sim"
)

const payload = `{"boxes":[[10,10,20,20,90,0],[50,50,10,10,70,2]],"resolution":[240,240]}`

func newTestServer(t *testing.T, opts ...driver.Option) (*Server, *sim.Device, *driver.Driver) {
	t.Helper()
	dev := sim.New()
	clk := clock.NewManual(time.Date(2024, 8, 26, 12, 0, 0, 0, time.UTC))
	d, err := driver.New(dev, append([]driver.Option{driver.WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return New(d, nil), dev, d
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UNINITIALIZED", decode[map[string]string](t, rec)["state"])

	rec = do(t, s, http.MethodPost, "/init")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", decode[map[string]string](t, rec)["state"])
}

func TestInference(t *testing.T) {
	s, dev, _ := newTestServer(t)
	dev.QueueInference(payload)

	rec := do(t, s, http.MethodGet, "/inference/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/inference")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "device not ready", decode[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/init").Code)

	rec = do(t, s, http.MethodPost, "/inference")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Valid      bool               `json:"valid"`
		Detections []result.Detection `json:"detections"`
	}](t, rec)
	assert.True(t, body.Valid)
	assert.Len(t, body.Detections, 2)

	rec = do(t, s, http.MethodGet, "/inference/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBest(t *testing.T) {
	s, dev, _ := newTestServer(t)
	dev.QueueInference(payload)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/init").Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/inference").Code)

	tests := []struct {
		name   string
		query  string
		status int
		score  int
	}{
		{"unfiltered", "", http.StatusOK, 90},
		{"by target", "?target=2", http.StatusOK, 70},
		{"nothing above", "?min_confidence=95", http.StatusNotFound, 0},
		{"bad number", "?min_confidence=high", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/inference/latest/best"+tt.query)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.score, decode[result.Detection](t, rec).Score)
			}
		})
	}
}

func TestSetters(t *testing.T) {
	s, dev, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/init").Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/model/4").Code)
	assert.Equal(t, 4, dev.Model())
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/sensor/3").Code)
	assert.Equal(t, 3, dev.Sensor())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/model/300").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, "/model/abc").Code, "route requires digits")
}

func TestBreakerOpenRetryAfter(t *testing.T) {
	rc, err := resilience.NewRetryConfig(resilience.WithMaxAttempts(1))
	require.NoError(t, err)
	s, dev, _ := newTestServer(t,
		driver.WithRetryConfig(rc),
		driver.WithBreaker(1, 30*time.Second),
		driver.WithReadTimeout(20*time.Millisecond),
	)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/init").Code)

	dev.SetSilent(true)
	rec := do(t, s, http.MethodPost, "/inference")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, s, http.MethodPost, "/inference")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	rec = do(t, s, http.MethodGet, "/breaker")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OPEN", decode[map[string]any](t, rec)["state"])

	rec = do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[driver.Metrics](t, rec)
	assert.Equal(t, uint64(1), m.BreakerRejections)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.New(fault.KindDeviceNotReady, "op", "x"), http.StatusServiceUnavailable},
		{fault.New(fault.KindBreakerOpen, "op", "x"), http.StatusServiceUnavailable},
		{fault.New(fault.KindInvalidArgument, "op", "x"), http.StatusBadRequest},
		{fault.New(fault.KindNoMatch, "op", "x"), http.StatusNotFound},
		{fault.New(fault.KindTimeout, "op", "x"), http.StatusBadGateway},
		{assert.AnError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}
