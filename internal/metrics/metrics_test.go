package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReservation("confirmed", 10*time.Millisecond)
	m.ObserveReservation("confirmed", 20*time.Millisecond)
	m.ObserveReservation("lost", time.Millisecond)
	m.ObserveCompensation(nil)
	m.ObserveCompensation(errors.New("boom"))
	m.ObserveSlotWrite("create", nil)
	m.ObservePublish(errors.New("down"))
	m.ObserveRPC("/tutorly.v1.ReservationService/ReserveSlot", "OK", time.Millisecond)
	m.ObserveRateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reservations.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotWrites.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesPublished.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("/tutorly.v1.ReservationService/ReserveSlot", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveReservation("failed", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `tutorly_reservations_total{state="failed"} 1`))
}
