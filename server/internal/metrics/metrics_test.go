package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Registry) map[string]*dto.MetricFamily {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/plain")
	r.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rr.Body)
	require.NoError(t, err)
	return mfs
}

func kindValue(mf *dto.MetricFamily, k Kind) float64 {
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "kind" && l.GetValue() == string(k) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestRegistry_SessionGauge(t *testing.T) {
	r := New()
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()

	mfs := scrape(t, r)
	assert.Equal(t, 1.0, mfs[SessionsOpen].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, mfs[SessionsTotal].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, int64(1), r.OpenSessions())
}

func TestRegistry_ByKind(t *testing.T) {
	r := New()
	r.Sent(KindWelcome)
	r.Sent(KindSample)
	r.Sent(KindSample)
	r.SendFailed(KindBroadcast)
	r.Received()
	r.TransportError()

	mfs := scrape(t, r)
	assert.Equal(t, 1.0, kindValue(mfs[MessagesSent], KindWelcome))
	assert.Equal(t, 2.0, kindValue(mfs[MessagesSent], KindSample))
	assert.Equal(t, 0.0, kindValue(mfs[MessagesSent], KindEcho))
	assert.Equal(t, 1.0, kindValue(mfs[SendFailures], KindBroadcast))
	assert.Equal(t, 1.0, mfs[MessagesReceived].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, mfs[TransportErrors].GetMetric()[0].GetCounter().GetValue())
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.SessionOpened()
		r.SessionClosed()
		r.Sent(KindEcho)
		r.SendFailed(KindEcho)
		r.Received()
		r.TransportError()
	})
	assert.Zero(t, r.OpenSessions())
}

func TestRegistry_GatherSorted(t *testing.T) {
	mfs, err := New().Gather()
	require.NoError(t, err)
	for i := 1; i < len(mfs); i++ {
		assert.Less(t, mfs[i-1].GetName(), mfs[i].GetName())
	}
}

func TestRegistry_ExportsEveryKind(t *testing.T) {
	mfs := scrape(t, New())
	for _, name := range []string{MessagesSent, SendFailures} {
		require.Contains(t, mfs, name)
		for _, k := range Kinds {
			assert.Equal(t, 0.0, kindValue(mfs[name], k), "%s{kind=%q}", name, k)
		}
	}
}

func TestRegistry_IncludesRuntimeCollectors(t *testing.T) {
	mfs := scrape(t, New())
	assert.Contains(t, mfs, "go_goroutines")
}

func TestRegistry_SeparateInstances(t *testing.T) {
	a, b := New(), New()
	a.SessionOpened()

	assert.Equal(t, int64(1), a.OpenSessions())
	assert.Zero(t, b.OpenSessions())
}
