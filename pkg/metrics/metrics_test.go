package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveCall("block_count", "ok", 20*time.Millisecond)
	m.ObserveCall("block_count", "ok", 10*time.Millisecond)
	m.ConnectAttempt(false)
	m.SetConnected(true)
	m.PushDropped("unknown_topic")
	m.SetSubscriptions(3)
	m.Published("confirmation", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("block_count", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnects.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSPushDropped.WithLabelValues("unknown_topic")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WSSubscriptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgePublished.WithLabelValues("confirmation", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall("x", "ok", time.Second)
		m.FrameReceived("push")
		m.FrameMalformed()
		m.AckOutcome("subscribe", "timeout")
	})
}
