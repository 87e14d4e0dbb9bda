package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCount(t *testing.T) {
	m := New()
	m.Requests.WithLabelValues("diagnose").Inc()
	m.Requests.WithLabelValues("diagnose").Inc()
	m.Rejections.Inc()
	m.Degraded.WithLabelValues("explaining").Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("diagnose")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Rejections))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Degraded.WithLabelValues("explaining")))
}
