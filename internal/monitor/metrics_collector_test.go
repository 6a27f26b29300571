package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestMetricsCollector(t *testing.T) {
	_, m := NewRegistry()
	collector := NewMetricsCollector(m, 50*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collector.Start(ctx)
	defer collector.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.HostMemoryPercent) > 0
	}, 2*time.Second, 50*time.Millisecond)

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.HostCPUPercent), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.ProcessRSSBytes), 0.0)

	// Stop is idempotent
	collector.Stop()
}
