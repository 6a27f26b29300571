package monitor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// MetricsCollector periodically samples host and process resource usage
// into the roster's gauges
type MetricsCollector struct {
	logger   *zap.Logger
	metrics  *Metrics
	interval time.Duration
	proc     *process.Process
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(metrics *Metrics, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	logger = logger.Named("metrics-collector")
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("Process metrics unavailable", zap.Error(err))
	}
	return &MetricsCollector{
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		proc:     proc,
		stop:     make(chan struct{}),
	}
}

// Start starts the collection loop
func (c *MetricsCollector) Start(ctx context.Context) {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))
	c.Collect()
	go c.collectLoop(ctx)
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping metrics collector")
		close(c.stop)
	})
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Collect samples resource usage once
func (c *MetricsCollector) Collect() {
	// A zero interval compares against the previous call instead of blocking
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		c.metrics.HostCPUPercent.Set(cpuPercent[0])
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
	} else {
		c.metrics.HostMemoryPercent.Set(memInfo.UsedPercent)
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfo(); err != nil {
			c.logger.Error("Failed to get process memory", zap.Error(err))
		} else {
			c.metrics.ProcessRSSBytes.Set(float64(info.RSS))
		}
	}

	c.logger.Debug("Metrics collected")
}
