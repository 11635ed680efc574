package datamover

import "github.com/rcrowley/go-metrics"

type engineMetrics struct {
	software         metrics.Counter
	hardware         metrics.Counter
	hardwareRejected metrics.Counter
	fallback         metrics.Counter
	pageFault        metrics.Counter
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{
		software:         metrics.GetOrRegisterCounter("submit.software", nil),
		hardware:         metrics.GetOrRegisterCounter("submit.hardware", nil),
		hardwareRejected: metrics.GetOrRegisterCounter("submit.hardware.rejected", nil),
		fallback:         metrics.GetOrRegisterCounter("submit.fallback", nil),
		pageFault:        metrics.GetOrRegisterCounter("recovery.page_fault", nil),
	}
}
