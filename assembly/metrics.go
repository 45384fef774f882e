package assembly

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// assemblyInserts counts entries handed to the distributed matrix
	assemblyInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semfem_assembly_inserts_total",
		Help: "Entries inserted into the distributed matrix by backend",
	}, []string{"backend"})

	// assemblyPhaseSeconds tracks the duration of each engine phase
	assemblyPhaseSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "semfem_assembly_phase_seconds",
		Help:    "Assembly phase duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"backend", "phase"})

	// scratchFallbackBytes counts device bytes allocated outside the pool
	scratchFallbackBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semfem_scratch_fallback_bytes_total",
		Help: "Device bytes allocated fresh because the scratch pool was too small",
	})
)
