package storycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storysync_cache_operations_total",
			Help: "Local story cache operations, partitioned by backend, operation and result.",
		},
		[]string{"backend", "op", "result"},
	)
	cacheCorruptRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storysync_cache_corrupt_records_total",
			Help: "Cached story records skipped because they could not be decoded.",
		},
		[]string{"backend"},
	)
)
