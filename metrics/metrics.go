// Package metrics holds the Prometheus collectors of the object store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dicom_object_store"

var (
	// StoredInstances counts store attempts by outcome ("success",
	// "already_exists", "validation_failed", "failed").
	StoredInstances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "instances_total",
		Help:      "Total number of instances processed by store requests, by outcome",
	}, []string{"outcome"})

	StoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "instance_duration_seconds",
		Help:      "Duration of storing a single instance in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	CleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "cleanup_failures_total",
		Help:      "Total number of failed compensating deletes, by stage",
	}, []string{"stage"})

	DeletedInstancesCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delete",
		Name:      "cleaned_total",
		Help:      "Total number of deleted instance ledger entries whose blobs were removed",
	})

	DeletedInstancesRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delete",
		Name:      "retries_total",
		Help:      "Total number of failed blob cleanups scheduled for retry",
	})

	OldestDeletedInstanceSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "delete",
		Name:      "oldest_pending_seconds",
		Help:      "Age of the oldest deleted instance ledger entry in seconds",
	})

	BackfilledInstances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backfill",
		Name:      "content_length_updated_total",
		Help:      "Total number of file properties whose content length was backfilled",
	})

	ReindexedInstances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reindex",
		Name:      "instances_total",
		Help:      "Total number of instances reindexed for extended query tags",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_seconds_total",
		Help:      "Total amount of request time by route, in seconds",
	}, []string{"method", "route"})
)
