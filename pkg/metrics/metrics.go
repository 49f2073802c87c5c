// Copyright 2025 Certen Protocol
//
// Package metrics wires the validator's Prometheus instrumentation. The
// teacher repo lists prometheus/client_golang in go.mod but never
// registers a collector; this package is its first actual user. Each
// stage gets plain Counter/Histogram/Gauge collectors (no label
// vectors), registered on the Registerer passed to its constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConsensusAdapter groups the consensus adapter's instrumentation
// (spec.md §4.5's attempt/success/failure, ack/commit latency by
// position, in-flight gauge).
type ConsensusAdapter struct {
	PendingGauge          prometheus.Gauge
	SubmissionPosition    prometheus.Histogram
	CommitLatency         prometheus.Histogram
	GarbageCollectedTotal prometheus.Counter
	SubmitAttemptsTotal   prometheus.Counter
	SubmitFailuresTotal   prometheus.Counter
}

// NewConsensusAdapter builds and registers a ConsensusAdapter metric
// group against reg.
func NewConsensusAdapter(reg prometheus.Registerer) *ConsensusAdapter {
	m := &ConsensusAdapter{
		PendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "pending_transactions",
			Help:      "Number of transactions currently awaiting consensus submission for the active epoch.",
		}),
		SubmissionPosition: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "submission_position",
			Help:      "Computed submission position per transaction (0 = submit immediately).",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "commit_latency_seconds",
			Help:      "Time from submission to observed Sequenced status.",
			Buckets:   prometheus.DefBuckets,
		}),
		GarbageCollectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "garbage_collected_total",
			Help:      "Count of submissions reported garbage-collected by the consensus client.",
		}),
		SubmitAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "submit_attempts_total",
			Help:      "Count of consensus submission attempts across all transactions.",
		}),
		SubmitFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authority_core",
			Subsystem: "consensus_adapter",
			Name:      "submit_failures_total",
			Help:      "Count of consensus submission attempts that returned a transport error.",
		}),
	}
	reg.MustRegister(
		m.PendingGauge,
		m.SubmissionPosition,
		m.CommitLatency,
		m.GarbageCollectedTotal,
		m.SubmitAttemptsTotal,
		m.SubmitFailuresTotal,
	)
	return m
}

// Execution groups the execution driver's instrumentation.
type Execution struct {
	CertificatesExecutedTotal prometheus.Counter
	ExecutionLatency          prometheus.Histogram
	WorkerQueueDepth          prometheus.Gauge
}

// NewExecution builds and registers an Execution metric group against reg.
func NewExecution(reg prometheus.Registerer) *Execution {
	m := &Execution{
		CertificatesExecutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authority_core",
			Subsystem: "execution",
			Name:      "certificates_executed_total",
			Help:      "Count of certificates that reached a terminal effects record.",
		}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authority_core",
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Time from dequeue to committed effects for one certificate.",
			Buckets:   prometheus.DefBuckets,
		}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "authority_core",
			Subsystem: "execution",
			Name:      "worker_queue_depth",
			Help:      "Number of certificates queued for execution workers.",
		}),
	}
	reg.MustRegister(m.CertificatesExecutedTotal, m.ExecutionLatency, m.WorkerQueueDepth)
	return m
}

// NewRegistry builds a fresh prometheus.Registry with the standard Go
// process/runtime collectors, matching how instrumented pack services
// avoid the global DefaultRegisterer so multiple validator instances in
// one test process don't collide.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}
