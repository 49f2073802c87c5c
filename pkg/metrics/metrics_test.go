// Copyright 2025 Certen Protocol
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewConsensusAdapterRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsensusAdapter(reg)

	m.PendingGauge.Set(3)
	m.SubmissionPosition.Observe(1)
	m.CommitLatency.Observe(0.5)
	m.GarbageCollectedTotal.Inc()
	m.SubmitAttemptsTotal.Inc()
	m.SubmitFailuresTotal.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("expected 6 registered metric families, got %d", len(families))
	}
}

func TestNewExecutionRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExecution(reg)

	m.CertificatesExecutedTotal.Inc()
	m.ExecutionLatency.Observe(0.1)
	m.WorkerQueueDepth.Set(5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 registered metric families, got %d", len(families))
	}
}

func TestNewRegistryIncludesProcessCollectors(t *testing.T) {
	reg := NewRegistry()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected the go/process collectors to register at least one metric family")
	}
}
