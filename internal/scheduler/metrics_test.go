package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := New(WithMetrics(m), WithCapabilityQuerier(testCapabilities))
	pool := threePool()

	mustSelect(t, s, pool, spec.PrecisionFP32, 3) // reserved dGPU
	mustSelect(t, s, pool, spec.PrecisionFP32, 1) // preempts dGPU
	mustSelect(t, s, pool, spec.PrecisionFP32, 1) // renews dGPU
	_, _ = s.Select(context.Background(), pool, "FP64", 0)

	if got := testutil.ToFloat64(m.selections.WithLabelValues("dGPU", string(claimReserved))); got != 1 {
		t.Fatalf("expected 1 reserved selection, got %v", got)
	}
	if got := testutil.ToFloat64(m.selections.WithLabelValues("dGPU", string(claimPreempted))); got != 1 {
		t.Fatalf("expected 1 preempted selection, got %v", got)
	}
	if got := testutil.ToFloat64(m.selections.WithLabelValues("dGPU", string(claimRenewed))); got != 1 {
		t.Fatalf("expected 1 renewed selection, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("no_capable_device")); got != 0 {
		// CPU reports nothing and therefore supports FP64
		t.Fatalf("expected no capability failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.reservations); got != 2 {
		t.Fatalf("expected 2 reservations, got %v", got)
	}

	s.Release(3, "dGPU")
	s.Release(1, "dGPU")
	if got := testutil.ToFloat64(m.releases.WithLabelValues("ignored")); got != 1 {
		t.Fatalf("expected 1 ignored release, got %v", got)
	}
	if got := testutil.ToFloat64(m.releases.WithLabelValues("removed")); got != 1 {
		t.Fatalf("expected 1 removed release, got %v", got)
	}
	if got := testutil.ToFloat64(m.reservations); got != 1 {
		t.Fatalf("expected 1 reservation, got %v", got)
	}
}

func TestMetrics_ReservationsGaugeUnderConcurrency(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	s := New(WithMetrics(m), WithCapabilityQuerier(testCapabilities))
	pool := fivePool(false)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(importance Importance) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d, err := s.Select(context.Background(), pool, spec.PrecisionFP32, importance)
				if err != nil {
					t.Errorf("select: %v", err)
					return
				}
				s.Release(importance, d.UniqueName)
			}
			// leave one reservation behind for the even workers
			if importance%2 == 0 {
				_, _ = s.Select(context.Background(), pool, spec.PrecisionFP32, importance)
			}
		}(Importance(i))
	}
	wg.Wait()

	if got, want := testutil.ToFloat64(m.reservations), float64(len(s.Snapshot())); got != want {
		t.Fatalf("reservations gauge %v does not match table size %v", got, want)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeSelection("x", claimShared)
	m.observeFailure("x")
	m.observeRelease(true)
	m.setReservations(1)
}
