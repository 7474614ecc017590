package scheduler

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

// Scheduler arbitrates which device a workload of a given importance should
// bind to. A single Scheduler owns one reservation table and is safe for
// concurrent use.
type Scheduler struct {
	table           *reservationTable
	querier         CapabilityQuerier
	overrideRanking bool
	fallback        spec.FallbackPolicy
	metrics         *Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCapabilityQuerier sets the collaborator used to look up device
// precisions. Without one every device is assumed to support everything.
func WithCapabilityQuerier(q CapabilityQuerier) Option {
	return func(s *Scheduler) { s.querier = q }
}

// WithOverrideRanking makes the scheduler rank devices by their supplied Rank
// instead of the built-in class ranking.
func WithOverrideRanking(enabled bool) Option {
	return func(s *Scheduler) { s.overrideRanking = enabled }
}

// WithFallbackPolicy sets the behavior when every capable device is reserved
// by a more important class.
func WithFallbackPolicy(p spec.FallbackPolicy) Option {
	return func(s *Scheduler) { s.fallback = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New constructs a Scheduler with an empty reservation table.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		table:    newReservationTable(),
		fallback: spec.FallbackPolicyShare,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.table.observe = s.metrics.setReservations
	return s
}

// Select picks the device a workload with the given precision and importance
// should run on, reserving it for that importance where possible.
//
// Capable devices are walked in preference order and the first one that is
// free, or held by an equal or less important class, is reserved and
// returned. A less important holder is displaced silently. If every capable
// device is held by a more important class the fallback policy applies.
func (s *Scheduler) Select(ctx context.Context, devices []DeviceDescriptor, precision spec.Precision, importance Importance) (DeviceDescriptor, error) {
	if err := validatePool(devices); err != nil {
		s.metrics.observeFailure("invalid_pool")
		return DeviceDescriptor{}, err
	}

	// The capability collaborator may block; keep it outside the table lock.
	capable := filterByPrecision(ctx, s.querier, devices, precision)
	if err := ctx.Err(); err != nil {
		return DeviceDescriptor{}, err
	}
	candidates := rankDevices(capable, s.overrideRanking)
	if len(candidates) == 0 {
		s.metrics.observeFailure("no_capable_device")
		return DeviceDescriptor{}, fmt.Errorf("%w: precision %s", ErrNoCapableDevice, precision)
	}
	klog.V(4).InfoS("Select: ranked candidates", "precision", precision, "importance", importance, "candidates", uniqueNames(candidates))

	d, outcome, ok := s.table.claim(candidates, importance)
	if !ok {
		switch s.fallback {
		case spec.FallbackPolicyFail:
			s.metrics.observeFailure("exhausted")
			klog.InfoS("Select: all capable devices reserved by more important workloads", "precision", precision, "importance", importance)
			return DeviceDescriptor{}, fmt.Errorf("%w: precision %s, importance %d", ErrDevicesExhausted, precision, importance)
		case spec.FallbackPolicyShareLast:
			d = candidates[len(candidates)-1]
		default:
			d = candidates[0]
		}
		outcome = claimShared
	}

	s.metrics.observeSelection(d.UniqueName, outcome)
	klog.V(4).InfoS("Select: device chosen", "device", d.UniqueName, "importance", importance, "outcome", outcome)
	return d, nil
}

// Release drops the reservation importance holds on uniqueName. It is a no-op
// if the device is unreserved or held by another importance.
func (s *Scheduler) Release(importance Importance, uniqueName string) {
	removed := s.table.release(importance, uniqueName)
	s.metrics.observeRelease(removed)
	klog.V(4).InfoS("Release", "device", uniqueName, "importance", importance, "removed", removed)
}

// Snapshot returns a copy of the reservation table.
func (s *Scheduler) Snapshot() map[string]Importance {
	return s.table.snapshot()
}

// FallbackPolicy returns the configured exhaustion policy.
func (s *Scheduler) FallbackPolicy() spec.FallbackPolicy {
	return s.fallback
}

func validatePool(devices []DeviceDescriptor) error {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if d.UniqueName == "" {
			return fmt.Errorf("%w: device of class %s has no unique name", ErrInvalidPool, d.Class)
		}
		if d.Rank < 0 {
			return fmt.Errorf("%w: device %q has negative rank %d", ErrInvalidPool, d.UniqueName, d.Rank)
		}
		if _, dup := seen[d.UniqueName]; dup {
			return fmt.Errorf("%w: duplicate unique name %q", ErrInvalidPool, d.UniqueName)
		}
		seen[d.UniqueName] = struct{}{}
	}
	return nil
}
