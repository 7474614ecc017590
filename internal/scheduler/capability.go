package scheduler

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

// CapabilityQuerier reports the precisions a device supports.
//
// A nil slice means the querier knows nothing about the device, in which case
// the device is assumed to support every precision. An empty, non-nil slice
// means the device supports nothing.
type CapabilityQuerier interface {
	SupportedPrecisions(ctx context.Context, device DeviceDescriptor) ([]spec.Precision, error)
}

// CapabilityQuerierFunc adapts a function to the CapabilityQuerier interface.
type CapabilityQuerierFunc func(ctx context.Context, device DeviceDescriptor) ([]spec.Precision, error)

// SupportedPrecisions calls f.
func (f CapabilityQuerierFunc) SupportedPrecisions(ctx context.Context, device DeviceDescriptor) ([]spec.Precision, error) {
	return f(ctx, device)
}

// filterByPrecision returns the devices that support precision, preserving
// input order. The querier is consulted once per device per call. Querier
// errors are logged and treated as "nothing reported".
func filterByPrecision(ctx context.Context, querier CapabilityQuerier, devices []DeviceDescriptor, precision spec.Precision) []DeviceDescriptor {
	out := make([]DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		if querier == nil {
			out = append(out, d)
			continue
		}
		supported, err := querier.SupportedPrecisions(ctx, d)
		if err != nil {
			klog.InfoS("capability query failed, assuming all precisions", "device", d.UniqueName, "err", err)
			supported = nil
		}
		if supported == nil || sets.New(supported...).Has(precision) {
			out = append(out, d)
		}
	}
	return out
}
