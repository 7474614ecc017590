package scheduler

import (
	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

// Importance is the priority class of a workload. Lower values are more
// important; equal values are peers.
type Importance uint32

// DeviceDescriptor describes one addressable compute backend.
type DeviceDescriptor struct {
	Class spec.DeviceClass `json:"class"`
	// ID distinguishes instances of the same class; empty for singletons.
	ID string `json:"id,omitempty"`
	// UniqueName keys the reservation table and must be unique within a pool.
	UniqueName string `json:"uniqueName"`
	// Options is opaque to the scheduler.
	Options map[string]string `json:"options,omitempty"`
	// Rank orders devices by preference; lower is more preferred.
	Rank int `json:"rank"`
}

// String returns the device unique name.
func (d DeviceDescriptor) String() string { return d.UniqueName }

// uniqueNames is a small helper used for logging.
func uniqueNames(devices []DeviceDescriptor) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.UniqueName
	}
	return out
}
