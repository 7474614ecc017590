package server

import (
	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// SelectRequest asks the arbiter for a device. Devices defaults to the
// server's configured pool when empty.
type SelectRequest struct {
	Precision  string                       `json:"precision"`
	Importance scheduler.Importance         `json:"importance"`
	Devices    []scheduler.DeviceDescriptor `json:"devices,omitempty"`
}

// SelectResponse carries the chosen device.
type SelectResponse struct {
	RequestID string                     `json:"requestID"`
	Device    scheduler.DeviceDescriptor `json:"device"`
}

// ReleaseRequest drops a reservation.
type ReleaseRequest struct {
	Importance scheduler.Importance `json:"importance"`
	UniqueName string               `json:"uniqueName"`
}

// StatusResponse reports the configured pool and the reservation table.
type StatusResponse struct {
	FallbackPolicy spec.FallbackPolicy             `json:"fallbackPolicy"`
	Devices        []scheduler.DeviceDescriptor    `json:"devices"`
	Reservations   map[string]scheduler.Importance `json:"reservations"`
}

type errorResponse struct {
	Error string `json:"error"`
}
