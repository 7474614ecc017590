package scheduler

import "errors"

var (
	// ErrNoCapableDevice is returned when no device in the pool supports the
	// requested precision.
	ErrNoCapableDevice = errors.New("no capable device")
	// ErrInvalidPool is returned when a device pool violates its preconditions,
	// e.g. two devices share a unique name.
	ErrInvalidPool = errors.New("invalid device pool")
	// ErrDevicesExhausted is returned under FallbackPolicyFail when every
	// capable device is reserved by a more important class.
	ErrDevicesExhausted = errors.New("all capable devices reserved by more important workloads")
)
