package scheduler

import (
	"sort"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

// defaultClassRank is the built-in preference order used when no override
// ranking is configured.
var defaultClassRank = map[spec.DeviceClass]int{
	spec.DeviceClassDiscreteGPU:   0,
	spec.DeviceClassIntegratedGPU: 1,
	spec.DeviceClassCPU:           2,
	spec.DeviceClassVPU:           3,
	spec.DeviceClassVPUX:          4,
}

// DefaultClassRank returns the built-in rank of a device class. Unknown
// classes rank after every known class.
func DefaultClassRank(class spec.DeviceClass) int {
	if r, ok := defaultClassRank[class]; ok {
		return r
	}
	return len(defaultClassRank)
}

// rankDevices returns a copy of devices sorted ascending by rank, stable on
// ties. With override false every device's Rank is replaced by its class rank;
// with override true the supplied Rank is used verbatim.
func rankDevices(devices []DeviceDescriptor, override bool) []DeviceDescriptor {
	out := make([]DeviceDescriptor, len(devices))
	copy(out, devices)
	if !override {
		for i := range out {
			out[i].Rank = DefaultClassRank(out[i].Class)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank < out[j].Rank
	})
	return out
}
