package scheduler

import (
	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

// DescriptorsFromConfig builds the device pool described by config. With the
// priority override enabled each device carries its configured rank;
// otherwise ranks come from the built-in class table.
func DescriptorsFromConfig(config *spec.Config) []DeviceDescriptor {
	devices := make([]DeviceDescriptor, 0, len(config.Devices))
	for i := range config.Devices {
		c := &config.Devices[i]
		d := DeviceDescriptor{
			Class:      c.Class,
			ID:         c.ID,
			UniqueName: c.GetUniqueName(config.NamePattern),
			Options:    c.Options,
			Rank:       DefaultClassRank(c.Class),
		}
		if config.OverrideRanking() {
			if rank, ok := config.Priority.RankFor(d.UniqueName); ok {
				d.Rank = rank
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// NewFromConfig constructs a Scheduler whose ranking mode and fallback policy
// follow config.
func NewFromConfig(config *spec.Config, opts ...Option) *Scheduler {
	base := []Option{
		WithOverrideRanking(config.OverrideRanking()),
		WithFallbackPolicy(config.Flags.FallbackPolicy),
	}
	return New(append(base, opts...)...)
}
