/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package v1

import "fmt"

// DeviceConfig describes one compute backend in the device pool
type DeviceConfig struct {
	// Class is the hardware family of the device (CPU, iGPU, dGPU, VPU, VPUX)
	Class DeviceClass `json:"class" yaml:"class"`
	// ID distinguishes multiple instances of the same class (e.g. "0", "1").
	// Leave empty for singleton classes.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// UniqueName is the stable identity of the device.
	// If empty, it is derived from Class and ID using the pool's NamePattern.
	UniqueName string `json:"uniqueName,omitempty" yaml:"uniqueName,omitempty"`
	// Options is passed through to the caller untouched
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// DevicePriorityConfig defines an explicit per-device ranking that replaces
// the built-in hardware-class ranking.
type DevicePriorityConfig struct {
	// Enabled switches the scheduler from the built-in class ranking to the
	// ranks listed in Devices
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Devices maps a device unique name to its rank. Lower is more preferred.
	Devices []DeviceRank `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// DeviceRank assigns a rank to a specific device
type DeviceRank struct {
	UniqueName string `json:"uniqueName" yaml:"uniqueName"`
	Rank       int    `json:"rank" yaml:"rank"`
}

// DefaultNamePattern is used to derive unique names for devices that do not set one.
// The first %s is the device class, the second the device ID.
const DefaultNamePattern = "%s_%s"

// GetUniqueName returns the unique name for the device config
func (d *DeviceConfig) GetUniqueName(pattern string) string {
	if d.UniqueName != "" {
		return d.UniqueName
	}
	if pattern == "" {
		pattern = DefaultNamePattern
	}
	id := d.ID
	if id == "" {
		id = "0"
	}
	return fmt.Sprintf(pattern, d.Class, id)
}

// RankFor returns the configured rank for the named device, if any.
func (p *DevicePriorityConfig) RankFor(uniqueName string) (int, bool) {
	if p == nil {
		return 0, false
	}
	for _, r := range p.Devices {
		if r.UniqueName == uniqueName {
			return r.Rank, true
		}
	}
	return 0, false
}

// GetDefaultDevicePriorityConfig returns a configuration with the override ranking disabled
func GetDefaultDevicePriorityConfig() *DevicePriorityConfig {
	return &DevicePriorityConfig{
		Enabled: false,
	}
}
