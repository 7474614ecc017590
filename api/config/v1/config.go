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

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/mod/semver"
	"sigs.k8s.io/yaml"
)

// Version is the config schema version understood by this package
const Version = "v1"

// DefaultSocketPath is where the arbiter serves its API when no socket is configured
const DefaultSocketPath = "/var/run/device-arbiter/arbiter.sock"

// FallbackPolicy controls what Select does when every capable device is
// reserved by a more important class.
type FallbackPolicy string

// Fallback policies
const (
	// FallbackPolicyShare returns the most preferred capable device without reserving it
	FallbackPolicyShare = FallbackPolicy("share")
	// FallbackPolicyShareLast returns the least preferred capable device without reserving it
	FallbackPolicyShareLast = FallbackPolicy("share-last")
	// FallbackPolicyFail returns an exhaustion error
	FallbackPolicyFail = FallbackPolicy("fail")
)

// Config is the top-level arbiter configuration
type Config struct {
	Version      string                `json:"version" yaml:"version"`
	Flags        Flags                 `json:"flags,omitempty" yaml:"flags,omitempty"`
	Devices      []DeviceConfig        `json:"devices,omitempty" yaml:"devices,omitempty"`
	NamePattern  string                `json:"namePattern,omitempty" yaml:"namePattern,omitempty"`
	Priority     *DevicePriorityConfig `json:"priority,omitempty" yaml:"priority,omitempty"`
	Capabilities CapabilityConfig      `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Flags holds settings that may also be supplied on the command line
type Flags struct {
	SocketPath     string         `json:"socketPath,omitempty" yaml:"socketPath,omitempty"`
	FallbackPolicy FallbackPolicy `json:"fallbackPolicy,omitempty" yaml:"fallbackPolicy,omitempty"`
}

// CapabilityConfig selects the sources consulted for a device's supported precisions.
// Sources are queried in the order: Static, Socket, NVML, CPUInfo. The first
// source that reports anything for a device wins; if none does, the device is
// assumed to support every precision.
type CapabilityConfig struct {
	// Static maps a device class to the precisions it supports
	Static map[DeviceClass][]Precision `json:"static,omitempty" yaml:"static,omitempty"`
	// Socket is the path of a unix socket serving /capabilities
	Socket string `json:"socket,omitempty" yaml:"socket,omitempty"`
	// NVML enables probing discrete GPUs through NVML
	NVML bool `json:"nvml,omitempty" yaml:"nvml,omitempty"`
	// CPUInfo enables probing the host CPU through /proc/cpuinfo
	CPUInfo bool `json:"cpuinfo,omitempty" yaml:"cpuinfo,omitempty"`
	// ProcRoot overrides the procfs mount point used by CPUInfo
	ProcRoot string `json:"procRoot,omitempty" yaml:"procRoot,omitempty"`
}

// OverrideRanking reports whether explicit per-device ranks replace the class ranking
func (c *Config) OverrideRanking() bool {
	return c.Priority != nil && c.Priority.Enabled
}

// Load reads and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a config document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = Version
	}
	if c.Flags.SocketPath == "" {
		c.Flags.SocketPath = DefaultSocketPath
	}
	if c.Flags.FallbackPolicy == "" {
		c.Flags.FallbackPolicy = FallbackPolicyShare
	}
	if c.NamePattern == "" {
		c.NamePattern = DefaultNamePattern
	}
	if c.Priority == nil {
		c.Priority = GetDefaultDevicePriorityConfig()
	}
}

// Validate checks the config for internal consistency
func (c *Config) Validate() error {
	if !semver.IsValid(c.Version) || semver.Major(c.Version) != Version {
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	switch c.Flags.FallbackPolicy {
	case FallbackPolicyShare, FallbackPolicyShareLast, FallbackPolicyFail:
	default:
		return fmt.Errorf("unknown fallback policy %q", c.Flags.FallbackPolicy)
	}

	seen := make(map[string]bool)
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Class == "" {
			return fmt.Errorf("device %d: class is required", i)
		}
		name := d.GetUniqueName(c.NamePattern)
		if seen[name] {
			return fmt.Errorf("duplicate device unique name %q", name)
		}
		seen[name] = true
	}

	if c.OverrideRanking() {
		for i := range c.Devices {
			name := c.Devices[i].GetUniqueName(c.NamePattern)
			rank, ok := c.Priority.RankFor(name)
			if !ok {
				return fmt.Errorf("priority override enabled but device %q has no rank", name)
			}
			if rank < 0 {
				return fmt.Errorf("device %q: rank must be non-negative", name)
			}
		}
	}

	for class, precisions := range c.Capabilities.Static {
		for _, p := range precisions {
			if p == "" {
				return errors.New("empty precision in static capabilities for " + string(class))
			}
		}
	}
	return nil
}
