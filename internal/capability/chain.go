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

package capability

import (
	"context"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// Chain consults its queriers in order and returns the first answer. A
// querier that fails is logged and skipped. If no querier answers, the device
// is reported as unknown.
type Chain []scheduler.CapabilityQuerier

var _ scheduler.CapabilityQuerier = Chain(nil)

// SupportedPrecisions implements scheduler.CapabilityQuerier.
func (c Chain) SupportedPrecisions(ctx context.Context, d scheduler.DeviceDescriptor) ([]spec.Precision, error) {
	for _, q := range c {
		precisions, err := q.SupportedPrecisions(ctx, d)
		if err != nil {
			klog.InfoS("capability source failed", "device", d.UniqueName, "err", err)
			continue
		}
		if precisions != nil {
			return precisions, nil
		}
	}
	return nil, nil
}

// NewFromConfig builds the querier chain described by config.
func NewFromConfig(config spec.CapabilityConfig) (Chain, error) {
	var chain Chain
	if len(config.Static) > 0 {
		chain = append(chain, NewStatic(config.Static))
	}
	if config.Socket != "" {
		chain = append(chain, NewSocket(config.Socket))
	}
	if config.NVML {
		chain = append(chain, NewNVML(nvml.New()))
	}
	if config.CPUInfo {
		c, err := NewCPUInfo(config.ProcRoot)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
	}
	return chain, nil
}
