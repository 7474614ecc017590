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
	"fmt"
	"strconv"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// NVML derives a discrete GPU's precisions from its CUDA compute capability.
// It only answers for dGPU class devices; the device ID is the NVML index.
type NVML struct {
	nvml nvml.Interface
}

var _ scheduler.CapabilityQuerier = (*NVML)(nil)

// NewNVML returns an NVML querier backed by nvmllib.
func NewNVML(nvmllib nvml.Interface) *NVML {
	return &NVML{nvml: nvmllib}
}

// SupportedPrecisions initializes NVML for the duration of the call.
func (q *NVML) SupportedPrecisions(_ context.Context, d scheduler.DeviceDescriptor) ([]spec.Precision, error) {
	if d.Class != spec.DeviceClassDiscreteGPU {
		return nil, nil
	}
	index := 0
	if d.ID != "" {
		i, err := strconv.Atoi(d.ID)
		if err != nil {
			return nil, fmt.Errorf("device %s: id %q is not an NVML index", d.UniqueName, d.ID)
		}
		index = i
	}

	ret := q.nvml.Init()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to initialize NVML: %v", ret)
	}
	defer func() {
		ret := q.nvml.Shutdown()
		if ret != nvml.SUCCESS {
			klog.Infof("Error shutting down NVML: %v", ret)
		}
	}()

	device, ret := q.nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("error getting device handle for index %d: %v", index, ret)
	}
	major, minor, ret := device.GetCudaComputeCapability()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("error getting compute capability for index %d: %v", index, ret)
	}
	return precisionsForComputeCapability(major, minor), nil
}

// precisionsForComputeCapability maps a CUDA compute capability to the
// precisions with hardware support: FP16 arithmetic from 5.3, DP4A INT8 from 6.1.
func precisionsForComputeCapability(major, minor int) []spec.Precision {
	precisions := []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN}
	cc := major*10 + minor
	if cc >= 53 {
		precisions = append(precisions, spec.PrecisionFP16)
	}
	if cc >= 61 {
		precisions = append(precisions, spec.PrecisionINT8)
	}
	return precisions
}
