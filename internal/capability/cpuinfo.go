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

	"github.com/prometheus/procfs"
	"k8s.io/apimachinery/pkg/util/sets"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

var (
	// fp16Flags enable native or converted half precision on the host CPU.
	fp16Flags = []string{"f16c", "avx512_fp16", "fphp"}
	// int8Flags enable the integer dot-product paths quantized models use.
	int8Flags = []string{"sse4_2", "avx2", "avx512_vnni", "avx_vnni", "amx_int8", "asimddp"}
)

// CPUInfo derives the host CPU's precisions from the flags in /proc/cpuinfo.
// It only answers for CPU class devices.
type CPUInfo struct {
	readFlags func() ([]string, error)
}

var _ scheduler.CapabilityQuerier = (*CPUInfo)(nil)

// NewCPUInfo returns a CPUInfo querier reading procfs mounted at procRoot.
// An empty procRoot uses the default mount point.
func NewCPUInfo(procRoot string) (*CPUInfo, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("error opening procfs at %s: %w", procRoot, err)
	}
	return &CPUInfo{
		readFlags: func() ([]string, error) {
			cpus, err := fs.CPUInfo()
			if err != nil {
				return nil, err
			}
			if len(cpus) == 0 {
				return nil, fmt.Errorf("no processors listed in cpuinfo")
			}
			// flags are uniform across cores on the hosts we target
			return cpus[0].Flags, nil
		},
	}, nil
}

// SupportedPrecisions reports FP32 and BIN for every CPU, plus FP16 and INT8
// when the corresponding instruction set extensions are present.
func (c *CPUInfo) SupportedPrecisions(_ context.Context, d scheduler.DeviceDescriptor) ([]spec.Precision, error) {
	if d.Class != spec.DeviceClassCPU {
		return nil, nil
	}
	flags, err := c.readFlags()
	if err != nil {
		return nil, fmt.Errorf("error reading cpu flags: %w", err)
	}
	return precisionsForCPUFlags(sets.New(flags...)), nil
}

func precisionsForCPUFlags(flags sets.Set[string]) []spec.Precision {
	precisions := []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN}
	if flags.HasAny(fp16Flags...) {
		precisions = append(precisions, spec.PrecisionFP16)
	}
	if flags.HasAny(int8Flags...) {
		precisions = append(precisions, spec.PrecisionINT8)
	}
	return precisions
}
