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
	"fmt"
	"strings"
)

// Precision identifies a numeric precision a workload requires.
type Precision string

// Supported precisions
const (
	PrecisionFP32 = Precision("FP32")
	PrecisionFP16 = Precision("FP16")
	PrecisionINT8 = Precision("INT8")
	PrecisionBIN  = Precision("BIN")
)

// Precisions lists the precisions a workload may request.
var Precisions = []Precision{PrecisionFP32, PrecisionFP16, PrecisionINT8, PrecisionBIN}

// ParsePrecision converts a string to a Precision. Matching is case-insensitive.
func ParsePrecision(s string) (Precision, error) {
	p := Precision(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Precisions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown precision %q", s)
}

// DeviceClass identifies the hardware family of a compute backend.
type DeviceClass string

// Known device classes
const (
	DeviceClassDiscreteGPU   = DeviceClass("dGPU")
	DeviceClassIntegratedGPU = DeviceClass("iGPU")
	DeviceClassCPU           = DeviceClass("CPU")
	DeviceClassVPU           = DeviceClass("VPU")
	DeviceClassVPUX          = DeviceClass("VPUX")
)

// IsKnown reports whether c is one of the built-in device classes.
func (c DeviceClass) IsKnown() bool {
	switch c {
	case DeviceClassDiscreteGPU, DeviceClassIntegratedGPU, DeviceClassCPU, DeviceClassVPU, DeviceClassVPUX:
		return true
	}
	return false
}
