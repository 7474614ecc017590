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

	"k8s.io/apimachinery/pkg/util/sets"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// Static answers capability queries from a fixed per-class table.
type Static struct {
	table map[spec.DeviceClass]sets.Set[spec.Precision]
}

var _ scheduler.CapabilityQuerier = (*Static)(nil)

// NewStatic builds a Static querier. Classes absent from table are reported as unknown.
func NewStatic(table map[spec.DeviceClass][]spec.Precision) *Static {
	s := &Static{table: make(map[spec.DeviceClass]sets.Set[spec.Precision], len(table))}
	for class, precisions := range table {
		s.table[class] = sets.New(precisions...)
	}
	return s
}

// SupportedPrecisions returns the configured precisions for the device class, sorted.
func (s *Static) SupportedPrecisions(_ context.Context, d scheduler.DeviceDescriptor) ([]spec.Precision, error) {
	set, ok := s.table[d.Class]
	if !ok {
		return nil, nil
	}
	return sets.List(set), nil
}
