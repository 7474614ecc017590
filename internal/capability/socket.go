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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// Socket asks a node-local capability service over a unix socket.
// GET /capabilities?class=&id=&name= returns a JSON list of precisions, or
// 404 when the service knows nothing about the device.
type Socket struct {
	client *http.Client
}

var _ scheduler.CapabilityQuerier = (*Socket)(nil)

// NewSocket returns a querier talking to the service listening on socketPath.
func NewSocket(socketPath string) *Socket {
	transport := &http.Transport{DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
		return (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "unix", socketPath)
	}}
	return &Socket{client: &http.Client{Transport: transport, Timeout: 3 * time.Second}}
}

// SupportedPrecisions queries the capability service for d.
func (s *Socket) SupportedPrecisions(ctx context.Context, d scheduler.DeviceDescriptor) ([]spec.Precision, error) {
	q := url.Values{}
	q.Set("class", string(d.Class))
	q.Set("id", d.ID)
	q.Set("name", d.UniqueName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/capabilities?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create capabilities request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capabilities request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("capabilities request returned status: %s", resp.Status)
	}

	var precisions []spec.Precision
	if err := json.NewDecoder(resp.Body).Decode(&precisions); err != nil {
		return nil, err
	}
	if precisions == nil {
		// a 200 with "null" still means the service answered
		precisions = []spec.Precision{}
	}
	return precisions, nil
}
