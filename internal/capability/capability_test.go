package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/require"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/scheduler"
)

var (
	cpu  = scheduler.DeviceDescriptor{Class: spec.DeviceClassCPU, UniqueName: "CPU_01"}
	igpu = scheduler.DeviceDescriptor{Class: spec.DeviceClassIntegratedGPU, ID: "0", UniqueName: "iGPU_01"}
	dgpu = scheduler.DeviceDescriptor{Class: spec.DeviceClassDiscreteGPU, ID: "1", UniqueName: "dGPU_01"}
)

func TestStatic(t *testing.T) {
	s := NewStatic(map[spec.DeviceClass][]spec.Precision{
		spec.DeviceClassIntegratedGPU: {spec.PrecisionFP32, spec.PrecisionFP16, spec.PrecisionFP16},
		spec.DeviceClassVPUX:          {},
	})

	got, err := s.SupportedPrecisions(context.Background(), igpu)
	require.NoError(t, err)
	require.Equal(t, []spec.Precision{spec.PrecisionFP16, spec.PrecisionFP32}, got)

	got, err = s.SupportedPrecisions(context.Background(), cpu)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = s.SupportedPrecisions(context.Background(), scheduler.DeviceDescriptor{Class: spec.DeviceClassVPUX})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestCPUInfo(t *testing.T) {
	testCases := []struct {
		description string
		flags       []string
		expected    []spec.Precision
	}{
		{
			description: "baseline",
			flags:       []string{"fpu", "sse2"},
			expected:    []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN},
		},
		{
			description: "avx2 with f16c",
			flags:       []string{"fpu", "f16c", "avx2"},
			expected:    []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN, spec.PrecisionFP16, spec.PrecisionINT8},
		},
		{
			description: "arm with dot product",
			flags:       []string{"fp", "asimd", "asimddp"},
			expected:    []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN, spec.PrecisionINT8},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			c := &CPUInfo{readFlags: func() ([]string, error) { return tc.flags, nil }}
			got, err := c.SupportedPrecisions(context.Background(), cpu)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)

			got, err = c.SupportedPrecisions(context.Background(), igpu)
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestCPUInfo_ReadError(t *testing.T) {
	c := &CPUInfo{readFlags: func() ([]string, error) { return nil, errors.New("boom") }}
	_, err := c.SupportedPrecisions(context.Background(), cpu)
	require.Error(t, err)
}

func TestCPUInfo_Procfs(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("cpuinfo fixture is in x86 format")
	}
	root := t.TempDir()
	cpuinfo := "processor\t: 0\nvendor_id\t: GenuineIntel\ncpu family\t: 6\nmodel\t\t: 85\nmodel name\t: Test CPU\nflags\t\t: fpu sse4_2 f16c\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "cpuinfo"), []byte(cpuinfo), 0644))

	c, err := NewCPUInfo(root)
	require.NoError(t, err)
	got, err := c.SupportedPrecisions(context.Background(), cpu)
	require.NoError(t, err)
	require.ElementsMatch(t, []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN, spec.PrecisionFP16, spec.PrecisionINT8}, got)
}

func newMockNVML(major, minor int, gotIndex *int) *mock.Interface {
	return &mock.Interface{
		InitFunc:     func() nvml.Return { return nvml.SUCCESS },
		ShutdownFunc: func() nvml.Return { return nvml.SUCCESS },
		DeviceGetHandleByIndexFunc: func(n int) (nvml.Device, nvml.Return) {
			*gotIndex = n
			return &mock.Device{
				GetCudaComputeCapabilityFunc: func() (int, int, nvml.Return) {
					return major, minor, nvml.SUCCESS
				},
			}, nvml.SUCCESS
		},
	}
}

func TestNVML(t *testing.T) {
	testCases := []struct {
		major, minor int
		expected     []spec.Precision
	}{
		{5, 2, []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN}},
		{6, 0, []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN, spec.PrecisionFP16}},
		{8, 6, []spec.Precision{spec.PrecisionFP32, spec.PrecisionBIN, spec.PrecisionFP16, spec.PrecisionINT8}},
	}
	for _, tc := range testCases {
		var index int
		lib := newMockNVML(tc.major, tc.minor, &index)
		got, err := NewNVML(lib).SupportedPrecisions(context.Background(), dgpu)
		require.NoError(t, err)
		require.Equal(t, tc.expected, got)
		require.Equal(t, 1, index)
		require.Len(t, lib.ShutdownCalls(), 1)
	}
}

func TestNVML_IgnoresOtherClasses(t *testing.T) {
	lib := &mock.Interface{}
	got, err := NewNVML(lib).SupportedPrecisions(context.Background(), igpu)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, lib.InitCalls())
}

func TestNVML_InitFailure(t *testing.T) {
	lib := &mock.Interface{
		InitFunc: func() nvml.Return { return nvml.ERROR_LIBRARY_NOT_FOUND },
	}
	_, err := NewNVML(lib).SupportedPrecisions(context.Background(), dgpu)
	require.Error(t, err)

	bad := dgpu
	bad.ID = "x"
	_, err = NewNVML(lib).SupportedPrecisions(context.Background(), bad)
	require.Error(t, err)
}

// serveUnixHTTP starts an HTTP server on a unix socket under t.TempDir.
func serveUnixHTTP(t *testing.T, handler http.Handler) string {
	sock := filepath.Join(t.TempDir(), "caps.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(l)
	t.Cleanup(func() {
		srv.Close()
		l.Close()
	})
	return sock
}

func TestSocket(t *testing.T) {
	sock := serveUnixHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/capabilities" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("class") {
		case string(spec.DeviceClassIntegratedGPU):
			if r.URL.Query().Get("name") != "iGPU_01" || r.URL.Query().Get("id") != "0" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode([]string{"FP32", "FP16"})
		case string(spec.DeviceClassDiscreteGPU):
			http.Error(w, "broken", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))

	s := NewSocket(sock)
	got, err := s.SupportedPrecisions(context.Background(), igpu)
	require.NoError(t, err)
	require.Equal(t, []spec.Precision{spec.PrecisionFP32, spec.PrecisionFP16}, got)

	got, err = s.SupportedPrecisions(context.Background(), cpu)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = s.SupportedPrecisions(context.Background(), dgpu)
	require.Error(t, err)
}

func TestChain(t *testing.T) {
	failing := scheduler.CapabilityQuerierFunc(func(context.Context, scheduler.DeviceDescriptor) ([]spec.Precision, error) {
		return nil, errors.New("unavailable")
	})
	static := NewStatic(map[spec.DeviceClass][]spec.Precision{
		spec.DeviceClassIntegratedGPU: {spec.PrecisionFP16},
	})
	cpuinfo := &CPUInfo{readFlags: func() ([]string, error) { return []string{"avx2"}, nil }}
	chain := Chain{failing, static, cpuinfo}

	got, err := chain.SupportedPrecisions(context.Background(), igpu)
	require.NoError(t, err)
	require.Equal(t, []spec.Precision{spec.PrecisionFP16}, got)

	got, err = chain.SupportedPrecisions(context.Background(), cpu)
	require.NoError(t, err)
	require.Contains(t, got, spec.PrecisionINT8)

	got, err = chain.SupportedPrecisions(context.Background(), dgpu)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNewFromConfig(t *testing.T) {
	chain, err := NewFromConfig(spec.CapabilityConfig{
		Static: map[spec.DeviceClass][]spec.Precision{spec.DeviceClassVPUX: {spec.PrecisionINT8}},
		Socket: "/nonexistent.sock",
		NVML:   true,
	})
	require.NoError(t, err)
	require.Len(t, chain, 3)

	_, err = NewFromConfig(spec.CapabilityConfig{CPUInfo: true, ProcRoot: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

// The scheduler filters on the chain's answers end to end.
func TestChainWithScheduler(t *testing.T) {
	chain := Chain{NewStatic(map[spec.DeviceClass][]spec.Precision{
		spec.DeviceClassDiscreteGPU:   {spec.PrecisionFP32, spec.PrecisionFP16},
		spec.DeviceClassIntegratedGPU: {spec.PrecisionFP32, spec.PrecisionINT8},
	})}
	s := scheduler.New(scheduler.WithCapabilityQuerier(chain))
	pool := []scheduler.DeviceDescriptor{cpu, igpu, dgpu}

	d, err := s.Select(context.Background(), pool, spec.PrecisionINT8, 0)
	require.NoError(t, err)
	require.Equal(t, "iGPU_01", d.UniqueName)

	d, err = s.Select(context.Background(), pool, spec.PrecisionFP16, 0)
	require.NoError(t, err)
	require.Equal(t, "dGPU_01", d.UniqueName)
}
