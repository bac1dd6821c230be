package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubebridge/kubebridge/internal/config"
)

type loadCase struct {
	name    string
	giveEnv map[string]string
	wantErr bool
	wantCfg *config.Config
}

func assertConfigFields(t *testing.T, got, want *config.Config) {
	t.Helper()

	if want == nil {
		return
	}

	if want.Host != "" {
		require.Equal(t, want.Host, got.Host)
	}

	if want.Port != 0 {
		require.Equal(t, want.Port, got.Port)
	}

	if want.Namespace != "" {
		require.Equal(t, want.Namespace, got.Namespace)
	}

	if want.ClusterName != "" {
		require.Equal(t, want.ClusterName, got.ClusterName)
	}

	if want.Interval != 0 {
		require.Equal(t, want.Interval, got.Interval)
	}

	if want.ScaleVerificationTimeout != 0 {
		require.Equal(t, want.ScaleVerificationTimeout, got.ScaleVerificationTimeout)
	}

	if want.ScaleCooldown != 0 {
		require.Equal(t, want.ScaleCooldown, got.ScaleCooldown)
	}

	if want.LogLevel != "" {
		require.Equal(t, want.LogLevel, got.LogLevel)
	}

	if want.LogFormat != "" {
		require.Equal(t, want.LogFormat, got.LogFormat)
	}

	if want.HTTPPort != "" {
		require.Equal(t, want.HTTPPort, got.HTTPPort)
	}

	if want.MetricsPort != "" {
		require.Equal(t, want.MetricsPort, got.MetricsPort)
	}
}

func TestLoad(t *testing.T) {
	tests := []loadCase{
		{
			name: "all defaults",
			giveEnv: map[string]string{
				"KUBEBRIDGE_HOST":      "10.0.0.10",
				"KUBEBRIDGE_API_TOKEN": "token",
			},
			wantErr: false,
			wantCfg: &config.Config{
				Host:                     "10.0.0.10",
				Port:                     6443,
				ClusterName:              "default",
				Namespace:                "default",
				Interval:                 60 * time.Second,
				ScaleVerificationTimeout: 30 * time.Second,
				ScaleCooldown:            10 * time.Second,
				LogLevel:                 "info",
				LogFormat:                "json",
				HTTPPort:                 "8080",
				MetricsPort:              "9090",
			},
		},
		{
			name: "overridden port, namespace and interval",
			giveEnv: map[string]string{
				"KUBEBRIDGE_HOST":      "kube.example.com",
				"KUBEBRIDGE_API_TOKEN": "token",
				"KUBEBRIDGE_PORT":      "443",
				"KUBEBRIDGE_NAMESPACE": "workloads",
				"KUBEBRIDGE_INTERVAL":  "5m",
			},
			wantErr: false,
			wantCfg: &config.Config{
				Host:      "kube.example.com",
				Port:      443,
				Namespace: "workloads",
				Interval:  5 * time.Minute,
			},
		},
		{
			name:    "missing host",
			giveEnv: map[string]string{"KUBEBRIDGE_API_TOKEN": "token"},
			wantErr: true,
		},
		{
			name:    "missing token",
			giveEnv: map[string]string{"KUBEBRIDGE_HOST": "10.0.0.10"},
			wantErr: true,
		},
		{
			name: "malformed port",
			giveEnv: map[string]string{
				"KUBEBRIDGE_HOST":      "10.0.0.10",
				"KUBEBRIDGE_API_TOKEN": "token",
				"KUBEBRIDGE_PORT":      "not-a-port",
			},
			wantErr: true,
		},
		{
			name: "interval below minimum",
			giveEnv: map[string]string{
				"KUBEBRIDGE_HOST":      "10.0.0.10",
				"KUBEBRIDGE_API_TOKEN": "token",
				"KUBEBRIDGE_INTERVAL":  "1s",
			},
			wantErr: true,
		},
		{
			name: "malformed bool",
			giveEnv: map[string]string{
				"KUBEBRIDGE_HOST":           "10.0.0.10",
				"KUBEBRIDGE_API_TOKEN":      "token",
				"KUBEBRIDGE_ALL_NAMESPACES": "maybe",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.giveEnv {
				t.Setenv(k, v)
			}

			got, err := config.Load()
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assertConfigFields(t, got, tt.wantCfg)
		})
	}
}
