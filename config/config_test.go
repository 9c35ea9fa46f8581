// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/registry"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))

	v, err := BuildViper(fs)
	require.NoError(t, err)
	return NewConfig(v)
}

func TestDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := load(t)
	require.NoError(err)
	require.Equal(registry.DefaultName, cfg.Network)
	require.Equal(fhevm.DefaultTimeout, cfg.Timeout)
	require.Equal(fhevm.MaxRetryAttempts, cfg.RetryAttempts)
	require.Equal(fhevm.RetryDelay, cfg.RetryDelay)
	require.Equal("info", cfg.LogLevel)

	n, err := cfg.ResolveNetwork()
	require.NoError(err)
	require.Equal(registry.Default(), n)

	pk, err := cfg.PublicKeyBytes()
	require.NoError(err)
	require.Nil(pk)
	require.NotNil(cfg.NewLogger())

	tc := cfg.Tracing("fhevm-gateway")
	require.False(tc.Enabled)
	require.Equal("localhost:4317", tc.Endpoint)
	require.Equal("fhevm-gateway", tc.ServiceName)
	require.Equal(1.0, tc.SamplingRate)
}

func TestTracingOverrides(t *testing.T) {
	require := require.New(t)

	t.Setenv("FHEVM_OTEL_ENABLED", "true")
	cfg, err := load(t,
		"--otel-service-name", "custom",
		"--otel-sampling-rate", "0.25",
		"--otel-insecure",
	)
	require.NoError(err)

	tc := cfg.Tracing("fhevm-api")
	require.True(tc.Enabled)
	require.True(tc.Insecure)
	require.Equal("custom", tc.ServiceName)
	require.Equal(0.25, tc.SamplingRate)
}

func TestFlagsAndEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("FHEVM_GATEWAY_URL", "http://127.0.0.1:8080")
	t.Setenv("FHEVM_RETRY_ATTEMPTS", "5")

	cfg, err := load(t,
		"--network", "localhost",
		"--chain-id", "1337",
		"--public-key", "0a0b",
		"--timeout", "5s",
	)
	require.NoError(err)
	require.Equal("http://127.0.0.1:8080", cfg.GatewayURL)
	require.Equal(5, cfg.RetryAttempts)
	require.Equal(5*time.Second, cfg.Timeout)

	n, err := cfg.ResolveNetwork()
	require.NoError(err)
	require.Equal(uint64(1337), n.ChainID)
	require.Equal("http://127.0.0.1:8080", n.GatewayURL)
	require.True(n.HasGateway())

	pk, err := cfg.PublicKeyBytes()
	require.NoError(err)
	require.Equal([]byte{0x0a, 0x0b}, pk)
}

func TestConfigFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "fhevm.json")
	require.NoError(os.WriteFile(path, []byte(`{
		"network": "lux",
		"fhe-address": "0x4240000000000000000000000000000000000000",
		"log-level": "debug"
	}`), 0o600))

	cfg, err := load(t, "--config-file", path, "--log-level", "warn")
	require.NoError(err)
	require.Equal("lux", cfg.Network)
	require.Equal("warn", cfg.LogLevel)

	n, err := cfg.ResolveNetwork()
	require.NoError(err)
	require.Equal(common.HexToAddress(registry.FHECChain), n.FHEAddress)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(fs.Parse([]string{"--config-file", filepath.Join(t.TempDir(), "missing.json")}))
	_, err = BuildViper(fs)
	require.Error(err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "unknown network", args: []string{"--network", "mars"}},
		{name: "bad gateway url", args: []string{"--gateway-url", "gateway"}, wantErr: ErrInvalidURL},
		{name: "ftp rpc url", args: []string{"--rpc-url", "ftp://node"}, wantErr: ErrInvalidURL},
		{name: "bad fhe address", args: []string{"--fhe-address", "0x12"}, wantErr: ErrInvalidSetting},
		{name: "bad public key", args: []string{"--public-key", "zz"}, wantErr: ErrInvalidSetting},
		{name: "zero timeout", args: []string{"--timeout", "0s"}, wantErr: ErrInvalidSetting},
		{name: "no attempts", args: []string{"--retry-attempts", "0"}, wantErr: ErrInvalidSetting},
		{name: "bad log level", args: []string{"--log-level", "loud"}, wantErr: ErrInvalidSetting},
		{name: "sampling rate above one", args: []string{"--otel-sampling-rate", "1.5"}, wantErr: ErrInvalidSetting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
