// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"

	// Environment variables are the upper-cased keys with this prefix,
	// e.g. FHEVM_GATEWAY_URL.
	EnvPrefix = "FHEVM"

	// Network keys
	NetworkKey    = "network"
	ChainIDKey    = "chain-id"
	RPCURLKey     = "rpc-url"
	GatewayURLKey = "gateway-url"
	FHEAddressKey = "fhe-address"
	PublicKeyKey  = "public-key"
	PrivateKeyKey = "private-key"

	// Client keys
	TimeoutKey       = "timeout"
	RetryAttemptsKey = "retry-attempts"
	RetryDelayKey    = "retry-delay"

	// Server keys
	LogLevelKey    = "log-level"
	APIAddrKey     = "api-addr"
	GatewayAddrKey = "gateway-addr"
	ACLAdminKey    = "acl-admin"

	// Tracing keys
	OtelEnabledKey      = "otel-enabled"
	OtelEndpointKey     = "otel-endpoint"
	OtelServiceNameKey  = "otel-service-name"
	OtelSamplingRateKey = "otel-sampling-rate"
	OtelInsecureKey     = "otel-insecure"
)
