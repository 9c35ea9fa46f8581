// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads CLI and server settings from flags, FHEVM_*
// environment variables, an optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	log "github.com/luxfi/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/internal/tracing"
	"github.com/luxfi/fhevm/registry"
)

const (
	defaultLogLevel    = "info"
	defaultAPIAddr     = ":3000"
	defaultGatewayAddr = ":8080"

	defaultOtelEndpoint = "localhost:4317"
)

var (
	ErrInvalidURL     = errors.New("invalid URL")
	ErrInvalidSetting = errors.New("invalid setting")

	logLevels = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	ConfigFile string `mapstructure:"config-file"`

	Network    string `mapstructure:"network"`
	ChainID    uint64 `mapstructure:"chain-id"`
	RPCURL     string `mapstructure:"rpc-url"`
	GatewayURL string `mapstructure:"gateway-url"`
	FHEAddress string `mapstructure:"fhe-address"`
	PublicKey  string `mapstructure:"public-key"`
	PrivateKey string `mapstructure:"private-key"`

	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry-attempts"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`

	LogLevel    string `mapstructure:"log-level"`
	APIAddr     string `mapstructure:"api-addr"`
	GatewayAddr string `mapstructure:"gateway-addr"`
	ACLAdmin    bool   `mapstructure:"acl-admin"`

	OtelEnabled      bool    `mapstructure:"otel-enabled"`
	OtelEndpoint     string  `mapstructure:"otel-endpoint"`
	OtelServiceName  string  `mapstructure:"otel-service-name"`
	OtelSamplingRate float64 `mapstructure:"otel-sampling-rate"`
	OtelInsecure     bool    `mapstructure:"otel-insecure"`
}

// AddFlags registers every config key on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON, YAML or TOML config file")
	fs.String(NetworkKey, registry.DefaultName, "Network name ("+strings.Join(registry.Names(), ", ")+")")
	fs.Uint64(ChainIDKey, 0, "Override the network chain id")
	fs.String(RPCURLKey, "", "Override the network RPC URL")
	fs.String(GatewayURLKey, "", "Override the network gateway URL")
	fs.String(FHEAddressKey, "", "Override the FHE coprocessor address")
	fs.String(PublicKeyKey, "", "FHE public key (hex); fetched from the gateway when empty")
	fs.String(PrivateKeyKey, "", "Signing key (hex) for user decryption")
	fs.Duration(TimeoutKey, fhevm.DefaultTimeout, "Request timeout")
	fs.Int(RetryAttemptsKey, fhevm.MaxRetryAttempts, "Attempts per gateway request")
	fs.Duration(RetryDelayKey, fhevm.RetryDelay, "Wait before the first retry")
	fs.String(LogLevelKey, defaultLogLevel, "Log level ("+strings.Join(logLevels, ", ")+")")
	fs.String(APIAddrKey, defaultAPIAddr, "Listen address of the HTTP API")
	fs.String(GatewayAddrKey, defaultGatewayAddr, "Listen address of the gateway")
	fs.Bool(ACLAdminKey, false, "Expose unauthenticated ACL routes on the gateway")
	fs.Bool(OtelEnabledKey, false, "Export traces over OTLP/gRPC")
	fs.String(OtelEndpointKey, defaultOtelEndpoint, "OTLP collector endpoint")
	fs.String(OtelServiceNameKey, "", "Service name reported with traces; defaults to the server name")
	fs.Float64(OtelSamplingRateKey, 1, "Fraction of root traces sampled")
	fs.Bool(OtelInsecureKey, false, "Connect to the collector without TLS")
}

// BuildViper binds fs and the environment, loading .env first. A config file
// is read only when one is named.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	// A missing .env file is fine; existing variables are not overwritten.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(NetworkKey, registry.DefaultName)
	v.SetDefault(TimeoutKey, fhevm.DefaultTimeout)
	v.SetDefault(RetryAttemptsKey, fhevm.MaxRetryAttempts)
	v.SetDefault(RetryDelayKey, fhevm.RetryDelay)
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(APIAddrKey, defaultAPIAddr)
	v.SetDefault(GatewayAddrKey, defaultGatewayAddr)
	v.SetDefault(OtelEndpointKey, defaultOtelEndpoint)
	v.SetDefault(OtelSamplingRateKey, 1.0)
}

// BuildConfig unmarshals v. Flags take precedence over the environment,
// which takes precedence over the config file.
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := registry.Lookup(c.Network); err != nil {
		return err
	}
	for key, raw := range map[string]string{
		RPCURLKey:     c.RPCURL,
		GatewayURLKey: c.GatewayURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.FHEAddress != "" && !common.IsHexAddress(c.FHEAddress) {
		return fmt.Errorf("%w: %s %q is not an address", ErrInvalidSetting, FHEAddressKey, c.FHEAddress)
	}
	if c.PublicKey != "" {
		if _, err := decodeHex(c.PublicKey); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidSetting, PublicKeyKey, err)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidSetting, TimeoutKey)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidSetting, RetryAttemptsKey)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, RetryDelayKey)
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidSetting, OtelSamplingRateKey)
	}
	if !validLogLevel(c.LogLevel) {
		return fmt.Errorf("%w: %s must be one of %s", ErrInvalidSetting, LogLevelKey, strings.Join(logLevels, ", "))
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range logLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// ResolveNetwork returns the configured network with overrides applied.
func (c Config) ResolveNetwork() (registry.Network, error) {
	n, err := registry.Lookup(c.Network)
	if err != nil {
		return registry.Network{}, err
	}
	if c.ChainID != 0 {
		n.ChainID = c.ChainID
	}
	if c.RPCURL != "" {
		n.RPCURL = c.RPCURL
	}
	if c.GatewayURL != "" {
		n.GatewayURL = c.GatewayURL
	}
	if c.FHEAddress != "" {
		n.FHEAddress = common.HexToAddress(c.FHEAddress)
	}
	return n, nil
}

// PublicKeyBytes decodes the configured public key; nil when unset.
func (c Config) PublicKeyBytes() ([]byte, error) {
	if c.PublicKey == "" {
		return nil, nil
	}
	return decodeHex(c.PublicKey)
}

// decodeHex accepts hex with or without the 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// Tracing returns the tracer settings for the named server.
func (c Config) Tracing(service string) tracing.Config {
	if c.OtelServiceName != "" {
		service = c.OtelServiceName
	}
	return tracing.Config{
		Enabled:      c.OtelEnabled,
		Endpoint:     c.OtelEndpoint,
		ServiceName:  service,
		SamplingRate: c.OtelSamplingRate,
		Insecure:     c.OtelInsecure,
	}
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() log.Logger {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.NewTestLogger(log.DebugLevel)
	case "warn":
		return log.NewTestLogger(log.WarnLevel)
	case "error":
		return log.NewTestLogger(log.ErrorLevel)
	default:
		return log.NewTestLogger(log.InfoLevel)
	}
}
