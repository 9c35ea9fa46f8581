// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client holds the initialized FHE instance that encryption calls
// are dispatched to. A Client is passed explicitly to every call site.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/luxfi/log"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/registry"
)

var ErrNoPublicKeySource = errors.New("Public key not provided and no gateway URL configured")

// KeyFetcher retrieves the network FHE public key, usually from a gateway.
type KeyFetcher interface {
	FetchPublicKey(ctx context.Context) ([]byte, error)
}

// InstanceFactory builds the FHE instance once the public key is known.
type InstanceFactory func(ctx context.Context, network registry.Network, publicKey []byte) (fhevm.Instance, error)

// Config of a Client. A zero Network selects the default network.
type Config struct {
	Network   registry.Network
	PublicKey []byte
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Network: registry.Default(),
		Timeout: fhevm.DefaultTimeout,
	}
}

type Option func(*Client)

func WithKeyFetcher(f KeyFetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

func WithInstanceFactory(f InstanceFactory) Option {
	return func(c *Client) { c.factory = f }
}

func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client owns at most one FHE instance for its lifetime.
type Client struct {
	config  Config
	log     log.Logger
	fetcher KeyFetcher
	factory InstanceFactory

	mu        sync.RWMutex
	instance  fhevm.Instance
	publicKey []byte
}

func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Network.ChainID == 0 {
		cfg.Network = def.Network
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	c := &Client{config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.NewTestLogger(log.InfoLevel)
	}
	return c
}

// Init resolves the public key and creates the FHE instance. Calling Init on
// an initialized client is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instance != nil {
		return nil
	}
	if c.factory == nil {
		return fmt.Errorf("Failed to initialize FHEVM client: %w", errors.New("no instance factory configured"))
	}

	publicKey := c.config.PublicKey
	if len(publicKey) == 0 {
		if c.fetcher == nil {
			return fmt.Errorf("Failed to initialize FHEVM client: %w", ErrNoPublicKeySource)
		}
		fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		pk, err := c.fetcher.FetchPublicKey(fetchCtx)
		if err != nil {
			return fmt.Errorf("Failed to initialize FHEVM client: %w", err)
		}
		publicKey = pk
	}

	instance, err := c.factory(ctx, c.config.Network, publicKey)
	if err != nil {
		return fmt.Errorf("Failed to initialize FHEVM client: %w", err)
	}

	c.instance = instance
	c.publicKey = publicKey
	c.log.Info("FHEVM client initialized",
		log.Stringer("network", c.config.Network),
		log.Int("publicKeySize", len(publicKey)),
	)
	return nil
}

// Instance returns the FHE instance, or UninitializedClient before Init.
func (c *Client) Instance() (fhevm.Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.instance == nil {
		return nil, &fhevm.Error{Code: fhevm.UninitializedClient, Op: "instance", Msg: "FHEVM client not initialized. Call Init() first."}
	}
	return c.instance, nil
}

func (c *Client) PublicKey() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.publicKey == nil {
		return nil, &fhevm.Error{Code: fhevm.UninitializedClient, Op: "public key", Msg: "FHEVM client not initialized. Call Init() first."}
	}
	return c.publicKey, nil
}

func (c *Client) Config() Config {
	return c.config
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instance != nil
}

// Create builds and initializes a Client.
func Create(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	c := New(cfg, opts...)
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// StaticInstance returns a factory that always yields instance. It is the
// usual wiring when the process owns the FHE engine.
func StaticInstance(instance fhevm.Instance) InstanceFactory {
	return func(context.Context, registry.Network, []byte) (fhevm.Instance, error) {
		if instance == nil {
			return nil, errors.New("nil instance")
		}
		return instance, nil
	}
}
