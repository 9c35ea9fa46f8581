// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"math/big"

	log "github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm/api"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/internal/httputil"
	"github.com/luxfi/fhevm/internal/tracing"
)

// startTracing installs the tracer provider for service and returns the
// function that flushes it.
func (e *env) startTracing(ctx context.Context, service string) (func(), error) {
	tp, err := tracing.Init(ctx, e.cfg.Tracing(service))
	if err != nil || tp == nil {
		return func() {}, err
	}
	e.log.Info("tracing enabled", log.String("endpoint", e.cfg.OtelEndpoint))
	return func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("failed to shut down tracer", log.Err(err))
		}
	}, nil
}

func newGatewayCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Decryption gateway",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run a gateway holding a freshly generated FHE key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stop, err := e.startTracing(cmd.Context(), "fhevm-gateway")
			if err != nil {
				return err
			}
			defer stop()

			engine, err := fhe.NewEngine()
			if err != nil {
				return err
			}
			srv, err := gateway.NewServer(gateway.Config{
				ChainID:  new(big.Int).SetUint64(e.network.ChainID),
				Engine:   engine,
				Logger:   e.log,
				ACLAdmin: e.cfg.ACLAdmin,
			})
			if err != nil {
				return err
			}
			e.log.Info("gateway ready",
				log.String("network", e.network.Name),
				log.Int("publicKeyBytes", len(engine.PublicKey())),
			)
			return httputil.ListenAndServe(cmd.Context(), e.cfg.GatewayAddr, srv.Handler(), e.log)
		},
	})
	return cmd
}

func newAPICmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "HTTP API for encryption and decryption",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. With a gateway configured, encryption, decryption and key
refresh go through it; otherwise values are encrypted by an in-process engine
that also serves encrypted computation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stop, err := e.startTracing(ctx, "fhevm-api")
			if err != nil {
				return err
			}
			defer stop()

			cfg := api.Config{Logger: e.log}

			if gw, err := e.gateway(); err == nil {
				c, err := e.remoteClient(ctx, gw)
				if err != nil {
					return err
				}
				cfg.Client = c
				cfg.Decryptor = decrypt.New(gw, e.log)
				cfg.Keys = gw
			} else {
				c, engine, err := e.localClient(ctx)
				if err != nil {
					return err
				}
				cfg.Client = c
				cfg.Engine = engine
				e.log.Warn("no gateway configured, decryption disabled",
					log.String("network", e.network.Name),
				)
			}

			return httputil.ListenAndServe(ctx, e.cfg.APIAddr, api.NewServer(cfg).Handler(), e.log)
		},
	})
	return cmd
}
