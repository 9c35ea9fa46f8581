// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	log "github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm/config"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/registry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errNoGateway = errors.New("no gateway URL configured; set --gateway-url or choose a network with a gateway")

// env is the resolved configuration shared by subcommands.
type env struct {
	cfg     config.Config
	network registry.Network
	log     log.Logger
}

func (e *env) gateway() (*gateway.Client, error) {
	if !e.network.HasGateway() {
		return nil, errNoGateway
	}
	return gateway.NewClient(e.network.GatewayURL,
		gateway.WithRetry(e.cfg.RetryAttempts, e.cfg.RetryDelay),
		gateway.WithClientLogger(e.log),
	), nil
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "fhevm",
		Short: "Encrypt inputs for and decrypt results from FHE contracts",
		Long: `fhevm encrypts typed values for confidential smart contracts, requests
signed user or public decryption from a gateway, and runs the gateway and
HTTP API servers.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.NewConfig(v)
			if err != nil {
				return err
			}
			network, err := cfg.ResolveNetwork()
			if err != nil {
				return err
			}
			e.cfg, e.network, e.log = cfg, network, cfg.NewLogger()
			return nil
		},
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newEncryptCmd(e),
		newDecryptCmd(e),
		newBatchDecryptCmd(e),
		newKeysCmd(e),
		newNetworksCmd(),
		newGatewayCmd(e),
		newAPICmd(e),
		newVersionCmd(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
