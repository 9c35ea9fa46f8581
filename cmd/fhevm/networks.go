// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm/registry"
)

type networkRow struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	ChainID    uint64 `json:"chainId"`
	RPCURL     string `json:"rpcUrl,omitempty"`
	GatewayURL string `json:"gatewayUrl,omitempty"`
}

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List known networks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := make([]networkRow, 0, len(registry.Networks))
			for _, key := range registry.Names() {
				n := registry.Networks[key]
				rows = append(rows, networkRow{
					Key:        key,
					Name:       n.Name,
					ChainID:    n.ChainID,
					RPCURL:     n.RPCURL,
					GatewayURL: n.GatewayURL,
				})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}
