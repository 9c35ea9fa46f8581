// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm/utils"
)

func newKeysCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Fetch the network FHE public key from the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := e.gateway()
			if err != nil {
				return err
			}
			pk, err := gw.FetchPublicKey(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"network":   e.network.Name,
				"chainId":   e.network.ChainID,
				"gateway":   e.network.GatewayURL,
				"publicKey": utils.FormatEncryptedData(hexutil.Encode(pk), 16),
				"size":      len(pk),
			})
		},
	}
}
