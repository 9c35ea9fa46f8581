// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/eip712"
)

var errNoPrivateKey = errors.New("user decryption needs a signing key; set --private-key or FHEVM_PRIVATE_KEY")

type decryptOutput struct {
	Handle  string `json:"handle,omitempty"`
	Success bool   `json:"success"`
	Type    string `json:"type,omitempty"`
	Value   string `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

func resultOutput(handle string, r decrypt.Result) decryptOutput {
	out := decryptOutput{Handle: handle, Success: r.Success, Error: r.Error}
	if r.Value != nil {
		out.Type = r.Value.Kind.String()
		out.Value = r.Value.String()
	}
	return out
}

func (e *env) wallet() (*eip712.Wallet, error) {
	if e.cfg.PrivateKey == "" {
		return nil, errNoPrivateKey
	}
	return eip712.WalletFromHex(e.cfg.PrivateKey, new(big.Int).SetUint64(e.network.ChainID))
}

func newDecryptCmd(e *env) *cobra.Command {
	var (
		handle, contract string
		public           bool
	)
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a handle through the gateway",
		Long:  "Decrypt a handle through the gateway. User decryptions are sealed to a\nfresh key that the signature covers and opened locally.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			gw, err := e.gateway()
			if err != nil {
				return err
			}
			d := decrypt.New(gw, e.log)

			var res decrypt.Result
			if public {
				res, err = d.PublicDecrypt(ctx, decrypt.PublicParams{Handle: handle, ContractAddress: contract})
			} else {
				w, werr := e.wallet()
				if werr != nil {
					return werr
				}
				res, err = d.UserDecrypt(ctx, decrypt.UserParams{
					Handle:          handle,
					ContractAddress: contract,
					Signer:          w,
					UserAddress:     w.Address().Hex(),
				})
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resultOutput("", res)); err != nil {
				return err
			}
			return res.Err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&handle, "handle", "", "Ciphertext handle (0x + 64 hex)")
	flags.StringVar(&contract, "contract", "", "Contract address the handle belongs to")
	flags.BoolVar(&public, "public", false, "Request public decryption (no signature)")
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("contract")
	return cmd
}

func newBatchDecryptCmd(e *env) *cobra.Command {
	var (
		handles  []string
		contract string
	)
	cmd := &cobra.Command{
		Use:   "batch-decrypt",
		Short: "Decrypt several handles with one signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			gw, err := e.gateway()
			if err != nil {
				return err
			}
			w, err := e.wallet()
			if err != nil {
				return err
			}

			res, err := decrypt.New(gw, e.log).BatchDecrypt(ctx, decrypt.BatchParams{
				Handles:         handles,
				ContractAddress: contract,
				Signer:          w,
				UserAddress:     w.Address().Hex(),
			})
			if err != nil {
				return err
			}

			out := struct {
				Success bool            `json:"success"`
				Results []decryptOutput `json:"results"`
				Error   string          `json:"error,omitempty"`
			}{Success: res.Success, Error: res.Error}
			for i, pt := range res.Value {
				r := fhevm.Failed[*fhevm.Plaintext](nil)
				if pt != nil {
					r = fhevm.Succeeded(pt)
				}
				out.Results = append(out.Results, resultOutput(handles[i], r))
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return res.Err
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&handles, "handles", nil, "Comma separated ciphertext handles")
	flags.StringVar(&contract, "contract", "", "Contract address the handles belong to")
	_ = cmd.MarkFlagRequired("handles")
	_ = cmd.MarkFlagRequired("contract")
	return cmd
}
