// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/client"
	"github.com/luxfi/fhevm/encrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/utils"
)

var errNoUser = errors.New("gateway inputs need an owner; set --user or --private-key")

type encryptOutput struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Data   string `json:"data"`
	Length int    `json:"length"`
	Local  bool   `json:"local"`
}

// localClient initializes a client backed by an in-process engine.
func (e *env) localClient(ctx context.Context) (*client.Client, *fhe.Engine, error) {
	engine, err := fhe.NewEngine()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.Create(ctx, client.Config{
		Network:   e.network,
		PublicKey: engine.PublicKey(),
		Timeout:   e.cfg.Timeout,
	},
		client.WithInstanceFactory(client.StaticInstance(engine)),
		client.WithLogger(e.log),
	)
	if err != nil {
		return nil, nil, err
	}
	return c, engine, nil
}

// remoteClient initializes a client whose inputs are encrypted by gw.
func (e *env) remoteClient(ctx context.Context, gw *gateway.Client) (*client.Client, error) {
	publicKey, err := e.cfg.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	return client.Create(ctx, client.Config{
		Network:   e.network,
		PublicKey: publicKey,
		Timeout:   e.cfg.Timeout,
	},
		client.WithKeyFetcher(gw),
		client.WithInstanceFactory(gw.InstanceFactory()),
		client.WithLogger(e.log),
	)
}

func newEncryptCmd(e *env) *cobra.Command {
	var (
		kind, value, contract, user string
		local                       bool
	)
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a value for a contract",
		Long: `Encrypt a typed value for a contract. With a gateway configured the gateway
encrypts the input under the network key and registers it for the user; with
--local (or no gateway) the value is encrypted under a throwaway in-process key,
which is only useful for inspecting the encoding.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			gw, err := e.gateway()
			if err != nil {
				local = true
			}

			if user == "" && e.cfg.PrivateKey != "" {
				w, err := e.wallet()
				if err != nil {
					return err
				}
				user = w.Address().Hex()
			}
			if user == "" && !local {
				return errNoUser
			}

			var c *client.Client
			if local {
				c, _, err = e.localClient(ctx)
			} else {
				c, err = e.remoteClient(ctx, gw)
			}
			if err != nil {
				return err
			}

			var v any = value
			if kind == fhevm.Bool.String() {
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fhevm.Errorf(fhevm.ValidationError, "encrypt", "Value must be boolean or 0/1")
				}
				v = b
			}

			in, err := encrypt.EncryptNamed(ctx, c, v, kind, contract, user)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), encryptOutput{
				Type:   in.Kind.String(),
				Handle: in.Handle.Hex(),
				Data:   utils.FormatEncryptedData(hexutil.Encode(in.Data), 10),
				Length: len(in.Data),
				Local:  local,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kind, "type", "", "Encryption type (uint8, uint16, uint32, uint64, uint128, uint256, bool, address)")
	flags.StringVar(&value, "value", "", "Value to encrypt")
	flags.StringVar(&contract, "contract", "", "Contract address the input is bound to")
	flags.StringVar(&user, "user", "", "User address the input is bound to (default: the --private-key address)")
	flags.BoolVar(&local, "local", false, "Encrypt in process instead of through the gateway")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("contract")
	return cmd
}
