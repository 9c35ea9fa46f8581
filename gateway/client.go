// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/client"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/internal/httputil"
	"github.com/luxfi/fhevm/registry"
	"github.com/luxfi/fhevm/utils"
)

var (
	_ decrypt.Authority = (*Client)(nil)
	_ client.KeyFetcher = (*Client)(nil)
)

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRetry sets how many times a request is attempted and the wait before
// the first retry.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

func WithClientLogger(l log.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client talks to a gateway over HTTP. Transport errors and 5xx responses
// are retried; 4xx responses are not.
type Client struct {
	baseURL  string
	http     *http.Client
	log      log.Logger
	attempts int
	delay    time.Duration
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: fhevm.DefaultTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		attempts: fhevm.MaxRetryAttempts,
		delay:    fhevm.RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.NewTestLogger(log.InfoLevel)
	}
	return c
}

func (c *Client) FetchPublicKey(ctx context.Context) ([]byte, error) {
	var resp PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, "/v1/keys/public", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.PublicKey) == 0 {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "gateway", "gateway returned an empty public key")
	}
	return resp.PublicKey, nil
}

func (c *Client) UserDecrypt(ctx context.Context, req decrypt.UserRequest) (*decrypt.Response, error) {
	var resp DecryptResponse
	err := c.do(ctx, http.MethodPost, "/v1/decrypt/user", UserDecryptRequest{
		Handle:          req.Handle,
		ContractAddress: req.ContractAddress,
		UserAddress:     req.UserAddress,
		ChainID:         req.ChainID,
		Signature:       req.Signature,
		PublicKey:       req.PublicKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.decode()
}

func (c *Client) PublicDecrypt(ctx context.Context, req decrypt.PublicRequest) (*decrypt.Response, error) {
	var resp DecryptResponse
	err := c.do(ctx, http.MethodPost, "/v1/decrypt/public", PublicDecryptRequest{
		Handle:          req.Handle,
		ContractAddress: req.ContractAddress,
		ChainID:         req.ChainID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.decode()
}

type RegisterOptions struct {
	ContractAddress common.Address
	UserAddress     common.Address
	Public          bool
	Allow           []common.Address
}

// Register publishes an input whose proof was issued by the gateway engine and
// returns its handles.
func (c *Client) Register(ctx context.Context, in *fhevm.EncryptedInput, opts RegisterOptions) ([]common.Hash, error) {
	if in == nil || len(in.Data) == 0 {
		return nil, fhevm.Errorf(fhevm.MissingParameter, "register", "encrypted input is required")
	}
	var resp InputResponse
	err := c.do(ctx, http.MethodPost, "/v1/inputs", InputRequest{
		ContractAddress: opts.ContractAddress,
		UserAddress:     opts.UserAddress,
		Data:            in.Data,
		Signature:       in.Signature,
		Public:          opts.Public,
		Allow:           opts.Allow,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Handles, nil
}

// Instance returns an fhevm.Instance whose inputs are encrypted and
// registered by the gateway.
func (c *Client) Instance(publicKey []byte) fhevm.Instance {
	return &remoteInstance{client: c, publicKey: publicKey}
}

// InstanceFactory plugs the gateway into client.Client initialization.
func (c *Client) InstanceFactory() client.InstanceFactory {
	return func(_ context.Context, _ registry.Network, publicKey []byte) (fhevm.Instance, error) {
		return c.Instance(publicKey), nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fhevm.WrapError(fhevm.EncodingFailure, "gateway", err, "failed to encode request")
		}
		body = b
	}

	return utils.WithMaxRetries(ctx, c.log, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return utils.Permanent(fhevm.WrapError(fhevm.NetworkFailure, "gateway", err, "invalid gateway request"))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fhevm.WrapError(fhevm.NetworkFailure, "gateway", err, "%s %s", method, path)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			var e httputil.ErrorResponse
			_ = json.NewDecoder(resp.Body).Decode(&e)
			if e.Error == "" {
				e.Error = resp.Status
			}
			err := fhevm.Errorf(fhevm.NetworkFailure, "gateway", "%s", e.Error)
			if resp.StatusCode < http.StatusInternalServerError {
				return utils.Permanent(err)
			}
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return utils.Permanent(fhevm.WrapError(fhevm.DecodingFailure, "gateway", err, "malformed gateway response"))
		}
		return nil
	}, c.attempts, c.delay)
}

func (r DecryptResponse) decode() (*decrypt.Response, error) {
	if len(r.Sealed) > 0 {
		return &decrypt.Response{Sealed: r.Sealed}, nil
	}
	kind, err := fhevm.ParseKind(r.Type)
	if err != nil {
		return nil, fhevm.WrapError(fhevm.DecodingFailure, "gateway", err, "malformed gateway response")
	}
	v, err := parseValue(kind, r.Value)
	if err != nil {
		return nil, fhevm.WrapError(fhevm.DecodingFailure, "gateway", err, "malformed gateway response")
	}
	return &decrypt.Response{Kind: kind, Value: v}, nil
}

type remoteInstance struct {
	client    *Client
	publicKey []byte
}

func (i *remoteInstance) PublicKey() []byte {
	return i.publicKey
}

func (i *remoteInstance) CreateEncryptedInput(contract, user common.Address) fhevm.InputBuilder {
	return &remoteBuilder{client: i.client, contract: contract, user: user}
}

type remoteBuilder struct {
	client   *Client
	contract common.Address
	user     common.Address
	values   []Value
}

func (b *remoteBuilder) add(kind fhevm.Kind, v *uint256.Int) {
	b.values = append(b.values, Value{Kind: kind, Value: v.Dec()})
}

func (b *remoteBuilder) Add8(v uint8)          { b.add(fhevm.Uint8, uint256.NewInt(uint64(v))) }
func (b *remoteBuilder) Add16(v uint16)        { b.add(fhevm.Uint16, uint256.NewInt(uint64(v))) }
func (b *remoteBuilder) Add32(v uint32)        { b.add(fhevm.Uint32, uint256.NewInt(uint64(v))) }
func (b *remoteBuilder) Add64(v uint64)        { b.add(fhevm.Uint64, uint256.NewInt(v)) }
func (b *remoteBuilder) Add128(v *uint256.Int) { b.add(fhevm.Uint128, v) }
func (b *remoteBuilder) Add256(v *uint256.Int) { b.add(fhevm.Uint256, v) }

func (b *remoteBuilder) AddBool(v bool) {
	n := uint64(0)
	if v {
		n = 1
	}
	b.add(fhevm.Bool, uint256.NewInt(n))
}

func (b *remoteBuilder) AddAddress(v common.Address) {
	b.add(fhevm.Address, new(uint256.Int).SetBytes20(v.Bytes()))
}

func (b *remoteBuilder) Encrypt(ctx context.Context) (*fhevm.Ciphertext, error) {
	if len(b.values) == 0 {
		return nil, fhe.ErrNoInputs
	}
	var resp EncryptResponse
	err := b.client.do(ctx, http.MethodPost, "/v1/inputs/encrypt", EncryptRequest{
		ContractAddress: b.contract,
		UserAddress:     b.user,
		Values:          b.values,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &fhevm.Ciphertext{
		Data:      resp.Data,
		Signature: resp.Signature,
		Handles:   resp.Handles,
	}, nil
}
