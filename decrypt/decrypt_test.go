// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/eip712"
	"github.com/luxfi/fhevm/seal"
)

const (
	contractHex = "0x00000000000000000000000000000000000000aa"
	h1          = "0x1111111111111111111111111111111111111111111111111111111111111111"
	h3          = "0x3333333333333333333333333333333333333333333333333333333333333333"
)

var chainID = big.NewInt(31337)

// fakeAuthority returns the low byte of the handle as a uint8 and records
// every request.
type fakeAuthority struct {
	mu      sync.Mutex
	user    []UserRequest
	public  []PublicRequest
	err     error
	sealBad bool
	clear   bool
}

func (a *fakeAuthority) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.user) + len(a.public)
}

func (a *fakeAuthority) UserDecrypt(_ context.Context, req UserRequest) (*Response, error) {
	a.mu.Lock()
	a.user = append(a.user, req)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}

	pt := fhevm.NewPlaintext(fhevm.Uint8, uint256.NewInt(uint64(req.Handle[31])))
	if len(req.PublicKey) == 0 {
		return nil, errors.New("public key is required")
	}
	if a.clear {
		return &Response{Kind: pt.Kind, Value: pt.Value}, nil
	}
	aad := seal.AAD(req.Handle, req.UserAddress)
	if a.sealBad {
		aad = nil
	}
	sealed, err := seal.Seal(req.PublicKey, EncodePlaintext(pt), aad)
	if err != nil {
		return nil, err
	}
	return &Response{Sealed: sealed}, nil
}

func (a *fakeAuthority) PublicDecrypt(_ context.Context, req PublicRequest) (*Response, error) {
	a.mu.Lock()
	a.public = append(a.public, req)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &Response{Kind: fhevm.Bool, Value: uint256.NewInt(1)}, nil
}

type chainlessSigner struct{}

func (chainlessSigner) SignTypedData(context.Context, *eip712.TypedData) ([]byte, error) {
	return nil, errors.New("unexpected signing")
}

func (chainlessSigner) ChainID(context.Context) (*big.Int, error) { return nil, nil }

type rejectingSigner struct{ chain *big.Int }

func (rejectingSigner) SignTypedData(context.Context, *eip712.TypedData) ([]byte, error) {
	return nil, errors.New("user rejected request")
}

func (s rejectingSigner) ChainID(context.Context) (*big.Int, error) { return s.chain, nil }

func newWallet(t *testing.T) *eip712.Wallet {
	t.Helper()
	w, err := eip712.GenerateWallet(chainID)
	require.NoError(t, err)
	return w
}

func TestUserDecrypt(t *testing.T) {
	require := require.New(t)

	auth := &fakeAuthority{}
	d := New(auth, nil)
	w := newWallet(t)

	res, err := d.UserDecrypt(context.Background(), UserParams{
		Handle:          h1,
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(err)
	require.True(res.Success)
	require.Empty(res.Error)
	require.Equal(uint64(0x11), res.Value.Uint64())

	require.Len(auth.user, 1)
	req := auth.user[0]
	require.Equal(0, req.ChainID.Cmp(chainID))

	require.NotEmpty(req.PublicKey)

	td := eip712.DecryptionRequest(req.Handle, req.ContractAddress, req.UserAddress, req.PublicKey, req.ChainID)
	signer, err := eip712.Recover(td, req.Signature)
	require.NoError(err)
	require.Equal(w.Address(), signer)

	// The signature does not carry over to another sealing key.
	other, err := seal.GenerateKeypair()
	require.NoError(err)
	td = eip712.DecryptionRequest(req.Handle, req.ContractAddress, req.UserAddress, other.PublicKey(), req.ChainID)
	signer, err = eip712.Recover(td, req.Signature)
	if err == nil {
		require.NotEqual(w.Address(), signer)
	}
}

func TestUserDecryptSealed(t *testing.T) {
	require := require.New(t)

	kp, err := seal.GenerateKeypair()
	require.NoError(err)
	w := newWallet(t)
	params := UserParams{
		Handle:          h3,
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
		Keypair:         kp,
	}

	res, err := New(&fakeAuthority{}, nil).UserDecrypt(context.Background(), params)
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.Equal(uint64(0x33), res.Value.Uint64())

	res, err = New(&fakeAuthority{sealBad: true}, nil).UserDecrypt(context.Background(), params)
	require.NoError(err)
	require.False(res.Success)
	require.ErrorIs(res.Err, fhevm.ErrDecoding)
	require.True(strings.HasPrefix(res.Error, "Decryption failed: "))

	// A clear value in place of the sealed one is refused.
	res, err = New(&fakeAuthority{clear: true}, nil).UserDecrypt(context.Background(), params)
	require.NoError(err)
	require.False(res.Success)
	require.ErrorIs(res.Err, fhevm.ErrDecoding)
	require.Equal("Decryption failed: expected sealed response", res.Error)
}

func TestUserDecryptFailures(t *testing.T) {
	w := newWallet(t)

	tests := []struct {
		name      string
		params    UserParams
		authErr   error
		wantErr   error
		wantMsg   string
		wantCalls int
	}{
		{
			name:    "malformed handle",
			params:  UserParams{Handle: "0x1234", ContractAddress: contractHex, Signer: w, UserAddress: w.Address().Hex()},
			wantErr: fhevm.ErrValidation,
			wantMsg: "Decryption failed: Invalid handle format: 0x1234",
		},
		{
			name:    "bad contract",
			params:  UserParams{Handle: h1, ContractAddress: "0x12", Signer: w, UserAddress: w.Address().Hex()},
			wantErr: fhevm.ErrValidation,
			wantMsg: "Decryption failed: Invalid contract address: 0x12",
		},
		{
			name:    "bad user",
			params:  UserParams{Handle: h1, ContractAddress: contractHex, Signer: w, UserAddress: "bob"},
			wantErr: fhevm.ErrValidation,
			wantMsg: "Decryption failed: Invalid user address: bob",
		},
		{
			name:    "no chain id",
			params:  UserParams{Handle: h1, ContractAddress: contractHex, Signer: chainlessSigner{}, UserAddress: w.Address().Hex()},
			wantErr: fhevm.ErrMissingChainID,
			wantMsg: "Decryption failed: Unable to get chain ID from signer",
		},
		{
			name:    "signature rejected",
			params:  UserParams{Handle: h1, ContractAddress: contractHex, Signer: rejectingSigner{chainID}, UserAddress: w.Address().Hex()},
			wantErr: fhevm.ErrNetwork,
			wantMsg: "Decryption failed: user rejected request",
		},
		{
			name:      "authority error",
			params:    UserParams{Handle: h1, ContractAddress: contractHex, Signer: w, UserAddress: w.Address().Hex()},
			authErr:   errors.New("not allowed"),
			wantErr:   fhevm.ErrNetwork,
			wantMsg:   "Decryption failed: not allowed",
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			auth := &fakeAuthority{err: tt.authErr}
			res, err := New(auth, nil).UserDecrypt(context.Background(), tt.params)
			require.NoError(err)
			require.False(res.Success)
			require.Nil(res.Value)
			require.Equal(tt.wantMsg, res.Error)
			require.ErrorIs(res.Err, tt.wantErr)
			require.Equal(tt.wantCalls, auth.calls())

			_, err = res.Unwrap()
			require.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestMissingParameters(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	_, err := New(&fakeAuthority{}, nil).UserDecrypt(ctx, UserParams{Handle: h1, ContractAddress: contractHex})
	require.ErrorIs(err, fhevm.ErrMissingParameter)

	_, err = New(nil, nil).UserDecrypt(ctx, UserParams{Handle: h1, ContractAddress: contractHex, Signer: newWallet(t)})
	require.ErrorIs(err, fhevm.ErrMissingParameter)

	_, err = New(nil, nil).PublicDecrypt(ctx, PublicParams{Handle: h1, ContractAddress: contractHex})
	require.ErrorIs(err, fhevm.ErrMissingParameter)

	_, err = New(&fakeAuthority{}, nil).BatchDecrypt(ctx, BatchParams{Handles: []string{h1}, ContractAddress: contractHex})
	require.ErrorIs(err, fhevm.ErrMissingParameter)
}

func TestPublicDecrypt(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	auth := &fakeAuthority{}
	d := New(auth, nil)

	res, err := d.PublicDecrypt(ctx, PublicParams{Handle: h1, ContractAddress: contractHex, Provider: newWallet(t)})
	require.NoError(err)
	require.True(res.Success)
	require.True(res.Value.Bool())
	require.Len(auth.public, 1)
	require.Equal(0, auth.public[0].ChainID.Cmp(chainID))

	res, err = d.PublicDecrypt(ctx, PublicParams{Handle: "nope", ContractAddress: contractHex})
	require.NoError(err)
	require.False(res.Success)
	require.Equal("Public decryption failed: Invalid handle format: nope", res.Error)
	require.Len(auth.public, 1)

	auth.err = errors.New("gateway unreachable")
	res, err = d.PublicDecrypt(ctx, PublicParams{Handle: h1, ContractAddress: contractHex})
	require.NoError(err)
	require.False(res.Success)
	require.Equal("Public decryption failed: gateway unreachable", res.Error)
}

func TestBatchDecrypt(t *testing.T) {
	require := require.New(t)

	auth := &fakeAuthority{}
	w := newWallet(t)
	const h2 = "0xdeadbeef"

	res, err := New(auth, nil).BatchDecrypt(context.Background(), BatchParams{
		Handles:         []string{h1, h2, h3},
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(err)
	require.False(res.Success)
	require.Len(res.Value, 3)
	require.Equal(uint64(0x11), res.Value[0].Uint64())
	require.Nil(res.Value[1])
	require.Equal(uint64(0x33), res.Value[2].Uint64())
	require.Equal("Decryption failed: Invalid handle format: "+h2, res.Error)
	require.ErrorIs(res.Err, fhevm.ErrValidation)
	require.Equal(2, auth.calls())
}

func TestBatchDecryptJoinsErrors(t *testing.T) {
	require := require.New(t)

	w := newWallet(t)
	res, err := New(&fakeAuthority{}, nil).BatchDecrypt(context.Background(), BatchParams{
		Handles:         []string{"0x01", h1, "0x02"},
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(err)
	require.False(res.Success)
	require.Equal(
		"Decryption failed: Invalid handle format: 0x01; Decryption failed: Invalid handle format: 0x02",
		res.Error,
	)
	require.NotNil(res.Value[1])
}

func TestBatchDecryptAllSucceed(t *testing.T) {
	require := require.New(t)

	w := newWallet(t)
	res, err := New(&fakeAuthority{}, nil).BatchDecrypt(context.Background(), BatchParams{
		Handles:         []string{h1, h3},
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(err)
	require.True(res.Success)
	require.Empty(res.Error)
	require.NoError(res.Err)
	require.Len(res.Value, 2)
}

func TestBatchDecryptEmpty(t *testing.T) {
	require := require.New(t)

	auth := &fakeAuthority{}
	res, err := New(auth, nil).BatchDecrypt(context.Background(), BatchParams{
		ContractAddress: contractHex,
		Signer:          newWallet(t),
	})
	require.NoError(err)
	require.False(res.Success)
	require.Equal("Handles must be a non-empty array", res.Error)
	require.Zero(auth.calls())
}

func TestIsEncrypted(t *testing.T) {
	require.True(t, IsEncrypted(h1))
	require.False(t, IsEncrypted("0x1234"))
	require.False(t, IsEncrypted(strings.TrimPrefix(h1, "0x")))
}

func TestPlaintextCodec(t *testing.T) {
	require := require.New(t)

	pt := fhevm.NewPlaintext(fhevm.Address, new(uint256.Int).SetBytes20(common.HexToAddress(contractHex).Bytes()))
	got, err := DecodePlaintext(EncodePlaintext(pt))
	require.NoError(err)
	require.Equal(pt.Kind, got.Kind)
	require.Equal(pt.Address(), got.Address())

	_, err = DecodePlaintext([]byte{1})
	require.ErrorIs(err, fhevm.ErrDecoding)

	bad := EncodePlaintext(fhevm.NewPlaintext(fhevm.Uint8, uint256.NewInt(300)))
	_, err = DecodePlaintext(bad)
	require.ErrorIs(err, fhevm.ErrDecoding)
}

func TestDecryptSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	d := New(&fakeAuthority{}, nil)
	w := newWallet(t)

	_, err := d.BatchDecrypt(context.Background(), BatchParams{
		Handles:         []string{h1, "0x01"},
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	byHandle := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		require.Equal(t, "batch decrypt", s.Name())
		for _, kv := range s.Attributes() {
			if kv.Key == "fhevm.handle" {
				byHandle[kv.Value.AsString()] = s
			}
		}
	}
	require.Equal(t, codes.Unset, byHandle[h1].Status().Code)
	require.Equal(t, codes.Error, byHandle["0x01"].Status().Code)
	require.Equal(t, "Decryption failed: Invalid handle format: 0x01", byHandle["0x01"].Status().Description)
}
