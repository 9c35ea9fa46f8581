// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/client"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/eip712"
	"github.com/luxfi/fhevm/encrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/registry"
	"github.com/luxfi/fhevm/seal"
)

const contractHex = "0x00000000000000000000000000000000000000aa"

var (
	chainID = big.NewInt(31337)

	engineOnce sync.Once
	engine     *fhe.Engine
	engineErr  error
)

func testEngine(t *testing.T) *fhe.Engine {
	t.Helper()
	engineOnce.Do(func() { engine, engineErr = fhe.NewEngine() })
	require.NoError(t, engineErr)
	return engine
}

type harness struct {
	server *Server
	http   *httptest.Server
	gw     *Client
}

func newHarness(t *testing.T, aclAdmin bool) *harness {
	t.Helper()
	srv, err := NewServer(Config{
		ChainID:  chainID,
		Engine:   testEngine(t),
		DB:       memdb.New(),
		ACLAdmin: aclAdmin,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{
		server: srv,
		http:   ts,
		gw:     NewClient(ts.URL, WithRetry(1, time.Millisecond)),
	}
}

// encryptAs encrypts v as uint32 through a client wired to the gateway.
func (h *harness) encryptAs(t *testing.T, user common.Address, v uint32) common.Hash {
	t.Helper()
	c, err := client.Create(context.Background(), client.Config{Network: registry.Default()},
		client.WithKeyFetcher(h.gw),
		client.WithInstanceFactory(h.gw.InstanceFactory()),
	)
	require.NoError(t, err)

	in, err := encrypt.EncryptUint32(context.Background(), c, encrypt.Params{
		Value:           v,
		ContractAddress: contractHex,
		UserAddress:     user.Hex(),
	})
	require.NoError(t, err)
	require.Equal(t, fhevm.Uint32, in.Kind)
	return in.Handle
}

func newWallet(t *testing.T, chain *big.Int) *eip712.Wallet {
	t.Helper()
	w, err := eip712.GenerateWallet(chain)
	require.NoError(t, err)
	return w
}

func TestEncryptThenUserDecrypt(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, false)
	w := newWallet(t, chainID)

	handle := h.encryptAs(t, w.Address(), 42)
	kind, err := fhe.HandleKind(handle)
	require.NoError(err)
	require.Equal(fhevm.Uint32, kind)

	d := decrypt.New(h.gw, nil)
	res, err := d.UserDecrypt(context.Background(), decrypt.UserParams{
		Handle:          handle.Hex(),
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
	})
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.Equal(uint64(42), res.Value.Uint64())
	require.Equal(fhevm.Uint32, res.Value.Kind)

	kp, err := seal.GenerateKeypair()
	require.NoError(err)
	res, err = d.UserDecrypt(context.Background(), decrypt.UserParams{
		Handle:          handle.Hex(),
		ContractAddress: contractHex,
		Signer:          w,
		UserAddress:     w.Address().Hex(),
		Keypair:         kp,
	})
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.Equal(uint64(42), res.Value.Uint64())
}

func TestUserDecryptRejected(t *testing.T) {
	h := newHarness(t, false)
	owner := newWallet(t, chainID)
	handle := h.encryptAs(t, owner.Address(), 7)

	stranger := newWallet(t, chainID)
	otherChain := newWallet(t, big.NewInt(1))

	tests := []struct {
		name     string
		signer   decrypt.Signer
		user     common.Address
		contract string
		handle   string
		wantMsg  string
	}{
		{
			name:     "not on access list",
			signer:   stranger,
			user:     stranger.Address(),
			contract: contractHex,
			handle:   handle.Hex(),
			wantMsg:  "Decryption failed: " + ErrNotAllowed.Error(),
		},
		{
			name:     "signature for another user",
			signer:   stranger,
			user:     owner.Address(),
			contract: contractHex,
			handle:   handle.Hex(),
			wantMsg:  "Decryption failed: " + errInvalidSignature.Error(),
		},
		{
			name:     "wrong chain",
			signer:   otherChain,
			user:     otherChain.Address(),
			contract: contractHex,
			handle:   handle.Hex(),
			wantMsg:  "Decryption failed: " + errChainMismatch.Error(),
		},
		{
			name:     "wrong contract",
			signer:   owner,
			user:     owner.Address(),
			contract: "0x00000000000000000000000000000000000000bb",
			handle:   handle.Hex(),
			wantMsg:  "Decryption failed: " + ErrContractMissing.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			res, err := decrypt.New(h.gw, nil).UserDecrypt(context.Background(), decrypt.UserParams{
				Handle:          tt.handle,
				ContractAddress: tt.contract,
				Signer:          tt.signer,
				UserAddress:     tt.user.Hex(),
			})
			require.NoError(err)
			require.False(res.Success)
			require.Equal(tt.wantMsg, res.Error)
			require.ErrorIs(res.Err, fhevm.ErrNetwork)
		})
	}
}

func TestRegisterAndPublicDecrypt(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	contract := common.HexToAddress(contractHex)
	user := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	b := testEngine(t).CreateEncryptedInput(contract, user)
	b.AddBool(true)
	b.Add8(200)
	ct, err := b.Encrypt(ctx)
	require.NoError(err)
	in := &fhevm.EncryptedInput{Data: ct.Data, Signature: ct.Signature}

	handles, err := h.gw.Register(ctx, in, RegisterOptions{
		ContractAddress: contract,
		UserAddress:     user,
		Public:          true,
	})
	require.NoError(err)
	require.Equal(ct.Handles, handles)

	_, err = h.gw.Register(ctx, in, RegisterOptions{ContractAddress: contract, UserAddress: user})
	require.ErrorContains(err, ErrHandleExists.Error())

	d := decrypt.New(h.gw, nil)
	res, err := d.PublicDecrypt(ctx, decrypt.PublicParams{Handle: handles[0].Hex(), ContractAddress: contractHex})
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.True(res.Value.Bool())

	res, err = d.PublicDecrypt(ctx, decrypt.PublicParams{Handle: handles[1].Hex(), ContractAddress: contractHex})
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.Equal(uint64(200), res.Value.Uint64())

	private := h.encryptAs(t, user, 1)
	res, err = d.PublicDecrypt(ctx, decrypt.PublicParams{Handle: private.Hex(), ContractAddress: contractHex})
	require.NoError(err)
	require.False(res.Success)
	require.Equal("Public decryption failed: "+ErrNotPublic.Error(), res.Error)

	res, err = d.PublicDecrypt(ctx, decrypt.PublicParams{Handle: common.Hash{1}.Hex(), ContractAddress: contractHex})
	require.NoError(err)
	require.False(res.Success)
	require.Contains(res.Error, ErrUnknownHandle.Error())
}

func TestRegisterRejectsBadProof(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	contract := common.HexToAddress(contractHex)
	b := testEngine(t).CreateEncryptedInput(contract, common.Address{})
	b.Add16(9)
	ct, err := b.Encrypt(ctx)
	require.NoError(err)

	_, err = h.gw.Register(ctx, &fhevm.EncryptedInput{Data: ct.Data, Signature: ct.Signature}, RegisterOptions{
		ContractAddress: contract,
		UserAddress:     common.Address{1},
	})
	require.ErrorContains(err, fhe.ErrInvalidProof.Error())

	_, err = h.gw.Register(ctx, nil, RegisterOptions{})
	require.ErrorIs(err, fhevm.ErrMissingParameter)
}

func TestRegisterUnderAnotherUser(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	contract := common.HexToAddress(contractHex)
	victim := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	attacker := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	b := testEngine(t).CreateEncryptedInput(contract, victim)
	b.Add32(1234)
	ct, err := b.Encrypt(ctx)
	require.NoError(err)
	_, err = h.gw.Register(ctx, &fhevm.EncryptedInput{Data: ct.Data, Signature: ct.Signature}, RegisterOptions{
		ContractAddress: contract,
		UserAddress:     victim,
	})
	require.NoError(err)

	// The victim's ciphertext is public. Neither its proof nor an unkeyed
	// commitment the attacker computes lets it be registered again.
	forge := blake3.New()
	forge.Write([]byte("fhevm/input-proof/v1"))
	forge.Write(contract.Bytes())
	forge.Write(attacker.Bytes())
	forge.Write(ct.Data)
	forged := make([]byte, 32)
	_, _ = forge.Digest().Read(forged)

	for name, proof := range map[string][]byte{"victim proof": ct.Signature, "unkeyed": forged} {
		for _, public := range []bool{false, true} {
			_, err = h.gw.Register(ctx, &fhevm.EncryptedInput{Data: ct.Data, Signature: proof}, RegisterOptions{
				ContractAddress: contract,
				UserAddress:     attacker,
				Public:          public,
			})
			require.ErrorContains(err, fhe.ErrInvalidProof.Error(), name)

			attackerHandle := fhe.DeriveHandle(ct.Data, contract, attacker, 0, fhevm.Uint32)
			_, err = h.server.Store().Get(attackerHandle)
			require.ErrorIs(err, ErrUnknownHandle, name)
		}
	}
}

func TestRegisterIsAllOrNothing(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	h := newHarness(t, false)
	e := testEngine(t)

	contract := common.HexToAddress(contractHex)
	user := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	first := e.CreateEncryptedInput(contract, user)
	first.Add8(1)
	existing, err := first.Encrypt(ctx)
	require.NoError(err)
	_, err = h.gw.Register(ctx, &fhevm.EncryptedInput{Data: existing.Data, Signature: existing.Signature}, RegisterOptions{
		ContractAddress: contract,
		UserAddress:     user,
	})
	require.NoError(err)

	second := e.CreateEncryptedInput(contract, user)
	second.Add8(2)
	fresh, err := second.Encrypt(ctx)
	require.NoError(err)

	// Input 0 is already registered, input 1 is not.
	data := append(bytes.Clone(existing.Data), fresh.Data...)
	_, err = h.gw.Register(ctx, &fhevm.EncryptedInput{Data: data, Signature: e.Proof(data, contract, user)}, RegisterOptions{
		ContractAddress: contract,
		UserAddress:     user,
	})
	require.ErrorContains(err, ErrHandleExists.Error())

	_, err = h.server.Store().Get(fhe.DeriveHandle(fresh.Data, contract, user, 1, fhevm.Uint8))
	require.ErrorIs(err, ErrUnknownHandle)
}

func TestUserDecryptSealKeyIsSigned(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	h := newHarness(t, false)
	owner := newWallet(t, chainID)
	handle := h.encryptAs(t, owner.Address(), 99)
	contract := common.HexToAddress(contractHex)

	signed, err := seal.GenerateKeypair()
	require.NoError(err)
	sig, err := owner.SignTypedData(ctx, eip712.DecryptionRequest(handle, contract, owner.Address(), signed.PublicKey(), chainID))
	require.NoError(err)

	attacker, err := seal.GenerateKeypair()
	require.NoError(err)

	post := func(publicKey []byte) (int, DecryptResponse) {
		body, err := json.Marshal(UserDecryptRequest{
			Handle:          handle,
			ContractAddress: contract,
			UserAddress:     owner.Address(),
			ChainID:         chainID,
			Signature:       sig,
			PublicKey:       publicKey,
		})
		require.NoError(err)
		resp, err := http.Post(h.http.URL+"/v1/decrypt/user", "application/json", bytes.NewReader(body))
		require.NoError(err)
		defer resp.Body.Close()
		var out DecryptResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	status, _ := post(attacker.PublicKey())
	require.Equal(http.StatusUnauthorized, status)

	status, _ = post(nil)
	require.Equal(http.StatusBadRequest, status)

	status, out := post(signed.PublicKey())
	require.Equal(http.StatusOK, status)
	require.Empty(out.Value)
	opened, err := signed.Open(out.Sealed, seal.AAD(handle, owner.Address()))
	require.NoError(err)
	pt, err := decrypt.DecodePlaintext(opened)
	require.NoError(err)
	require.Equal(uint64(99), pt.Uint64())
}

func TestACLAdmin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	closed := newHarness(t, false)
	resp, err := http.Post(closed.http.URL+"/v1/acl/allow", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusNotFound, resp.StatusCode)

	h := newHarness(t, true)
	owner := newWallet(t, chainID)
	friend := newWallet(t, chainID)
	handle := h.encryptAs(t, owner.Address(), 5)

	err = h.gw.do(ctx, http.MethodPost, "/v1/acl/allow", ACLRequest{Handle: handle, Address: friend.Address()}, nil)
	require.NoError(err)

	res, err := decrypt.New(h.gw, nil).UserDecrypt(ctx, decrypt.UserParams{
		Handle:          handle.Hex(),
		ContractAddress: contractHex,
		Signer:          friend,
		UserAddress:     friend.Address().Hex(),
	})
	require.NoError(err)
	require.True(res.Success, res.Error)
	require.Equal(uint64(5), res.Value.Uint64())

	err = h.gw.do(ctx, http.MethodPost, "/v1/acl/public", ACLRequest{Handle: handle}, nil)
	require.NoError(err)
	rec, err := h.server.Store().Get(handle)
	require.NoError(err)
	require.True(rec.Public)
}

func TestFetchPublicKey(t *testing.T) {
	h := newHarness(t, false)
	pk, err := h.gw.FetchPublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, testEngine(t).PublicKey(), pk)
}

func TestClientRetries(t *testing.T) {
	require := require.New(t)

	var calls, status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(int(status.Load()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"publicKey":"0x0102","chainId":31337}`))
	}))
	defer ts.Close()

	gw := NewClient(ts.URL, WithRetry(3, time.Millisecond))
	pk, err := gw.FetchPublicKey(context.Background())
	require.NoError(err)
	require.Equal([]byte{1, 2}, pk)
	require.EqualValues(3, calls.Load())

	calls.Store(0)
	status.Store(http.StatusBadRequest)
	_, err = gw.FetchPublicKey(context.Background())
	require.ErrorIs(err, fhevm.ErrNetwork)
	require.EqualValues(1, calls.Load())
}

func TestStore(t *testing.T) {
	require := require.New(t)
	s := NewStore(memdb.New())

	contract := common.Address{0xaa}
	owner := common.Address{0x01}
	friend := common.Address{0x02}
	h := common.Hash{0x10}

	_, err := s.Get(h)
	require.ErrorIs(err, ErrUnknownHandle)
	require.ErrorIs(s.Allow(h, friend), ErrUnknownHandle)

	require.NoError(s.Put(h, &Record{Kind: fhevm.Uint8, Contract: contract, Owner: owner, Data: []byte{1}}))
	require.ErrorIs(s.Put(h, &Record{}), ErrHandleExists)

	fresh := common.Hash{0x11}
	require.ErrorIs(s.PutAll([]common.Hash{fresh, h}, []*Record{{}, {}}), ErrHandleExists)
	require.ErrorIs(s.PutAll([]common.Hash{fresh, fresh}, []*Record{{}, {}}), ErrHandleExists)
	_, err = s.Get(fresh)
	require.ErrorIs(err, ErrUnknownHandle)
	require.Error(s.PutAll([]common.Hash{fresh}, nil))

	rec, err := s.Get(h)
	require.NoError(err)
	require.NoError(rec.CanDecrypt(contract, owner))
	require.ErrorIs(rec.CanDecrypt(contract, friend), ErrNotAllowed)
	require.ErrorIs(rec.CanDecrypt(common.Address{0xbb}, owner), ErrContractMissing)

	require.NoError(s.Allow(h, friend))
	require.NoError(s.Allow(h, friend))
	require.NoError(s.MakePublic(h))

	rec, err = s.Get(h)
	require.NoError(err)
	require.Equal([]common.Address{friend}, rec.Allowed)
	require.True(rec.Public)
	require.NoError(rec.CanDecrypt(contract, friend))
	require.Equal(fhevm.Uint8, rec.Kind)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		kind    fhevm.Kind
		in      string
		want    uint64
		wantErr bool
	}{
		{kind: fhevm.Uint8, in: "255", want: 255},
		{kind: fhevm.Uint8, in: "256", wantErr: true},
		{kind: fhevm.Uint8, in: "0x0f", want: 15},
		{kind: fhevm.Uint16, in: "010", want: 10},
		{kind: fhevm.Bool, in: "2", wantErr: true},
		{kind: fhevm.Uint64, in: "-1", wantErr: true},
		{kind: fhevm.Uint32, in: "abc", wantErr: true},
		{kind: fhevm.Kind(99), in: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.in, func(t *testing.T) {
			v, err := parseValue(tt.kind, tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, uint256.NewInt(tt.want), v)
		})
	}
}
