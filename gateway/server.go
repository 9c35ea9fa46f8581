// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway serves the decryption authority: it stores registered
// ciphertexts with their access lists and releases plaintexts to signed,
// authorized requests.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/eip712"
	"github.com/luxfi/fhevm/encrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/internal/httputil"
	"github.com/luxfi/fhevm/seal"
)

// maxInputs is bounded by the index byte in a handle.
const maxInputs = 256

var (
	errChainMismatch    = errors.New("chain id does not match gateway")
	errInvalidSignature = errors.New("signature does not match user address")
	errMissingPublicKey = errors.New("publicKey is required for user decryption")
)

type Config struct {
	ChainID *big.Int
	Engine  *fhe.Engine
	// DB defaults to an in-memory database.
	DB     database.Database
	Logger log.Logger
	// ACLAdmin mounts the /v1/acl routes, which change access lists without
	// any authorization. Only enable it for local development.
	ACLAdmin bool
}

type Server struct {
	chainID  *big.Int
	engine   *fhe.Engine
	store    *Store
	log      log.Logger
	aclAdmin bool
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("gateway requires an FHE engine")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("gateway requires a chain id")
	}
	if cfg.DB == nil {
		cfg.DB = memdb.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Server{
		chainID:  new(big.Int).Set(cfg.ChainID),
		engine:   cfg.Engine,
		store:    NewStore(cfg.DB),
		log:      cfg.Logger,
		aclAdmin: cfg.ACLAdmin,
	}, nil
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(httputil.Middleware(s.log))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/keys/public", s.publicKey)
		r.Post("/inputs", s.registerInputs)
		r.Post("/inputs/encrypt", s.encryptInputs)
		r.Post("/decrypt/user", s.userDecrypt)
		r.Post("/decrypt/public", s.publicDecrypt)
		if s.aclAdmin {
			r.Post("/acl/allow", s.allow)
			r.Post("/acl/public", s.makePublic)
		}
	})
	return otelhttp.NewHandler(r, "fhevm-gateway")
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publicKey(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, PublicKeyResponse{
		PublicKey: s.engine.PublicKey(),
		ChainID:   s.chainID,
	})
}

func (s *Server) registerInputs(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Data) == 0 {
		httputil.Error(w, http.StatusBadRequest, "data is required")
		return
	}
	if err := s.engine.VerifyProof(req.Data, req.Signature, req.ContractAddress, req.UserAddress); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	handles, err := s.register(req.Data, req.ContractAddress, req.UserAddress, req.Public, req.Allow)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, InputResponse{Handles: handles})
}

func (s *Server) encryptInputs(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Values) == 0 {
		httputil.Error(w, http.StatusBadRequest, fhe.ErrNoInputs.Error())
		return
	}
	if len(req.Values) > maxInputs {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("at most %d values per input", maxInputs))
		return
	}

	b := s.engine.CreateEncryptedInput(req.ContractAddress, req.UserAddress)
	for i, v := range req.Values {
		n, err := parseValue(v.Kind, v.Value)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("value %d: %v", i, err))
			return
		}
		if err := encrypt.Add(b, v.Kind, n); err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	ct, err := b.Encrypt(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	handles, err := s.register(ct.Data, req.ContractAddress, req.UserAddress, req.Public, req.Allow)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, EncryptResponse{
		Data:      ct.Data,
		Signature: ct.Signature,
		Handles:   handles,
	})
}

func (s *Server) register(data []byte, contract, user common.Address, public bool, allow []common.Address) ([]common.Hash, error) {
	inputs, err := fhe.SplitInputs(data)
	if err != nil {
		return nil, err
	}
	if len(inputs) > maxInputs {
		return nil, fmt.Errorf("%w: too many inputs", fhe.ErrInvalidCiphertext)
	}

	handles := make([]common.Hash, len(inputs))
	records := make([]*Record, len(inputs))
	for i, ct := range inputs {
		kind, err := fhe.FrameKind(ct)
		if err != nil {
			return nil, err
		}
		handles[i] = fhe.DeriveHandle(ct, contract, user, uint8(i), kind)
		records[i] = &Record{
			Kind:     kind,
			Contract: contract,
			Owner:    user,
			Data:     ct,
			Public:   public,
			Allowed:  allow,
		}
	}
	if err := s.store.PutAll(handles, records); err != nil {
		return nil, err
	}

	s.log.Debug("registered inputs",
		log.Stringer("contract", contract),
		log.Stringer("user", user),
		log.Int("count", len(handles)),
	)
	return handles, nil
}

func (s *Server) userDecrypt(w http.ResponseWriter, r *http.Request) {
	var req UserDecryptRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ChainID == nil || req.ChainID.Cmp(s.chainID) != 0 {
		httputil.Error(w, http.StatusBadRequest, errChainMismatch.Error())
		return
	}

	// The plaintext only ever leaves sealed to the key the user signed.
	if len(req.PublicKey) == 0 {
		httputil.Error(w, http.StatusBadRequest, errMissingPublicKey.Error())
		return
	}

	td := eip712.DecryptionRequest(req.Handle, req.ContractAddress, req.UserAddress, req.PublicKey, req.ChainID)
	signer, err := eip712.Recover(td, req.Signature)
	if err != nil || signer != req.UserAddress {
		httputil.Error(w, http.StatusUnauthorized, errInvalidSignature.Error())
		return
	}

	rec, err := s.store.Get(req.Handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := rec.CanDecrypt(req.ContractAddress, req.UserAddress); err != nil {
		s.writeError(w, r, err)
		return
	}

	pt, err := s.decryptRecord(r.Context(), req.Handle, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sealed, err := seal.Seal(req.PublicKey, decrypt.EncodePlaintext(pt), seal.AAD(req.Handle, req.UserAddress))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, DecryptResponse{Sealed: sealed})
}

func (s *Server) decryptRecord(ctx context.Context, handle common.Hash, rec *Record) (*fhevm.Plaintext, error) {
	_, span := otel.Tracer("github.com/luxfi/fhevm/gateway").Start(ctx, "fhe decrypt",
		trace.WithAttributes(
			attribute.String("fhevm.handle", handle.Hex()),
			attribute.String("fhevm.type", rec.Kind.String()),
		),
	)
	defer span.End()

	pt, err := s.engine.Decrypt(rec.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decryption failed")
	}
	return pt, err
}

func (s *Server) publicDecrypt(w http.ResponseWriter, r *http.Request) {
	var req PublicDecryptRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ChainID != nil && req.ChainID.Cmp(s.chainID) != 0 {
		httputil.Error(w, http.StatusBadRequest, errChainMismatch.Error())
		return
	}

	rec, err := s.store.Get(req.Handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec.Contract != req.ContractAddress {
		s.writeError(w, r, ErrContractMissing)
		return
	}
	if !rec.Public {
		s.writeError(w, r, ErrNotPublic)
		return
	}

	pt, err := s.decryptRecord(r.Context(), req.Handle, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, plainResponse(pt))
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) {
	var req ACLRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Allow(req.Handle, req.Address); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) makePublic(w http.ResponseWriter, r *http.Request) {
	var req ACLRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.MakePublic(req.Handle); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownHandle), errors.Is(err, ErrContractMissing):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrNotPublic):
		status = http.StatusForbidden
	case errors.Is(err, ErrHandleExists):
		status = http.StatusConflict
	case errors.Is(err, fhe.ErrInvalidCiphertext),
		errors.Is(err, fhe.ErrInvalidProof),
		errors.Is(err, fhe.ErrValueOverflow),
		errors.Is(err, seal.ErrInvalidPublicKey):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.Error("gateway request failed",
			log.String("requestID", httputil.RequestID(r.Context())),
			log.String("path", r.URL.Path),
			log.Err(err),
		)
		httputil.Error(w, status, "internal error")
		return
	}
	httputil.Error(w, status, err.Error())
}

func plainResponse(pt *fhevm.Plaintext) DecryptResponse {
	return DecryptResponse{Type: pt.Kind.String(), Value: pt.Value.Dec()}
}

// parseValue reads a decimal or 0x-prefixed value and checks it fits kind.
func parseValue(kind fhevm.Kind, s string) (*uint256.Int, error) {
	if !kind.Valid() {
		return nil, fhevm.Errorf(fhevm.UnsupportedType, "parse", "Unsupported encryption type: %s", kind)
	}
	base, digits := 10, s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, digits = 16, s[2:]
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s value %q", kind, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || v.Gt(kind.Max()) {
		return nil, fmt.Errorf("%w: %s does not fit %s", fhe.ErrValueOverflow, s, kind)
	}
	return v, nil
}
