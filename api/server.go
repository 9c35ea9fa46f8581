// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes encryption, public decryption, homomorphic compute
// and key information over HTTP for browser and server-side callers.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/luxfi/geth/common/hexutil"
	log "github.com/luxfi/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/client"
	"github.com/luxfi/fhevm/decrypt"
	"github.com/luxfi/fhevm/encrypt"
	"github.com/luxfi/fhevm/fhe"
	"github.com/luxfi/fhevm/internal/httputil"
	"github.com/luxfi/fhevm/registry"
)

const (
	keyType       = "TFHE"
	securityLevel = 128
)

// Config wires the server to its backends. Any of them may be nil, in which
// case the routes that need it fail with 503.
type Config struct {
	Client    encrypt.Client
	Decryptor *decrypt.Decryptor
	Engine    *fhe.Engine
	Keys      client.KeyFetcher
	Logger    log.Logger
}

type Server struct {
	cfg Config
	log log.Logger

	mu        sync.RWMutex
	publicKey []byte
	keyTime   time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewTestLogger(log.InfoLevel)
	}
	s := &Server{cfg: cfg, log: cfg.Logger, keyTime: time.Now().UTC()}
	if pk, ok := cfg.Client.(interface{ PublicKey() ([]byte, error) }); ok {
		if b, err := pk.PublicKey(); err == nil {
			s.publicKey = b
		}
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(httputil.Middleware(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/fhe", s.index)
		r.Post("/fhe/encrypt", s.encrypt)
		r.Post("/fhe/decrypt", s.decrypt)
		r.Get("/fhe/compute", s.computeInfo)
		r.Post("/fhe/compute", s.compute)
		r.Get("/keys", s.keyInfo)
		r.Post("/keys", s.keyAction)
	})
	return otelhttp.NewHandler(r, "fhevm-api")
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{
		"message": "FHE API endpoint",
		"methods": []string{http.MethodPost},
		"endpoints": map[string]string{
			"encrypt": "/api/fhe/encrypt",
			"decrypt": "/api/fhe/decrypt",
			"compute": "/api/fhe/compute",
		},
	})
}

type EncryptRequest struct {
	Value           json.RawMessage `json:"value"`
	Type            string          `json:"type"`
	ContractAddress string          `json:"contractAddress"`
	UserAddress     string          `json:"userAddress,omitempty"`
}

type EncryptResponse struct {
	Success   bool   `json:"success"`
	Type      string `json:"type"`
	Encrypted []int  `json:"encrypted"`
	Length    int    `json:"length"`
	Handle    string `json:"handle"`
}

func (s *Server) encrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := decodeValue(req.Value)
	if !ok || req.Type == "" || req.ContractAddress == "" {
		httputil.Error(w, http.StatusBadRequest, "Missing required parameters: value, type, contractAddress")
		return
	}
	kind, err := fhevm.ParseKind(req.Type)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("Unsupported type: %s", req.Type))
		return
	}
	if s.cfg.Client == nil {
		httputil.ErrorDetails(w, http.StatusServiceUnavailable, "Encryption failed", fhevm.ErrUninitializedClient.Error())
		return
	}

	in, err := encrypt.Encrypt(r.Context(), s.cfg.Client, encrypt.Params{
		Value:           value,
		Kind:            kind,
		ContractAddress: req.ContractAddress,
		UserAddress:     req.UserAddress,
	})
	switch {
	case errors.Is(err, fhevm.ErrValidation):
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Warn("encryption failed",
			log.String("requestID", httputil.RequestID(r.Context())),
			log.Err(err),
		)
		httputil.ErrorDetails(w, http.StatusInternalServerError, "Encryption failed", err.Error())
		return
	}

	encrypted := make([]int, len(in.Data))
	for i, b := range in.Data {
		encrypted[i] = int(b)
	}
	httputil.JSON(w, http.StatusOK, EncryptResponse{
		Success:   true,
		Type:      kind.String(),
		Encrypted: encrypted,
		Length:    len(in.Data),
		Handle:    in.Handle.Hex(),
	})
}

// decodeValue reports false for an absent or null value. Numbers keep
// their full precision.
func decodeValue(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

type DecryptRequest struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
	IsPublic        bool   `json:"isPublic"`
}

type DecryptResponse struct {
	Success bool   `json:"success"`
	Value   string `json:"value"`
	Type    string `json:"type"`
}

func (s *Server) decrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Handle == "" || req.ContractAddress == "" {
		httputil.Error(w, http.StatusBadRequest, "Missing required parameters: handle, contractAddress")
		return
	}
	if !req.IsPublic {
		httputil.Error(w, http.StatusBadRequest, "User decryption requires client-side signing with wallet")
		return
	}
	if s.cfg.Decryptor == nil {
		httputil.ErrorDetails(w, http.StatusServiceUnavailable, "Decryption failed", "no decryption authority configured")
		return
	}

	res, err := s.cfg.Decryptor.PublicDecrypt(r.Context(), decrypt.PublicParams{
		Handle:          req.Handle,
		ContractAddress: req.ContractAddress,
	})
	if err == nil && !res.Success {
		err = res.Err
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fhevm.ErrValidation) {
			status = http.StatusBadRequest
		}
		httputil.ErrorDetails(w, status, "Decryption failed", err.Error())
		return
	}

	httputil.JSON(w, http.StatusOK, DecryptResponse{
		Success: true,
		Value:   res.Value.String(),
		Type:    res.Value.Kind.String(),
	})
}

func (s *Server) computeInfo(w http.ResponseWriter, _ *http.Request) {
	var arithmetic, comparison []string
	for _, op := range fhe.Ops() {
		if op.Comparison() {
			comparison = append(comparison, op.String())
		} else {
			arithmetic = append(arithmetic, op.String())
		}
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"message": "FHE Computation API",
		"supportedOperations": map[string][]string{
			"arithmetic": arithmetic,
			"comparison": comparison,
		},
		"usage": map[string]any{
			"method": http.MethodPost,
			"body": map[string]any{
				"operation": "add",
				"operands":  []string{"encrypted_handle_1", "encrypted_handle_2"},
			},
		},
	})
}

// ComputeRequest names an operation over handles. When Ciphertexts holds
// two framed ciphertexts the server evaluates the operation itself.
type ComputeRequest struct {
	Operation   string          `json:"operation"`
	Operands    []string        `json:"operands"`
	Ciphertexts []hexutil.Bytes `json:"ciphertexts,omitempty"`
}

type ComputeResponse struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Operation    string        `json:"operation"`
	OperandCount int           `json:"operandCount"`
	Info         string        `json:"info,omitempty"`
	Result       hexutil.Bytes `json:"result,omitempty"`
}

func (s *Server) compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Operation == "" || (req.Operands == nil && req.Ciphertexts == nil) {
		httputil.Error(w, http.StatusBadRequest, "Missing required parameters: operation, operands")
		return
	}
	op, err := fhe.ParseOp(req.Operation)
	if err != nil {
		names := make([]string, 0, len(fhe.Ops()))
		for _, o := range fhe.Ops() {
			names = append(names, o.String())
		}
		httputil.Error(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported operation: %s. Supported: %s", req.Operation, strings.Join(names, ", ")))
		return
	}

	if len(req.Ciphertexts) == 0 {
		httputil.JSON(w, http.StatusOK, ComputeResponse{
			Success:      true,
			Message:      fmt.Sprintf("FHE %s operation queued. Computation happens on-chain.", op),
			Operation:    op.String(),
			OperandCount: len(req.Operands),
			Info:         "FHE computations are performed by smart contracts on encrypted data without revealing values.",
		})
		return
	}

	if len(req.Ciphertexts) != 2 {
		httputil.Error(w, http.StatusBadRequest, "Exactly two ciphertexts are required")
		return
	}
	if s.cfg.Engine == nil {
		httputil.ErrorDetails(w, http.StatusServiceUnavailable, "Computation request failed", "no FHE engine configured")
		return
	}
	result, err := s.cfg.Engine.Compute(op, req.Ciphertexts[0], req.Ciphertexts[1])
	if err != nil {
		httputil.ErrorDetails(w, http.StatusBadRequest, "Computation request failed", err.Error())
		return
	}
	httputil.JSON(w, http.StatusOK, ComputeResponse{
		Success:      true,
		Message:      fmt.Sprintf("FHE %s operation evaluated.", op),
		Operation:    op.String(),
		OperandCount: len(req.Ciphertexts),
		Result:       result,
	})
}

type KeyInfo struct {
	Success           bool     `json:"success"`
	Network           string   `json:"network"`
	ChainID           uint64   `json:"chainId"`
	FHEPublicKey      string   `json:"fhePublicKey"`
	KeyGenerationTime string   `json:"keyGenerationTime"`
	KeyType           string   `json:"keyType"`
	SecurityLevel     int      `json:"securityLevel"`
	SupportedTypes    []string `json:"supportedTypes"`
}

func (s *Server) keyInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("network")
	if name == "" {
		name = registry.DefaultName
	}
	network, err := registry.Lookup(name)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	types := make([]string, 0, fhevm.NumKinds)
	for _, k := range fhevm.Kinds() {
		types = append(types, k.String())
	}

	s.mu.RLock()
	publicKey := "Generated dynamically from network"
	if len(s.publicKey) > 0 {
		publicKey = hexutil.Encode(s.publicKey)
	}
	generated := s.keyTime
	s.mu.RUnlock()

	httputil.JSON(w, http.StatusOK, KeyInfo{
		Success:           true,
		Network:           name,
		ChainID:           network.ChainID,
		FHEPublicKey:      publicKey,
		KeyGenerationTime: generated.Format(time.RFC3339),
		KeyType:           keyType,
		SecurityLevel:     securityLevel,
		SupportedTypes:    types,
	})
}

type KeyActionRequest struct {
	Action string `json:"action"`
}

func (s *Server) keyAction(w http.ResponseWriter, r *http.Request) {
	var req KeyActionRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action != "refresh" {
		httputil.Error(w, http.StatusBadRequest, "Unsupported action")
		return
	}
	if s.cfg.Keys == nil {
		httputil.ErrorDetails(w, http.StatusServiceUnavailable, "Key management operation failed", client.ErrNoPublicKeySource.Error())
		return
	}

	pk, err := s.cfg.Keys.FetchPublicKey(r.Context())
	if err != nil {
		httputil.ErrorDetails(w, http.StatusBadGateway, "Key management operation failed", err.Error())
		return
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.publicKey = pk
	s.keyTime = now
	s.mu.Unlock()

	s.log.Info("FHE public key refreshed", log.Int("size", len(pk)))
	httputil.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "FHE public key refreshed",
		"timestamp": now.Format(time.RFC3339),
	})
}
