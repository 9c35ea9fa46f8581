// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"context"

	log "github.com/luxfi/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/seal"
	"github.com/luxfi/fhevm/validation"
)

// BatchResult holds one entry per requested handle, in request order. Failed
// entries are nil.
type BatchResult = fhevm.DecryptionResult[[]*fhevm.Plaintext]

// BatchDecrypt runs UserDecrypt for every handle concurrently. The result
// succeeds only if every handle decrypted, and its error joins the failure
// messages with "; ".
func (d *Decryptor) BatchDecrypt(ctx context.Context, p BatchParams) (BatchResult, error) {
	const op, prefix = "batch decrypt", "Decryption failed"

	if p.Signer == nil {
		return BatchResult{}, missing(op, "signer")
	}
	if d.authority == nil {
		return BatchResult{}, missing(op, "decryption authority")
	}
	// Malformed handles fail individually below; only an empty batch is
	// rejected as a whole.
	if len(p.Handles) == 0 {
		r := validation.ValidateBatch(p.Handles, p.ContractAddress)
		return fhevm.Failed[[]*fhevm.Plaintext](r.Err()), nil
	}

	// Every handle in the batch is sealed to the same key.
	kp := p.Keypair
	if kp == nil {
		var err error
		if kp, err = seal.GenerateKeypair(); err != nil {
			return fhevm.Failed[[]*fhevm.Plaintext](fhevm.WrapError(fhevm.EncodingFailure, op, err, "failed to generate sealing key")), nil
		}
	}

	results := make([]Result, len(p.Handles))
	var g errgroup.Group
	for i, handle := range p.Handles {
		g.Go(func() error {
			results[i] = traced(ctx, op, handle, func(ctx context.Context) Result {
				return d.userDecrypt(ctx, op, prefix, UserParams{
					Handle:          handle,
					ContractAddress: p.ContractAddress,
					Signer:          p.Signer,
					UserAddress:     p.UserAddress,
					Keypair:         kp,
				})
			})
			return nil
		})
	}
	_ = g.Wait()

	values := make([]*fhevm.Plaintext, len(results))
	var errs error
	for i, r := range results {
		if r.Success {
			values[i] = r.Value
			continue
		}
		errs = multierr.Append(errs, r.Err)
	}

	out := BatchResult{Value: values, Success: errs == nil}
	if errs != nil {
		out.Error = errs.Error()
		out.Err = errs
		d.log.Debug("batch decryption incomplete",
			log.Int("handles", len(p.Handles)),
			log.Int("failed", len(multierr.Errors(errs))),
		)
	}
	return out, nil
}
