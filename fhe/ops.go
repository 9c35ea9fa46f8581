// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"

	"github.com/luxfi/fhe"

	"github.com/luxfi/fhevm"
)

// Op is a binary homomorphic operation.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
)

var opNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpEq:  "eq",
	OpNe:  "ne",
	OpLt:  "lt",
	OpLte: "lte",
	OpGt:  "gt",
	OpGte: "gte",
}

// Ops lists every supported operation.
func Ops() []Op {
	ops := make([]Op, len(opNames))
	for i := range ops {
		ops[i] = Op(i)
	}
	return ops
}

func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if name == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported operation: %s", s)
}

func (o Op) String() string {
	if int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
	return opNames[o]
}

// Comparison reports whether o yields an encrypted bool.
func (o Op) Comparison() bool {
	return o >= OpEq
}

// Compute evaluates op over two framed ciphertexts of the same kind. Only
// single-limb integer kinds are supported. Arithmetic wraps modulo 2^bits;
// comparisons return a framed bool.
func (e *Engine) Compute(op Op, lhs, rhs []byte) ([]byte, error) {
	if int(op) >= len(opNames) {
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}

	kind, a, err := e.operand(lhs)
	if err != nil {
		return nil, fmt.Errorf("lhs: %w", err)
	}
	rkind, b, err := e.operand(rhs)
	if err != nil {
		return nil, fmt.Errorf("rhs: %w", err)
	}
	if kind != rkind {
		return nil, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, kind, op, rkind)
	}

	e.mu.Lock()
	result, err := e.evaluate(op, a, b)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	data, err := marshalBits(result)
	if err != nil {
		return nil, err
	}
	if op.Comparison() {
		kind = fhevm.Bool
	}
	return encodeFrame(kind, [][]byte{data})
}

func (e *Engine) operand(data []byte) (fhevm.Kind, *fhe.BitCiphertext, error) {
	kind, limbs, rest, err := decodeFrame(data)
	if err != nil {
		return 0, nil, err
	}
	if len(rest) != 0 {
		return 0, nil, fmt.Errorf("%w: trailing bytes", ErrInvalidCiphertext)
	}
	if !kind.Integer() || limbCount(kind) != 1 {
		return 0, nil, fmt.Errorf("%w: %s operands are not supported", ErrTypeMismatch, kind)
	}
	ct, err := unmarshalBits(limbs[0])
	return kind, ct, err
}

// evaluate must be called with e.mu held.
func (e *Engine) evaluate(op Op, a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
	switch op {
	case OpAdd:
		return e.evaluator.Add(a, b)
	case OpSub:
		return e.evaluator.Sub(a, b)
	case OpMul:
		return e.evaluator.Mul(a, b)
	case OpDiv:
		return e.evaluator.Div(a, b)
	case OpEq:
		return wrapBool(e.evaluator.Eq(a, b))
	case OpLt:
		return wrapBool(e.evaluator.Lt(a, b))
	case OpLte:
		return wrapBool(e.evaluator.Le(a, b))
	case OpGt:
		return wrapBool(e.evaluator.Gt(a, b))
	case OpGte:
		return wrapBool(e.evaluator.Ge(a, b))
	case OpNe:
		// ne(a, b) = lt(a, b) or gt(a, b)
		lt, err := wrapBool(e.evaluator.Lt(a, b))
		if err != nil {
			return nil, err
		}
		gt, err := wrapBool(e.evaluator.Gt(a, b))
		if err != nil {
			return nil, err
		}
		return e.evaluator.Or(lt, gt)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func wrapBool(ct *fhe.Ciphertext, err error) (*fhe.BitCiphertext, error) {
	if err != nil {
		return nil, err
	}
	return fhe.WrapBoolCiphertext(ct), nil
}
