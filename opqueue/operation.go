package opqueue

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// OpCode identifies the kind of an entry of the wire transcript. The numeric values
// are part of the transcript format and mirror the selector values the consuming
// circuit decodes.
type OpCode uint8

const (
	NullOp OpCode = iota
	AddAccum
	MulAccum
	Equality
)

func (c OpCode) String() string {
	switch c {
	case NullOp:
		return "null"
	case AddAccum:
		return "add"
	case MulAccum:
		return "mul"
	case Equality:
		return "eq"
	default:
		return "unknown"
	}
}

// Operation is one raw entry of the operation log, the input format of the EC
// virtual machine. At most one of Add, Mul and Eq is set, with Reset
// accompanying Eq; a no-op row has none.
type Operation struct {
	Add   bool
	Mul   bool
	Eq    bool
	Reset bool

	// BasePoint is the operand of an add or mul. An equality operation stores the
	// captured accumulator value here instead.
	BasePoint bn254.G1Affine

	// Z1, Z2 are the endomorphism halves of a mul scalar, satisfying
	// MulScalarFull = Z1 + λ·Z2 in Fr. Zero for every other kind.
	Z1, Z2 fr.Element

	// MulScalarFull is the unsplit scalar of a mul; zero otherwise.
	MulScalarFull fr.Element
}

// Code returns the opcode corresponding to the operation flags.
func (op *Operation) Code() OpCode {
	switch {
	case op.Add:
		return AddAccum
	case op.Mul:
		return MulAccum
	case op.Eq:
		return Equality
	default:
		return NullOp
	}
}

// UltraOp returns the wire encoding of the operation.
func (op *Operation) UltraOp() UltraOp {
	return NewUltraOp(op.Code(), &op.BasePoint, &op.Z1, &op.Z2)
}
