package opqueue

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ChunkBits is the width of the low half when a base field coordinate is split
// across two wire cells. It equals two 68-bit limbs of the non-native field
// arithmetic of the consuming circuit; the high half carries the remaining bits.
const ChunkBits = 136

// UltraOp is the wire encoding of one operation: an opcode, the operand
// coordinates split at ChunkBits, and the endomorphism halves of the scalar.
// It occupies two rows of the four wire columns; see Queue.AppendUltraOp for
// the row packing.
type UltraOp struct {
	Op                 fr.Element
	XLo, XHi, YLo, YHi fr.Element
	Z1, Z2             fr.Element
}

var chunkMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), ChunkBits), big.NewInt(1))

// NewUltraOp encodes an operation for the wire transcript. Coordinates of p are
// taken in canonical form; the point at infinity encodes as zero coordinates.
func NewUltraOp(code OpCode, p *bn254.G1Affine, z1, z2 *fr.Element) UltraOp {
	var u UltraOp
	u.Op.SetUint64(uint64(code))
	u.Z1.Set(z1)
	u.Z2.Set(z2)

	var coord, chunk big.Int
	p.X.BigInt(&coord)
	u.XLo.SetBigInt(chunk.And(&coord, chunkMask))
	u.XHi.SetBigInt(chunk.Rsh(&coord, ChunkBits))
	p.Y.BigInt(&coord)
	u.YLo.SetBigInt(chunk.And(&coord, chunkMask))
	u.YHi.SetBigInt(chunk.Rsh(&coord, ChunkBits))

	return u
}
