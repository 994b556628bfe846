package opqueue

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/goblin/internal/utils/test_utils"
	"github.com/stretchr/testify/require"
)

func TestCoordinateChunks(t *testing.T) {
	p := test_utils.RandomG1(t)
	var z1, z2 fr.Element
	u := NewUltraOp(AddAccum, &p, &z1, &z2)

	checkChunks := func(lo, hi fr.Element, want *big.Int) {
		var loB, hiB, got big.Int
		lo.BigInt(&loB)
		hi.BigInt(&hiB)
		require.LessOrEqual(t, loB.BitLen(), ChunkBits)
		got.Lsh(&hiB, ChunkBits).Add(&got, &loB)
		require.Equal(t, 0, got.Cmp(want))
	}

	var x, y big.Int
	p.X.BigInt(&x)
	p.Y.BigInt(&y)
	checkChunks(u.XLo, u.XHi, &x)
	checkChunks(u.YLo, u.YHi, &y)
}

func TestUltraOpOfInfinity(t *testing.T) {
	// the point at infinity encodes as zero coordinate chunks; the opcode alone
	// tells the consuming circuit what to do
	var inf bn254.G1Affine
	var z1, z2 fr.Element
	u := NewUltraOp(Equality, &inf, &z1, &z2)

	require.True(t, u.XLo.IsZero())
	require.True(t, u.XHi.IsZero())
	require.True(t, u.YLo.IsZero())
	require.True(t, u.YHi.IsZero())

	var want fr.Element
	want.SetUint64(uint64(Equality))
	require.True(t, u.Op.Equal(&want))
}

func TestOpCodeValues(t *testing.T) {
	// the numeric values are part of the wire format
	require.EqualValues(t, 0, NullOp)
	require.EqualValues(t, 1, AddAccum)
	require.EqualValues(t, 2, MulAccum)
	require.EqualValues(t, 3, Equality)
}
