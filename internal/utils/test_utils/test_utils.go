package test_utils

import (
	"bytes"
	"io"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

// CopyThruSerialization serializes src into a buffer and deserializes it into dst,
// requiring that both directions consume the whole buffer.
func CopyThruSerialization(t *testing.T, dst, src interface {
	io.ReaderFrom
	io.WriterTo
}) {
	t.Helper()
	var bb bytes.Buffer

	n, err := src.WriteTo(&bb)
	require.NoError(t, err)
	require.Equal(t, int64(bb.Len()), n)
	n, err = dst.ReadFrom(bytes.NewReader(bb.Bytes()))
	require.NoError(t, err)
	require.Equal(t, int64(bb.Len()), n)
}

// RandomFr returns a uniformly random scalar.
func RandomFr(t *testing.T) fr.Element {
	t.Helper()
	var s fr.Element
	_, err := s.SetRandom()
	require.NoError(t, err)
	return s
}

// RandomG1 returns a pseudorandom point of the BN254 G1 subgroup.
func RandomG1(t *testing.T) bn254.G1Affine {
	t.Helper()
	s := RandomFr(t)
	_, _, g, _ := bn254.Generators()
	var p bn254.G1Affine
	p.ScalarMultiplication(&g, s.BigInt(new(big.Int)))
	return p
}
