package opqueue

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

// Commitments holds one commitment per wire column, in column order.
type Commitments [4]bn254.G1Affine

// Transcript is a view over the four wire columns of a queue; the column
// slices alias the queue's storage.
type Transcript [4][]fr.Element

// NbRows returns the number of rows of the transcript.
func (t Transcript) NbRows() int {
	return len(t[0])
}

// Fingerprint returns a SHA3-256 digest binding the column lengths and every
// cell of the transcript in canonical form.
func (t Transcript) Fingerprint() [32]byte {
	h := sha3.New256()
	var lenBuf [8]byte
	for _, column := range t {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(column)))
		h.Write(lenBuf[:])
		for i := range column {
			b := column[i].Bytes()
			h.Write(b[:])
		}
	}
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}
