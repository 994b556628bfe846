package opqueue

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/goblin/debug"
)

// lambdaDec is the eigenvalue of the curve endomorphism φ(x,y) = (βx, y) on the
// G1 subgroup: φ(P) = [λ]P, with λ a cube root of unity in Fr.
const lambdaDec = "4407920970296243842393367215006156084916469457145843978461"

var (
	glvOnce     sync.Once
	glvLambda   big.Int
	glvLambdaFr fr.Element
	glvLattice  ecc.Lattice
)

func glv() *ecc.Lattice {
	glvOnce.Do(func() {
		glvLambda.SetString(lambdaDec, 10)
		glvLambdaFr.SetBigInt(&glvLambda)
		ecc.PrecomputeLattice(fr.Modulus(), &glvLambda, &glvLattice)
	})
	return &glvLattice
}

func lambdaFr() *fr.Element {
	glv()
	return &glvLambdaFr
}

// Lambda returns the endomorphism eigenvalue λ relating the halves of a split
// mul scalar.
func Lambda() *big.Int {
	glv()
	return new(big.Int).Set(&glvLambda)
}

// splitScalar decomposes s into the endomorphism halves z1, z2 satisfying
// s = z1 + λ·z2 in Fr. The halves are the balanced lattice decomposition of s,
// reduced to canonical form.
func splitScalar(s *fr.Element) (z1, z2 fr.Element) {
	var sb big.Int
	s.BigInt(&sb)
	sp := ecc.SplitScalar(&sb, glv())
	z1.SetBigInt(&sp[0])
	z2.SetBigInt(&sp[1])

	if debug.Debug {
		var check fr.Element
		check.Mul(&z2, &glvLambdaFr).Add(&check, &z1)
		debug.Assert(check.Equal(s), "endomorphism split does not recombine")
	}
	return
}
