package opqueue

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func genFr() gopter.Gen {
	return func(genParams *gopter.GenParameters) *gopter.GenResult {
		var elmt fr.Element
		if _, err := elmt.SetRandom(); err != nil {
			panic(err)
		}
		return gopter.NewGenResult(elmt, gopter.NoShrinker)
	}
}

func TestLambdaIsCubeRootOfUnity(t *testing.T) {
	cube := new(big.Int).Exp(Lambda(), big.NewInt(3), fr.Modulus())
	require.Equal(t, 0, cube.Cmp(big.NewInt(1)))
}

func TestSplitScalar(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("the endomorphism halves recombine as z1 + λ·z2", prop.ForAll(
		func(s fr.Element) bool {
			z1, z2 := splitScalar(&s)
			var got fr.Element
			got.Mul(&z2, lambdaFr()).Add(&got, &z1)
			return got.Equal(&s)
		},
		genFr(),
	))

	properties.Property("mul ops pass validation for any scalar", prop.ForAll(
		func(s fr.Element) bool {
			_, _, gen, _ := bn254.Generators()
			var q Queue
			q.MulAccumulate(&gen, &s)
			return q.RawOps[0].validate() == nil
		},
		genFr(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestSplitScalarEdgeCases(t *testing.T) {
	var zero, one, minusOne fr.Element
	one.SetOne()
	minusOne.Neg(&one)

	for _, s := range []fr.Element{zero, one, minusOne} {
		z1, z2 := splitScalar(&s)
		var got fr.Element
		got.Mul(&z2, lambdaFr()).Add(&got, &z1)
		require.True(t, got.Equal(&s), "scalar %s", s.String())
	}
}
