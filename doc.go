// Package goblin provides primitives to defer elliptic curve operations issued during
// circuit construction to a specialized proving subsystem.
//
// Circuit builders push every group operation (addition, scalar multiplication,
// equality assertion) into an opqueue.Queue. The queue keeps three synchronized
// representations of the same computation:
//   - the raw operation log, consumed by the EC virtual machine
//   - a native accumulator, used to cross-check circuit results outside the
//     constraint system
//   - a width-4 wire transcript, used as witness input by the consuming circuit
//
// goblin operates over BN254.
package goblin

import (
	"github.com/blang/semver/v4"
	"github.com/consensys/gnark-crypto/ecc"
)

var Version = semver.MustParse("0.1.0")

// Curves return the curves supported by goblin
func Curves() []ecc.ID {
	return []ecc.ID{
		ecc.BN254,
	}
}
