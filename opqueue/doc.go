// Package opqueue implements the BN254 operation queue that carries deferred
// elliptic curve operations from circuit construction to the prover.
package opqueue
