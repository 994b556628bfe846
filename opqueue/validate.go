package opqueue

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Validate checks the structural invariants of the queue: aligned wire columns
// of even length, transcript sizes in order and within bounds, and well-formed
// raw operations.
func (q *Queue) Validate() error {
	if err := q.checkSizes(); err != nil {
		return err
	}
	for i := range q.RawOps {
		if err := q.RawOps[i].validate(); err != nil {
			return fmt.Errorf("raw op %d: %w", i, err)
		}
	}
	return nil
}

func (q *Queue) checkSizes() error {
	n := len(q.UltraOps[0])
	for i := 1; i < len(q.UltraOps); i++ {
		if len(q.UltraOps[i]) != n {
			return fmt.Errorf("wire column %d has %d rows, column 0 has %d", i, len(q.UltraOps[i]), n)
		}
	}
	if n%2 != 0 {
		return fmt.Errorf("wire columns have %d rows, want an even count", n)
	}
	if q.PreviousUltraOpsSize < 0 || q.CurrentUltraOpsSize < q.PreviousUltraOpsSize {
		return fmt.Errorf("transcript sizes out of order: previous %d, current %d", q.PreviousUltraOpsSize, q.CurrentUltraOpsSize)
	}
	if q.CurrentUltraOpsSize > n {
		return fmt.Errorf("current transcript size %d exceeds column length %d", q.CurrentUltraOpsSize, n)
	}
	return nil
}

func (op *Operation) validate() error {
	nbFlags := 0
	if op.Add {
		nbFlags++
	}
	if op.Mul {
		nbFlags++
	}
	if op.Eq {
		nbFlags++
	}
	if nbFlags > 1 {
		return errors.New("more than one operation flag set")
	}
	if op.Reset && !op.Eq {
		return errors.New("reset flag set without eq")
	}
	if !op.BasePoint.IsOnCurve() {
		return errors.New("base point not on curve")
	}

	if op.Mul {
		// the scalar must recombine from its endomorphism halves
		var s fr.Element
		s.Mul(&op.Z2, lambdaFr()).Add(&s, &op.Z1)
		if !s.Equal(&op.MulScalarFull) {
			return errors.New("scalar does not match its endomorphism halves")
		}
		return nil
	}

	if !op.Z1.IsZero() || !op.Z2.IsZero() || !op.MulScalarFull.IsZero() {
		return errors.New("scalar set on a non-mul operation")
	}
	return nil
}
