package opqueue

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/goblin/debug"
	"github.com/consensys/goblin/logger"
	"github.com/consensys/goblin/profile"
)

var (
	// ErrFinalized is returned when prepending to a queue whose transcript
	// bookkeeping was already set by SetSizeData.
	ErrFinalized = errors.New("op queue already finalized")

	// ErrNotFinalized is returned when prepending a predecessor queue that was
	// never finalized with SetSizeData.
	ErrNotFinalized = errors.New("predecessor op queue not finalized")
)

// Queue records the elliptic curve operations issued during circuit
// construction. Every operation is logged in two synchronized representations:
// the raw operation log RawOps, the input format of the proving virtual
// machine, and the width-4 wire transcript UltraOps, consumed as witness data
// by the next circuit. Operations are additionally performed natively, with the
// running result kept in an internal accumulator, so the in-circuit computation
// can be cross-checked against it.
//
// The core mutators (AddAccumulate, MulAccumulate, Eq, EmptyRow) grow RawOps
// only; AppendUltraOp grows UltraOps only. Callers producing both
// representations use the RecordXXX helpers to keep them paired.
//
// The zero value is an empty queue ready for use.
type Queue struct {
	// serialization header
	GoblinVersion string
	ScalarField   string

	// RawOps is the append-only log of operations in issue order.
	RawOps []Operation `cbor:"-"`

	// UltraOps are the four wire columns. They grow in lock-step, two rows per
	// encoded operation.
	UltraOps [4][]fr.Element `cbor:"-"`

	// CurrentUltraOpsSize is the aggregate transcript length M_i recorded by
	// the last SetSizeData call; PreviousUltraOpsSize is the length M_{i-1}
	// recorded by the call before. The prover slices the predecessor transcript
	// out of the aggregate one with this pair.
	CurrentUltraOpsSize  int
	PreviousUltraOpsSize int

	// Commitments to the four wire columns, produced by an external commitment
	// scheme. PrependPreviousQueue carries them over from the predecessor.
	Commitments Commitments `cbor:"-"`

	// operations are also performed natively; the running result is kept here.
	// The zero value (0, 0) encodes the point at infinity.
	accumulator bn254.G1Affine

	finalized bool
}

var (
	paddingPoint  bn254.G1Affine
	paddingScalar fr.Element
)

func init() {
	// fixed point with nonzero coordinate chunks, used by AppendNonzeroOps
	x, _ := new(big.Int).SetString("30644e72e131a029b85045b68181585d97816a916871ca8d3c208c16d87cfd3", 16)
	y, _ := new(big.Int).SetString("1a76dae6d3272396d0cbe61fced2bc532edac647851e3ac53ce1cc9c7e645a83", 16)
	paddingPoint.X.SetBigInt(x)
	paddingPoint.Y.SetBigInt(y)

	var one fr.Element
	one.SetOne()
	paddingScalar.Neg(&one)
}

// Accumulator returns the current value of the native accumulator.
func (q *Queue) Accumulator() bn254.G1Affine {
	return q.accumulator
}

// Finalized reports whether SetSizeData was called on this queue.
func (q *Queue) Finalized() bool {
	return q.finalized
}

// AddAccumulate appends an addition of p to the operation log and folds p into
// the native accumulator.
func (q *Queue) AddAccumulate(p *bn254.G1Affine) {
	profile.RecordOp()

	q.accumulator.Add(&q.accumulator, p)

	q.RawOps = append(q.RawOps, Operation{
		Add:       true,
		BasePoint: *p,
	})
}

// MulAccumulate appends a scalar multiplication of p by s to the operation log
// and folds [s]p into the native accumulator. The scalar is stored both in full
// and split into its endomorphism halves.
func (q *Queue) MulAccumulate(p *bn254.G1Affine, s *fr.Element) {
	profile.RecordOp()

	var sp bn254.G1Affine
	sp.ScalarMultiplication(p, s.BigInt(new(big.Int)))
	q.accumulator.Add(&q.accumulator, &sp)

	z1, z2 := splitScalar(s)
	q.RawOps = append(q.RawOps, Operation{
		Mul:           true,
		BasePoint:     *p,
		Z1:            z1,
		Z2:            z2,
		MulScalarFull: *s,
	})
}

// Eq appends an equality check and resets the native accumulator to the point
// at infinity. The captured accumulator value is stored as the operand of the
// operation, for the prover to compare the in-circuit accumulator against, and
// returned to the caller.
func (q *Queue) Eq() bn254.G1Affine {
	profile.RecordOp()

	expected := q.accumulator
	q.accumulator = bn254.G1Affine{}

	q.RawOps = append(q.RawOps, Operation{
		Eq:        true,
		Reset:     true,
		BasePoint: expected,
	})

	return expected
}

// EmptyRow appends a no-op to the operation log. The accumulator is untouched.
func (q *Queue) EmptyRow() {
	profile.RecordOp()

	q.RawOps = append(q.RawOps, Operation{})
}

// AppendNonzeroOps appends a mul of a fixed point by -1 followed by an
// equality, so that no wire column of a row encoding them is zero. Committing
// to an all-zero column yields the point at infinity, which downstream
// commitment handling does not support; queues are padded with this pair
// before being committed to.
func (q *Queue) AppendNonzeroOps() {
	q.MulAccumulate(&paddingPoint, &paddingScalar)
	q.Eq()
}

// AppendUltraOp writes the wire encoding of one operation as two rows of the
// four wire columns:
//
//	(op, x_lo, x_hi, y_lo)
//	(0,  y_hi, z_1,  z_2)
func (q *Queue) AppendUltraOp(u UltraOp) {
	var zero fr.Element
	q.UltraOps[0] = append(q.UltraOps[0], u.Op, zero)
	q.UltraOps[1] = append(q.UltraOps[1], u.XLo, u.YHi)
	q.UltraOps[2] = append(q.UltraOps[2], u.XHi, u.Z1)
	q.UltraOps[3] = append(q.UltraOps[3], u.YLo, u.Z2)

	debug.Assert(len(q.UltraOps[0]) == len(q.UltraOps[1]) &&
		len(q.UltraOps[0]) == len(q.UltraOps[2]) &&
		len(q.UltraOps[0]) == len(q.UltraOps[3]), "wire columns out of alignment")
}

// RecordAdd is AddAccumulate followed by the matching AppendUltraOp.
func (q *Queue) RecordAdd(p *bn254.G1Affine) {
	q.AddAccumulate(p)
	q.AppendUltraOp(q.RawOps[len(q.RawOps)-1].UltraOp())
}

// RecordMul is MulAccumulate followed by the matching AppendUltraOp.
func (q *Queue) RecordMul(p *bn254.G1Affine, s *fr.Element) {
	q.MulAccumulate(p, s)
	q.AppendUltraOp(q.RawOps[len(q.RawOps)-1].UltraOp())
}

// RecordEq is Eq followed by the matching AppendUltraOp.
func (q *Queue) RecordEq() bn254.G1Affine {
	expected := q.Eq()
	q.AppendUltraOp(q.RawOps[len(q.RawOps)-1].UltraOp())
	return expected
}

// RecordEmptyRow is EmptyRow followed by the matching AppendUltraOp.
func (q *Queue) RecordEmptyRow() {
	q.EmptyRow()
	q.AppendUltraOp(q.RawOps[len(q.RawOps)-1].UltraOp())
}

// PrependPreviousQueue concatenates the contents of the predecessor queue in
// front of q's: raw ops and wire columns are prepended, both transcript sizes
// shift by the length of the prepended columns, and the predecessor's column
// commitments replace q's. Circuits are built against empty queues and merged
// with their predecessor afterwards, which keeps circuit construction
// independent of the accumulation order.
//
// The predecessor must be finalized and q must not be; q is left untouched on
// error.
func (q *Queue) PrependPreviousQueue(previous *Queue) error {
	if q.finalized {
		return ErrFinalized
	}
	if !previous.finalized {
		return ErrNotFinalized
	}

	n := len(previous.UltraOps[0])

	rawOps := make([]Operation, 0, len(previous.RawOps)+len(q.RawOps))
	rawOps = append(rawOps, previous.RawOps...)
	rawOps = append(rawOps, q.RawOps...)
	q.RawOps = rawOps

	for i := range q.UltraOps {
		column := make([]fr.Element, 0, n+len(q.UltraOps[i]))
		column = append(column, previous.UltraOps[i]...)
		column = append(column, q.UltraOps[i]...)
		q.UltraOps[i] = column
	}

	// both sizes shift so the previous-transcript view keeps covering whole
	// finalized circuits only
	q.CurrentUltraOpsSize += n
	q.PreviousUltraOpsSize += n

	q.Commitments = previous.Commitments

	log := logger.Logger()
	log.Debug().
		Int("prependedRows", n).
		Int("nbRawOps", len(q.RawOps)).
		Msg("op queue merged with predecessor")

	return nil
}

// Swap exchanges the entire contents of q and other.
func (q *Queue) Swap(other *Queue) {
	*q, *other = *other, *q
}

// SetSizeData finalizes the transcript bookkeeping of the current circuit: the
// previous size M_{i-1} takes the value of the current size M_i, which in turn
// becomes the aggregate transcript length. Call it once the circuit is
// complete.
func (q *Queue) SetSizeData() {
	q.PreviousUltraOpsSize = q.CurrentUltraOpsSize
	q.CurrentUltraOpsSize = len(q.UltraOps[0])
	q.finalized = true

	log := logger.Logger()
	if e := log.Debug(); e.Enabled() {
		fp := q.AggregateTranscript().Fingerprint()
		e.Int("current", q.CurrentUltraOpsSize).
			Int("previous", q.PreviousUltraOpsSize).
			Hex("fingerprint", fp[:]).
			Msg("op queue finalized")
	}
}

// AggregateTranscript returns a view of the full wire transcript T_i. The
// columns are shared with the queue, not copied.
func (q *Queue) AggregateTranscript() Transcript {
	return Transcript(q.UltraOps)
}

// PreviousAggregateTranscript returns a view of the predecessor transcript
// T_{i-1}, the first PreviousUltraOpsSize rows of each column. The columns are
// shared with the queue, not copied.
func (q *Queue) PreviousAggregateTranscript() Transcript {
	var t Transcript
	for i := range q.UltraOps {
		t[i] = q.UltraOps[i][:q.PreviousUltraOpsSize]
	}
	return t
}
