package opqueue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/blang/semver/v4"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/goblin"
	"github.com/consensys/goblin/logger"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

const (
	pointSize = bn254.SizeOfG1AffineUncompressed

	// flags byte, base point, z1, z2, full scalar
	opRecordSize = 1 + pointSize + 3*fr.Bytes

	// accumulator, 4 commitments, finalized byte, transcript fingerprint
	metaSize = 5*pointSize + 1 + 32
)

// ToBytes serializes the queue to a byte slice. The serialization header
// (GoblinVersion, ScalarField) is stamped on the queue first if unset.
func (q *Queue) ToBytes() ([]byte, error) {
	if q.GoblinVersion == "" {
		q.GoblinVersion = goblin.Version.String()
	}
	if q.ScalarField == "" {
		q.ScalarField = fr.Modulus().Text(16)
	}

	// we prepare and write distinct blocks of data;
	// that allows for a more efficient serialization/deserialization (+ parallelism)
	var rawOps, meta []byte
	var columns [4][]byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		rawOps, err = q.rawOpsToBytes()
		return err
	})
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			var err error
			columns[i], err = columnToBytes(q.UltraOps[i])
			return err
		})
	}
	g.Go(func() error {
		var err error
		meta, err = q.metaToBytes()
		return err
	})
	body, err := q.bodyToBytes()
	if err != nil {
		return nil, err
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// header
	h := header{
		rawOpsLen: uint64(len(rawOps)),
		metaLen:   uint64(len(meta)),
		bodyLen:   uint64(len(body)),
	}
	for i := range columns {
		h.columnsLen[i] = uint64(len(columns[i]))
	}

	// write header
	buf := h.toBytes()
	buf = append(buf, rawOps...)
	for i := range columns {
		buf = append(buf, columns[i]...)
	}
	buf = append(buf, meta...)
	buf = append(buf, body...)

	return buf, nil
}

// FromBytes deserializes the queue from a byte slice and returns the number of
// bytes read.
func (q *Queue) FromBytes(data []byte) (int, error) {
	if len(data) < headerLen {
		return 0, errors.New("invalid data length")
	}

	// read the header which contains the length of each section
	h := new(header)
	h.fromBytes(data)

	if err := h.validate(uint64(len(data))); err != nil {
		return 0, err
	}

	// read the sections in parallel
	var fingerprint [32]byte
	var g errgroup.Group
	offset := uint64(headerLen)

	rawOpsData := data[offset : offset+h.rawOpsLen]
	g.Go(func() error {
		return q.rawOpsFromBytes(rawOpsData)
	})
	offset += h.rawOpsLen

	for i := 0; i < 4; i++ {
		columnData := data[offset : offset+h.columnsLen[i]]
		g.Go(func() error {
			column, err := columnFromBytes(columnData)
			if err != nil {
				return fmt.Errorf("wire column %d: %w", i, err)
			}
			q.UltraOps[i] = column
			return nil
		})
		offset += h.columnsLen[i]
	}

	metaData := data[offset : offset+h.metaLen]
	g.Go(func() error {
		var err error
		fingerprint, err = q.metaFromBytes(metaData)
		return err
	})
	offset += h.metaLen

	// CBOR decoding of the bookkeeping fields (the rest is read directly in binary)
	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecMode()
	if err != nil {
		return 0, err
	}
	if err := dm.NewDecoder(bytes.NewReader(data[offset : offset+h.bodyLen])).Decode(q); err != nil {
		return 0, err
	}

	if err := q.CheckSerializationHeader(); err != nil {
		return 0, err
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := q.checkSizes(); err != nil {
		return 0, err
	}
	if got := q.AggregateTranscript().Fingerprint(); got != fingerprint {
		return 0, errors.New("transcript fingerprint mismatch")
	}

	return int(headerLen + h.sectionsLen()), nil
}

// CheckSerializationHeader parses the scalar field and goblin version headers
//
// This is meant to be use at the deserialization step, and will error for illegal values
func (q *Queue) CheckSerializationHeader() error {
	// check goblin version
	binaryVersion := goblin.Version
	objectVersion, err := semver.Parse(q.GoblinVersion)
	if err != nil {
		return fmt.Errorf("when parsing goblin version: %w", err)
	}

	if binaryVersion.Compare(objectVersion) != 0 {
		log := logger.Logger()
		log.Warn().Str("binary", binaryVersion.String()).Str("object", objectVersion.String()).Msg("goblin version (binary) mismatch with op queue. there are no guarantees on compatibility")
	}

	scalarField := new(big.Int)
	if _, ok := scalarField.SetString(q.ScalarField, 16); !ok {
		return fmt.Errorf("when parsing serialized modulus: %s", q.ScalarField)
	}
	if scalarField.Cmp(fr.Modulus()) != 0 {
		return fmt.Errorf("unsupported scalar field %s", scalarField.Text(16))
	}
	return nil
}

// WriteTo implements io.WriterTo.
func (q *Queue) WriteTo(w io.Writer) (int64, error) {
	buf, err := q.ToBytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom implements io.ReaderFrom.
func (q *Queue) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	n, err := q.FromBytes(data)
	return int64(n), err
}

func (q *Queue) bodyToBytes() ([]byte, error) {
	// CBOR encoding of the queue bookkeeping (except what we do directly in binary)
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := enc.NewEncoder(buf).Encode(q); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

const headerLen = 7 * 8

type header struct {
	// length in bytes of each sections
	rawOpsLen  uint64
	columnsLen [4]uint64
	metaLen    uint64
	bodyLen    uint64
}

func (h *header) sectionsLen() uint64 {
	n := h.rawOpsLen + h.metaLen + h.bodyLen
	for i := range h.columnsLen {
		n += h.columnsLen[i]
	}
	return n
}

func (h *header) toBytes() []byte {
	buf := make([]byte, 0, headerLen+h.sectionsLen())

	buf = binary.LittleEndian.AppendUint64(buf, h.rawOpsLen)
	for i := range h.columnsLen {
		buf = binary.LittleEndian.AppendUint64(buf, h.columnsLen[i])
	}
	buf = binary.LittleEndian.AppendUint64(buf, h.metaLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.bodyLen)

	return buf
}

func (h *header) fromBytes(buf []byte) {
	h.rawOpsLen = binary.LittleEndian.Uint64(buf[:8])
	for i := range h.columnsLen {
		h.columnsLen[i] = binary.LittleEndian.Uint64(buf[8+i*8 : 16+i*8])
	}
	h.metaLen = binary.LittleEndian.Uint64(buf[40:48])
	h.bodyLen = binary.LittleEndian.Uint64(buf[48:56])
}

// validate checks that the declared section lengths, summed without overflow,
// fit in dataLen bytes. dataLen must be at least headerLen.
func (h *header) validate(dataLen uint64) error {
	remaining := dataLen - headerLen
	sections := [7]uint64{
		h.rawOpsLen,
		h.columnsLen[0], h.columnsLen[1], h.columnsLen[2], h.columnsLen[3],
		h.metaLen,
		h.bodyLen,
	}
	for _, n := range sections {
		if n > remaining {
			return errors.New("invalid data length")
		}
		remaining -= n
	}
	return nil
}

func (op *Operation) flags() byte {
	var b byte
	if op.Add {
		b |= 1
	}
	if op.Mul {
		b |= 1 << 1
	}
	if op.Eq {
		b |= 1 << 2
	}
	if op.Reset {
		b |= 1 << 3
	}
	return b
}

func (op *Operation) setFlags(b byte) {
	op.Add = b&1 != 0
	op.Mul = b&(1<<1) != 0
	op.Eq = b&(1<<2) != 0
	op.Reset = b&(1<<3) != 0
}

func (q *Queue) rawOpsToBytes() ([]byte, error) {
	buf := make([]byte, 8, 8+len(q.RawOps)*opRecordSize)
	binary.LittleEndian.PutUint64(buf, uint64(len(q.RawOps)))
	for i := range q.RawOps {
		op := &q.RawOps[i]
		buf = append(buf, op.flags())
		p := op.BasePoint.RawBytes()
		buf = append(buf, p[:]...)
		z1 := op.Z1.Bytes()
		buf = append(buf, z1[:]...)
		z2 := op.Z2.Bytes()
		buf = append(buf, z2[:]...)
		s := op.MulScalarFull.Bytes()
		buf = append(buf, s[:]...)
	}
	return buf, nil
}

func (q *Queue) rawOpsFromBytes(in []byte) error {
	if len(in) < 8 {
		return errors.New("invalid raw ops section")
	}
	n := binary.LittleEndian.Uint64(in[:8])
	in = in[8:]
	// derive the record count from the section length; the declared count only
	// cross-checks it
	if uint64(len(in))%opRecordSize != 0 || n != uint64(len(in))/opRecordSize {
		return errors.New("invalid raw ops section")
	}

	q.RawOps = make([]Operation, n)
	for i := range q.RawOps {
		op := &q.RawOps[i]
		op.setFlags(in[0])
		in = in[1:]
		if _, err := op.BasePoint.SetBytes(in[:pointSize]); err != nil {
			return fmt.Errorf("raw op %d: %w", i, err)
		}
		in = in[pointSize:]
		op.Z1.SetBytes(in[:fr.Bytes])
		in = in[fr.Bytes:]
		op.Z2.SetBytes(in[:fr.Bytes])
		in = in[fr.Bytes:]
		op.MulScalarFull.SetBytes(in[:fr.Bytes])
		in = in[fr.Bytes:]
	}
	return nil
}

func columnToBytes(column []fr.Element) ([]byte, error) {
	buf := make([]byte, 8, 8+len(column)*fr.Bytes)
	binary.LittleEndian.PutUint64(buf, uint64(len(column)))
	for i := range column {
		b := column[i].Bytes()
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

func columnFromBytes(in []byte) ([]fr.Element, error) {
	if len(in) < 8 {
		return nil, errors.New("invalid section length")
	}
	n := binary.LittleEndian.Uint64(in[:8])
	in = in[8:]
	if uint64(len(in))%fr.Bytes != 0 || n != uint64(len(in))/fr.Bytes {
		return nil, errors.New("invalid section length")
	}

	column := make([]fr.Element, n)
	for i := range column {
		column[i].SetBytes(in[:fr.Bytes])
		in = in[fr.Bytes:]
	}
	return column, nil
}

func (q *Queue) metaToBytes() ([]byte, error) {
	buf := make([]byte, 0, metaSize)
	acc := q.accumulator.RawBytes()
	buf = append(buf, acc[:]...)
	for i := range q.Commitments {
		c := q.Commitments[i].RawBytes()
		buf = append(buf, c[:]...)
	}
	if q.finalized {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	fp := q.AggregateTranscript().Fingerprint()
	buf = append(buf, fp[:]...)
	return buf, nil
}

func (q *Queue) metaFromBytes(in []byte) ([32]byte, error) {
	var fp [32]byte
	if len(in) != metaSize {
		return fp, errors.New("invalid meta section")
	}
	if _, err := q.accumulator.SetBytes(in[:pointSize]); err != nil {
		return fp, fmt.Errorf("accumulator: %w", err)
	}
	in = in[pointSize:]
	for i := range q.Commitments {
		if _, err := q.Commitments[i].SetBytes(in[:pointSize]); err != nil {
			return fp, fmt.Errorf("commitment %d: %w", i, err)
		}
		in = in[pointSize:]
	}
	q.finalized = in[0] == 1
	copy(fp[:], in[1:])
	return fp, nil
}
