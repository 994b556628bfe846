package opqueue

import (
	"encoding/binary"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/goblin"
	"github.com/consensys/goblin/internal/utils/test_utils"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSerializationRoundTrip(t *testing.T) {
	src := buildQueue(t, 5)
	src.Commitments = randomCommitments(t)
	src.SetSizeData()

	dst := new(Queue)
	test_utils.CopyThruSerialization(t, dst, src)

	require.Equal(t, src.GoblinVersion, dst.GoblinVersion)
	require.Equal(t, src.ScalarField, dst.ScalarField)
	require.Equal(t, src.CurrentUltraOpsSize, dst.CurrentUltraOpsSize)
	require.Equal(t, src.PreviousUltraOpsSize, dst.PreviousUltraOpsSize)
	require.True(t, dst.Finalized())
	require.Equal(t, src.Commitments, dst.Commitments)

	srcAcc, dstAcc := src.Accumulator(), dst.Accumulator()
	require.True(t, srcAcc.Equal(&dstAcc))

	if diff := cmp.Diff(src.RawOps, dst.RawOps); diff != "" {
		t.Fatalf("raw ops mismatch (-want +got):\n%s", diff)
	}
	for i := range src.UltraOps {
		if diff := cmp.Diff(src.UltraOps[i], dst.UltraOps[i]); diff != "" {
			t.Fatalf("wire column %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	require.NoError(t, dst.Validate())
}

func TestSerializationZeroQueue(t *testing.T) {
	src := new(Queue)
	dst := new(Queue)
	test_utils.CopyThruSerialization(t, dst, src)

	require.Equal(t, 0, len(dst.RawOps))
	require.Equal(t, 0, dst.AggregateTranscript().NbRows())
	require.False(t, dst.Finalized())
	require.NoError(t, dst.Validate())
}

func TestToBytesStampsSerializationHeader(t *testing.T) {
	q := new(Queue)
	_, err := q.ToBytes()
	require.NoError(t, err)
	require.Equal(t, goblin.Version.String(), q.GoblinVersion)
	require.Equal(t, fr.Modulus().Text(16), q.ScalarField)
	require.NoError(t, q.CheckSerializationHeader())
}

func TestSerializationRejectsCorruptedData(t *testing.T) {
	src := buildQueue(t, 3)
	src.SetSizeData()
	buf, err := src.ToBytes()
	require.NoError(t, err)

	var h header
	h.fromBytes(buf)

	t.Run("truncated", func(t *testing.T) {
		var q Queue
		_, err := q.FromBytes(buf[:headerLen-1])
		require.Error(t, err)
	})

	t.Run("oversized section length", func(t *testing.T) {
		corrupted := append([]byte(nil), buf...)
		// a raw ops length near MaxUint64 wraps the section sum back below
		// len(buf)
		binary.LittleEndian.PutUint64(corrupted[:8], ^uint64(0)-7)
		var q Queue
		_, err := q.FromBytes(corrupted)
		require.ErrorContains(t, err, "invalid data length")
	})

	t.Run("wrapped column count", func(t *testing.T) {
		corrupted := append([]byte(nil), buf...)
		// 2^59 extra cells, so count*fr.Bytes wraps back to the true section
		// length
		wrapped := uint64(len(src.UltraOps[0])) + 1<<59
		binary.LittleEndian.PutUint64(corrupted[headerLen+int(h.rawOpsLen):], wrapped)
		var q Queue
		_, err := q.FromBytes(corrupted)
		require.Error(t, err)
	})

	t.Run("flipped transcript cell", func(t *testing.T) {
		corrupted := append([]byte(nil), buf...)
		// one byte inside the first wire column, past the count prefix
		corrupted[headerLen+int(h.rawOpsLen)+8+1] ^= 1
		var q Queue
		_, err := q.FromBytes(corrupted)
		require.ErrorContains(t, err, "fingerprint")
	})

	t.Run("corrupted accumulator", func(t *testing.T) {
		corrupted := append([]byte(nil), buf...)
		metaOffset := headerLen + int(h.rawOpsLen)
		for i := range h.columnsLen {
			metaOffset += int(h.columnsLen[i])
		}
		// last byte of the accumulator's y coordinate
		corrupted[metaOffset+pointSize-1] ^= 1
		var q Queue
		_, err := q.FromBytes(corrupted)
		require.Error(t, err)
	})

	t.Run("unsupported scalar field", func(t *testing.T) {
		bad := buildQueue(t, 1)
		bad.ScalarField = "deadbeef"
		data, err := bad.ToBytes()
		require.NoError(t, err)
		var q Queue
		_, err = q.FromBytes(data)
		require.ErrorContains(t, err, "unsupported scalar field")
	})
}

func TestSerializationPreservesMergedQueues(t *testing.T) {
	a := buildQueue(t, 3)
	a.SetSizeData()

	b := buildQueue(t, 2)
	require.NoError(t, b.PrependPreviousQueue(a))
	b.SetSizeData()

	dst := new(Queue)
	test_utils.CopyThruSerialization(t, dst, b)

	require.Equal(t, b.CurrentUltraOpsSize, dst.CurrentUltraOpsSize)
	require.Equal(t, b.PreviousUltraOpsSize, dst.PreviousUltraOpsSize)

	// the restored previous-transcript view still matches the predecessor
	require.Equal(t, a.AggregateTranscript().Fingerprint(), dst.PreviousAggregateTranscript().Fingerprint())
}
