package flat

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbqa/internal/domain"
)

func randomIndex(t *testing.T, n, dim int, seed int64) *Index {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	x, err := New(dim)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		require.NoError(t, x.Add(v))
	}
	return x
}

func TestSearchExactMatch(t *testing.T) {
	x := randomIndex(t, 50, 8, 1)
	for i := 0; i < x.Len(); i++ {
		hits, err := x.Search(x.Vector(i), 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, i, hits[0].Position)
		assert.Zero(t, hits[0].Distance)
	}
}

func TestSearchOrderingAndLength(t *testing.T) {
	x := randomIndex(t, 20, 4, 2)
	q := []float32{0.1, -0.2, 0.3, 0}

	for _, k := range []int{1, 4, 20, 25} {
		hits, err := x.Search(q, k)
		require.NoError(t, err)
		require.Len(t, hits, min(k, 20))
		for i := 1; i < len(hits); i++ {
			assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
		}
	}

	hits, err := x.Search(q, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDistancesAreSquaredL2(t *testing.T) {
	x, err := New(2)
	require.NoError(t, err)
	require.NoError(t, x.Add([]float32{0, 0}, []float32{3, 4}, []float32{1, 1}))

	hits, err := x.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{0, 0}, {2, 2}, {1, 25}}, hits)
}

func TestSearchTiesBreakByPosition(t *testing.T) {
	x, err := New(1)
	require.NoError(t, err)
	require.NoError(t, x.Add([]float32{1}, []float32{-1}, []float32{1}))

	hits, err := x.Search([]float32{0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Position, hits[1].Position, hits[2].Position})
}

func TestDimensionChecks(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	x, err := New(3)
	require.NoError(t, err)
	err = x.Add([]float32{1, 2, 3}, []float32{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Zero(t, x.Len(), "a rejected batch must not be partially added")

	_, err = x.Search([]float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestCodecRoundTripIsBitExact(t *testing.T) {
	x := randomIndex(t, 17, 5, 3)
	require.NoError(t, x.Add([]float32{float32(math.Inf(1)), -0, math.SmallestNonzeroFloat32, math.MaxFloat32, 1e-30}))

	var buf bytes.Buffer
	n, err := x.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, x.Dimension(), got.Dimension())
	require.Equal(t, x.Len(), got.Len())
	for i := range x.data {
		assert.Equal(t, math.Float32bits(x.data[i]), math.Float32bits(got.data[i]))
	}
}

func TestReadRejectsCorruptInput(t *testing.T) {
	x := randomIndex(t, 4, 3, 4)
	var buf bytes.Buffer
	_, err := x.WriteTo(&buf)
	require.NoError(t, err)
	good := buf.Bytes()

	flip := append([]byte(nil), good...)
	flip[headerSize+5] ^= 0xff

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "NOPE")

	tests := map[string][]byte{
		"empty":         {},
		"bad magic":     badMagic,
		"truncated":     good[:len(good)-10],
		"flipped byte":  flip,
		"trailing data": append(append([]byte(nil), good...), 0),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(data))
			assert.ErrorIs(t, err, domain.ErrCorruptStore)
		})
	}
}
