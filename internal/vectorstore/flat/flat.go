// Package flat is an exact nearest-neighbour index over squared L2 distance.
// Vectors are kept in one row-major slice and every search scans all of them.
package flat

import (
	"fmt"
	"sort"

	"kbqa/internal/domain"
)

// Hit is one search result: the index position and its squared L2 distance.
type Hit struct {
	Position int
	Distance float32
}

// Index is a brute-force L2 index. It is not safe for concurrent Add;
// concurrent Search calls on a fully built index are safe.
type Index struct {
	dimension int
	data      []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", domain.ErrDimensionMismatch, dimension)
	}
	return &Index{dimension: dimension}, nil
}

// Dimension returns the vector dimension.
func (x *Index) Dimension() int { return x.dimension }

// Len returns the number of stored vectors.
func (x *Index) Len() int { return len(x.data) / x.dimension }

// Add appends vectors in order; position i is the i-th vector ever added.
func (x *Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, x.Len()+i, len(v), x.dimension)
		}
	}
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Vector returns the stored vector at position i.
func (x *Index) Vector(i int) []float32 {
	return x.data[i*x.dimension : (i+1)*x.dimension]
}

// Search returns the k nearest positions ordered by ascending distance,
// ties broken by ascending position. k larger than Len returns every entry.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), x.dimension)
	}
	n := x.Len()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Position: i, Distance: squaredL2(x.Vector(i), query)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})
	if k > n {
		k = n
	}
	return hits[:k], nil
}

func squaredL2(a, b []float32) float32 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
