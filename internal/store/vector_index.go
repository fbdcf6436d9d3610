package store

import (
	"fmt"
	"sort"

	"github.com/pdfchat/pdfchat/internal/utils"
)

// FlatL2Index is an exact nearest-neighbor index. Vectors are identified by
// their insertion position.
type FlatL2Index struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

type Neighbor struct {
	Position int
	Distance float32 // squared L2
}

func NewFlatL2Index(dimension int) *FlatL2Index {
	return &FlatL2Index{Dimension: dimension}
}

func (idx *FlatL2Index) Len() int {
	return len(idx.Vectors)
}

func (idx *FlatL2Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != idx.Dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), idx.Dimension)
		}
	}
	idx.Vectors = append(idx.Vectors, vectors...)
	return nil
}

// Search returns the min(k, Len()) closest vectors, nearest first. Equal
// distances are ordered by position.
func (idx *FlatL2Index) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != idx.Dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), idx.Dimension)
	}
	if k <= 0 || len(idx.Vectors) == 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, 0, len(idx.Vectors))
	for pos, v := range idx.Vectors {
		d, err := utils.SquaredL2Distance(query, v)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", pos, err)
		}
		neighbors = append(neighbors, Neighbor{Position: pos, Distance: d})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}
