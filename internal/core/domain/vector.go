package domain

import "math"

// Collection names one of the vector collections.
type Collection string

// Vector collections maintained by the indexer.
const (
	CollectionDocuments Collection = "documents"
	CollectionChunks    Collection = "chunks"
	CollectionEntities  Collection = "entities"
)

// Collections lists every collection in a stable order.
var Collections = []Collection{CollectionDocuments, CollectionChunks, CollectionEntities}

// IsValid returns true if the collection is recognised.
func (c Collection) IsValid() bool {
	switch c {
	case CollectionDocuments, CollectionChunks, CollectionEntities:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c Collection) String() string {
	return string(c)
}

// VectorEntry is one row of a vector collection.
type VectorEntry struct {
	// Key is the article id, chunk id or entity id.
	Key string

	// Group is the secondary key: the owning article id for chunk vectors,
	// the entity type for entity vectors, empty for document vectors.
	Group string

	Embedding []float32
}

// VectorHit is one similarity search result.
type VectorHit struct {
	Key      string
	Group    string
	Distance float64
}

// Score converts the hit distance to a relevance score.
func (h VectorHit) Score() float64 {
	return DistanceToScore(h.Distance)
}

// SimilarityQuery parameterises a nearest-neighbour lookup.
type SimilarityQuery struct {
	// TopK is the page size.
	TopK int

	// Offset skips that many ranked hits.
	Offset int

	// MaxDistance drops hits farther than this when HasMaxDistance is set.
	MaxDistance    float64
	HasMaxDistance bool

	// Groups restricts hits to these groups when non-empty.
	Groups []string

	// ExcludeGroups removes hits whose group is listed.
	ExcludeGroups []string
}

// WithThreshold sets MaxDistance from a similarity floor in (0,1].
func (q SimilarityQuery) WithThreshold(threshold float64) SimilarityQuery {
	if threshold > 0 {
		q.MaxDistance = ThresholdToMaxDistance(threshold)
		q.HasMaxDistance = true
	}
	return q
}

// DistanceToScore maps a vector distance to (0,1]: closer vectors score near 1.
func DistanceToScore(distance float64) float64 {
	return 1 / (1 + math.Max(0, distance))
}

// ThresholdToMaxDistance inverts DistanceToScore for a similarity floor.
func ThresholdToMaxDistance(threshold float64) float64 {
	return 1/threshold - 1
}

// MeanVector returns the element-wise arithmetic mean of vectors.
// It returns nil for an empty input or when dimensions disagree.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sum {
		mean[i] = float32(s / n)
	}
	return mean
}

// L2Distance is the Euclidean distance between two equal-length vectors.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
