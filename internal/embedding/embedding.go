// Package embedding produces the fixed-width vectors stored as
// ModuleInstance.routing_embedding, Job.embedding, and
// SocialEntity.embedding. Embedder is the seam a real provider-backed
// vectorizer plugs into; the default implementation is a deterministic
// hashed-bag-of-words vectorizer so routing and duplicate-candidate
// lookups are exercisable without a live network dependency.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Dimensions is the fixed width every embedding this platform stores
// uses, matching vectorstore.Index collections created for it.
const Dimensions = 256

// Embedder turns text into a routing/similarity vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hashing is a zero-dependency Embedder: it hashes each normalized token
// into a bucket of a fixed-width vector and L2-normalizes the result, a
// standard "hashing trick" bag-of-words vectorizer. It is deterministic
// and local, so InstanceSync and InstanceFactory can always populate a
// routing embedding even when no external embedding provider is
// configured.
type Hashing struct{}

func NewHashing() *Hashing { return &Hashing{} }

func (Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, Dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum32() % uint32(Dimensions))
		vec[idx]++
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
