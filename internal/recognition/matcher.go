// Package recognition implements the live identification pipeline: cosine
// matching against the enrolled gallery, K-of-N confirmation with cooldown,
// and the per-frame engine tying them to the active session.
package recognition

import (
	"github.com/kozaktomas/face-attend/internal/database"
)

// Match is a gallery candidate above the similarity threshold.
type Match struct {
	StudentID  int64
	Name       string
	Similarity float64
}

// Matcher finds the best gallery identity for a query embedding.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the given similarity threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Similarity computes cosine similarity clamped to [0, 1]. Negative
// similarities carry no signal for face templates.
func Similarity(a, b []float32) float64 {
	sim := 1 - database.CosineDistance(a, b)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// BestMatch scores the query against every template of every gallery entry.
// An identity's score is the maximum over its templates, so a single good
// enrollment frame is enough to match despite pose or lighting variance.
// Returns false when the global best is below the threshold or the gallery
// is empty. Ties keep the first entry in gallery order.
func (m *Matcher) BestMatch(query []float32, gallery []database.GalleryEntry) (Match, bool) {
	var best Match
	found := false

	for _, entry := range gallery {
		identityBest := 0.0
		hasTemplate := false
		for _, tmpl := range entry.Embeddings {
			if len(tmpl) == 0 {
				continue
			}
			hasTemplate = true
			if sim := Similarity(query, tmpl); sim > identityBest {
				identityBest = sim
			}
		}
		if !hasTemplate {
			continue
		}
		if !found || identityBest > best.Similarity {
			best = Match{StudentID: entry.StudentID, Name: entry.Name, Similarity: identityBest}
			found = true
		}
	}

	if !found || best.Similarity < m.threshold {
		return Match{}, false
	}
	return best, true
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}
