package recognition

import (
	"math"
	"testing"

	"github.com/kozaktomas/face-attend/internal/database"
)

func TestSimilarityClamped(t *testing.T) {
	// Opposite vectors have raw cosine similarity -1; clamped to 0.
	if got := Similarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("Expected 0 for opposite vectors, got %f", got)
	}
	if got := Similarity([]float32{1, 2, 3}, []float32{1, 2, 3}); math.Abs(got-1) > 1e-6 {
		t.Errorf("Expected 1 for identical vectors, got %f", got)
	}
	// Invalid input maps to distance 2, clamped to 0.
	if got := Similarity([]float32{}, []float32{}); got != 0 {
		t.Errorf("Expected 0 for empty vectors, got %f", got)
	}
}

func TestBestMatch(t *testing.T) {
	gallery := []database.GalleryEntry{
		{StudentID: 1, Name: "A", Embeddings: [][]float32{{1, 0, 0}, {0.7, 0.7, 0}}},
		{StudentID: 2, Name: "B", Embeddings: [][]float32{{0, 0, 1}}},
	}

	t.Run("returns best identity above threshold", func(t *testing.T) {
		m := NewMatcher(0.6)
		match, ok := m.BestMatch([]float32{1, 0, 0}, gallery)
		if !ok {
			t.Fatal("Expected a match")
		}
		if match.StudentID != 1 {
			t.Errorf("Expected student 1, got %d", match.StudentID)
		}
		if math.Abs(match.Similarity-1) > 1e-6 {
			t.Errorf("Expected similarity 1, got %f", match.Similarity)
		}
	})

	t.Run("no match when below threshold", func(t *testing.T) {
		m := NewMatcher(0.95)
		// Query is closest to A's second template at cos ~0.7
		if _, ok := m.BestMatch([]float32{0.7, 0.7, 0.1}, gallery); ok {
			t.Error("Expected no match above 0.95")
		}
	})

	t.Run("max over identity templates", func(t *testing.T) {
		m := NewMatcher(0.9)
		// Matches A's second template, not its first
		match, ok := m.BestMatch([]float32{0.7, 0.7, 0}, gallery)
		if !ok {
			t.Fatal("Expected a match via second template")
		}
		if match.StudentID != 1 {
			t.Errorf("Expected student 1, got %d", match.StudentID)
		}
	})

	t.Run("empty gallery", func(t *testing.T) {
		m := NewMatcher(0.5)
		if _, ok := m.BestMatch([]float32{1, 0, 0}, nil); ok {
			t.Error("Expected no match for empty gallery")
		}
	})

	t.Run("identity without templates is skipped", func(t *testing.T) {
		m := NewMatcher(0.5)
		sparse := []database.GalleryEntry{
			{StudentID: 3, Name: "C"},
			{StudentID: 4, Name: "D", Embeddings: [][]float32{{1, 0, 0}}},
		}
		match, ok := m.BestMatch([]float32{1, 0, 0}, sparse)
		if !ok || match.StudentID != 4 {
			t.Errorf("Expected student 4, got %+v ok=%v", match, ok)
		}
	})

	t.Run("tie keeps first gallery entry", func(t *testing.T) {
		m := NewMatcher(0.5)
		tied := []database.GalleryEntry{
			{StudentID: 5, Name: "E", Embeddings: [][]float32{{1, 0, 0}}},
			{StudentID: 6, Name: "F", Embeddings: [][]float32{{1, 0, 0}}},
		}
		match, ok := m.BestMatch([]float32{1, 0, 0}, tied)
		if !ok || match.StudentID != 5 {
			t.Errorf("Expected first entry to win tie, got %+v", match)
		}
	})

	t.Run("scenario from distinct identities", func(t *testing.T) {
		// A at similarity ~0.9, B at ~0.2
		g := []database.GalleryEntry{
			{StudentID: 1, Name: "A", Embeddings: [][]float32{{0.9, 0.4359, 0}}},
			{StudentID: 2, Name: "B", Embeddings: [][]float32{{0.2, -0.9798, 0}}},
		}
		query := []float32{1, 0, 0}

		m := NewMatcher(0.6)
		match, ok := m.BestMatch(query, g)
		if !ok || match.StudentID != 1 {
			t.Errorf("Expected A at threshold 0.6, got %+v ok=%v", match, ok)
		}

		strict := NewMatcher(0.95)
		if _, ok := strict.BestMatch(query, g); ok {
			t.Error("Expected no match at threshold 0.95")
		}
	})
}
