package recognition

import (
	"sort"
	"sync"
	"time"
)

// Observation is one frame's match result. StudentID 0 means the frame
// produced no match; recording misses dilutes stale votes in the window.
type Observation struct {
	StudentID  int64
	Similarity float64
	At         time.Time
}

// StateStore holds the stabilizer's mutable state: the shared rolling window
// and the per-identity cooldown map. The default MemoryStateStore is
// process-local, so confirmation state resets on restart — by failing back
// to re-verification rather than trusting stale votes. A shared store can
// replace it for multi-instance deployments.
type StateStore interface {
	AppendObservation(o Observation)
	Window() []Observation
	ClearWindow()
	LastConfirmed(studentID int64) (time.Time, bool)
	SetLastConfirmed(studentID int64, at time.Time)
	ResetCooldowns()
}

// MemoryStateStore is the in-process StateStore.
type MemoryStateStore struct {
	mu        sync.Mutex
	window    []Observation
	capacity  int
	cooldowns map[int64]time.Time
}

// NewMemoryStateStore creates a store with a bounded window of the given capacity.
func NewMemoryStateStore(capacity int) *MemoryStateStore {
	return &MemoryStateStore{
		capacity:  capacity,
		cooldowns: make(map[int64]time.Time),
	}
}

func (s *MemoryStateStore) AppendObservation(o Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = append(s.window, o)
	if len(s.window) > s.capacity {
		s.window = s.window[len(s.window)-s.capacity:]
	}
}

func (s *MemoryStateStore) Window() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Observation(nil), s.window...)
}

func (s *MemoryStateStore) ClearWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = nil
}

func (s *MemoryStateStore) LastConfirmed(studentID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cooldowns[studentID]
	return t, ok
}

func (s *MemoryStateStore) SetLastConfirmed(studentID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[studentID] = at
}

func (s *MemoryStateStore) ResetCooldowns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns = make(map[int64]time.Time)
}

// Confirmation is an identity that met K-of-N outside its cooldown.
type Confirmation struct {
	StudentID  int64
	Confidence float64 // median similarity of the qualifying observations
}

// Progress reports how close an identity is to confirmation.
type Progress struct {
	Matched  int `json:"matched"`
	Required int `json:"required"`
	Window   int `json:"window"`
}

// Stabilizer requires K matching observations within the last N frames
// before an identity is trusted, then suppresses re-confirmation for a
// cooldown period so a person lingering in frame is written once.
type Stabilizer struct {
	store    StateStore
	k        int
	n        int
	cooldown time.Duration
	now      func() time.Time
}

// NewStabilizer creates a stabilizer. k must be <= the store's window capacity.
func NewStabilizer(store StateStore, k, n int, cooldown time.Duration) *Stabilizer {
	return &Stabilizer{
		store:    store,
		k:        k,
		n:        n,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Update records one frame's match result. Pass studentID 0 for a frame
// that matched nobody.
func (s *Stabilizer) Update(studentID int64, similarity float64) {
	s.store.AppendObservation(Observation{
		StudentID:  studentID,
		Similarity: similarity,
		At:         s.now(),
	})
}

// Confirmed scans the window and returns the first identity, in the order
// identities reach K votes, that has >= K observations and is not inside
// its cooldown. Confidence is the median similarity of that identity's
// observations in the window.
func (s *Stabilizer) Confirmed() (Confirmation, bool) {
	window := s.store.Window()
	counts := make(map[int64]int)
	sims := make(map[int64][]float64)
	var qualifyOrder []int64

	for _, o := range window {
		if o.StudentID == 0 {
			continue
		}
		counts[o.StudentID]++
		sims[o.StudentID] = append(sims[o.StudentID], o.Similarity)
		if counts[o.StudentID] == s.k {
			qualifyOrder = append(qualifyOrder, o.StudentID)
		}
	}

	now := s.now()
	for _, id := range qualifyOrder {
		if last, ok := s.store.LastConfirmed(id); ok && now.Sub(last) < s.cooldown {
			continue
		}
		return Confirmation{StudentID: id, Confidence: median(sims[id])}, true
	}
	return Confirmation{}, false
}

// MarkConfirmed starts the identity's cooldown.
func (s *Stabilizer) MarkConfirmed(studentID int64) {
	s.store.SetLastConfirmed(studentID, s.now())
}

// Progress reports (matched, K, N) for client-facing feedback.
func (s *Stabilizer) Progress(studentID int64) Progress {
	matched := 0
	for _, o := range s.store.Window() {
		if o.StudentID == studentID {
			matched++
		}
	}
	return Progress{Matched: matched, Required: s.k, Window: s.n}
}

// ClearWindow drops the observation window. Cooldowns are untouched.
func (s *Stabilizer) ClearWindow() {
	s.store.ClearWindow()
}

// ResetCooldowns drops all cooldowns. The window is untouched.
func (s *Stabilizer) ResetCooldowns() {
	s.store.ResetCooldowns()
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
