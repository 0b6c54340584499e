// Package store keeps the sample history reported by each mote.
package store

import (
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Unknown is returned for samples that were never reported.
const Unknown = -1

type node struct {
	samples []int
	maxX    int
}

func (n *node) set(x int, v uint16) {
	if x >= len(n.samples) {
		grow := x + 1 - len(n.samples)
		for range grow {
			n.samples = append(n.samples, Unknown)
		}
	}
	n.samples[x] = int(v)
	if x > n.maxX {
		n.maxX = x
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[uint16]*node
	order []uint16
}

// New returns an empty store.
func New() *Store {
	return &Store{nodes: make(map[uint16]*node)}
}

// Update records readings from mote id. Reading i of report count lands at
// sample index count*len(readings)+i. It reports whether id was new.
func (s *Store) Update(id, count uint16, readings []uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		n = &node{maxX: Unknown}
		s.nodes[id] = n
		s.order = append(s.order, id)
	}
	start := int(count) * len(readings)
	for i, v := range readings {
		n.set(start+i, v)
	}
	return !ok
}

// Sample returns the value of sample x from mote id, or Unknown.
func (s *Store) Sample(id uint16, x int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok || x < 0 || x >= len(n.samples) {
		return Unknown
	}
	return n.samples[x]
}

// MaxX returns the highest sample index received from id, or Unknown.
func (s *Store) MaxX(id uint16) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[id]; ok {
		return n.maxX
	}
	return Unknown
}

// Latest returns the sample at MaxX.
func (s *Store) Latest(id uint16) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok || n.maxX < 0 {
		return Unknown
	}
	return n.samples[n.maxX]
}

// IDs lists motes in the order they were first heard.
func (s *Store) IDs() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Len is the number of known motes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Stats returns the mean and standard deviation of the known samples among
// the last window sample slots of mote id (all slots when window <= 0).
func (s *Store) Stats(id uint16, window int) (mean, stddev float64) {
	s.mu.RLock()
	n, ok := s.nodes[id]
	if !ok || n.maxX < 0 {
		s.mu.RUnlock()
		return 0, 0
	}
	from := 0
	if window > 0 && n.maxX+1-window > 0 {
		from = n.maxX + 1 - window
	}
	xs := make([]float64, 0, n.maxX+1-from)
	for _, v := range n.samples[from : n.maxX+1] {
		if v != Unknown {
			xs = append(xs, float64(v))
		}
	}
	s.mu.RUnlock()

	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Clear forgets every mote.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[uint16]*node)
	s.order = nil
}
