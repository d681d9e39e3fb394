// Package batch assembles identity-balanced training batches. The miner in
// internal/triplet needs every batch to contain at least two identities with
// at least two samples each; PKSampler guarantees the stronger standard
// composition of P identities × K samples.
package batch

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrBadComposition signals P/K parameters the pool cannot satisfy.
	ErrBadComposition = errors.New("invalid batch composition")
)

// Item is one sample in the pool: an index into the caller's storage plus the
// identity it belongs to.
type Item struct {
	Index    int
	PersonID int
}

// PKSampler draws batches of P distinct identities with K samples each.
// Identities are shuffled once per epoch and consumed in order; identities
// with fewer than K samples are padded by drawing with replacement, so every
// batch satisfies the uniform-count composition the miner was designed for.
//
// PKSampler is not safe for concurrent use; each training loop owns its own.
type PKSampler struct {
	byPerson map[int][]int // person -> pool indices
	persons  []int
	p, k     int
	rng      *rand.Rand
	cursor   int
}

// NewPKSampler builds a sampler over the given pool. P and K must both be at
// least 2 and the pool must contain at least P distinct identities.
func NewPKSampler(pool []Item, p, k int, seed int64) (*PKSampler, error) {
	if p < 2 || k < 2 {
		return nil, fmt.Errorf("need P ≥ 2 and K ≥ 2, got P=%d K=%d: %w", p, k, ErrBadComposition)
	}

	byPerson := make(map[int][]int)
	for _, it := range pool {
		byPerson[it.PersonID] = append(byPerson[it.PersonID], it.Index)
	}
	if len(byPerson) < p {
		return nil, fmt.Errorf("pool has %d identities, need at least %d: %w", len(byPerson), p, ErrBadComposition)
	}

	persons := make([]int, 0, len(byPerson))
	for pid := range byPerson {
		persons = append(persons, pid)
	}

	s := &PKSampler{
		byPerson: byPerson,
		persons:  persons,
		p:        p,
		k:        k,
		rng:      rand.New(rand.NewSource(seed)),
	}
	s.shuffle()
	return s, nil
}

// BatchSize returns P×K.
func (s *PKSampler) BatchSize() int {
	return s.p * s.k
}

// Persons returns the number of distinct identities in the pool.
func (s *PKSampler) Persons() int {
	return len(s.persons)
}

// Next returns the pool indices and aligned identity labels of the next
// batch. Each identity appears once per epoch pass; a new epoch reshuffles.
func (s *PKSampler) Next() (indices []int, labels []int) {
	indices = make([]int, 0, s.p*s.k)
	labels = make([]int, 0, s.p*s.k)

	for i := 0; i < s.p; i++ {
		if s.cursor >= len(s.persons) {
			s.shuffle()
		}
		pid := s.persons[s.cursor]
		s.cursor++

		for _, idx := range s.draw(pid) {
			indices = append(indices, idx)
			labels = append(labels, pid)
		}
	}
	return indices, labels
}

// draw picks K samples of one identity: a shuffled prefix when enough are
// available, otherwise all of them plus replacement draws.
func (s *PKSampler) draw(pid int) []int {
	avail := s.byPerson[pid]
	out := make([]int, 0, s.k)

	if len(avail) >= s.k {
		perm := s.rng.Perm(len(avail))
		for _, i := range perm[:s.k] {
			out = append(out, avail[i])
		}
		return out
	}

	out = append(out, avail...)
	for len(out) < s.k {
		out = append(out, avail[s.rng.Intn(len(avail))])
	}
	return out
}

func (s *PKSampler) shuffle() {
	s.rng.Shuffle(len(s.persons), func(i, j int) {
		s.persons[i], s.persons[j] = s.persons[j], s.persons[i]
	})
	s.cursor = 0
}
