// Package merge deduplicates scenes collected across partitions.
package merge

import (
	"errors"
	"sort"

	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// ErrFinalized is returned when adding to a finalized set.
var ErrFinalized = errors.New("result set is finalized")

// ResultSet holds unique scenes keyed by (ID, ItemType). The first record
// seen for a key wins; later duplicates are counted and dropped without
// comparing their contents. A ResultSet is not safe for concurrent use.
type ResultSet struct {
	byKey      map[scene.Key]scene.Scene
	duplicates int
	finalized  bool
	ordered    []scene.Scene
}

// New returns an empty result set.
func New() *ResultSet {
	return &ResultSet{byKey: make(map[scene.Key]scene.Scene)}
}

// Add inserts s unless its key is already present. It reports whether s was new.
func (r *ResultSet) Add(s scene.Scene) (bool, error) {
	if r.finalized {
		return false, ErrFinalized
	}
	k := s.Key()
	if _, ok := r.byKey[k]; ok {
		r.duplicates++
		return false, nil
	}
	r.byKey[k] = s
	return true, nil
}

// AddAll inserts scenes in order and returns how many were new.
func (r *ResultSet) AddAll(scenes []scene.Scene) (int, error) {
	if r.finalized {
		return 0, ErrFinalized
	}
	added := 0
	for _, s := range scenes {
		ok, err := r.Add(s)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Merge adds every scene of other. Other is left unchanged.
func (r *ResultSet) Merge(other *ResultSet) (int, error) {
	return r.AddAll(other.unordered())
}

// Finalize freezes the set. Scenes are ordered by acquisition time, then
// item type, then ID, so the result does not depend on arrival order.
func (r *ResultSet) Finalize() []scene.Scene {
	if r.finalized {
		return r.ordered
	}
	r.finalized = true
	r.ordered = r.unordered()
	sort.Slice(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if !a.Acquired.Equal(b.Acquired) {
			return a.Acquired.Before(b.Acquired)
		}
		if a.ItemType != b.ItemType {
			return a.ItemType < b.ItemType
		}
		return a.ID < b.ID
	})
	return r.ordered
}

// Scenes returns the ordered scenes, finalizing the set if needed.
func (r *ResultSet) Scenes() []scene.Scene {
	return r.Finalize()
}

// Len is the number of unique scenes.
func (r *ResultSet) Len() int {
	return len(r.byKey)
}

// Duplicates is the number of records dropped as already present.
func (r *ResultSet) Duplicates() int {
	return r.duplicates
}

// Contains reports whether k is present.
func (r *ResultSet) Contains(k scene.Key) bool {
	_, ok := r.byKey[k]
	return ok
}

func (r *ResultSet) unordered() []scene.Scene {
	out := make([]scene.Scene, 0, len(r.byKey))
	for _, s := range r.byKey {
		out = append(out, s)
	}
	return out
}
