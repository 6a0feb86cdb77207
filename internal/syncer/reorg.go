package syncer

import "strings"

// HashWindow remembers the canonical block hash for the most recent depth
// heights the live tail has committed. It is the reorg-detection signal: a
// freshly fetched header whose hash disagrees with the recorded one marks
// every recorded hash at or above that height as orphaned. Owned by the
// single live-tail loop; not safe for concurrent use.
type HashWindow struct {
	depth  int
	hashes map[uint64]string
}

func NewHashWindow(depth int) *HashWindow {
	if depth <= 0 {
		depth = 64
	}
	return &HashWindow{
		depth:  depth,
		hashes: make(map[uint64]string),
	}
}

// Observe records the canonical hash at a height and prunes entries that
// fell out of the window.
func (w *HashWindow) Observe(number uint64, hash string) {
	w.hashes[number] = strings.ToLower(hash)
	if number >= uint64(w.depth) {
		delete(w.hashes, number-uint64(w.depth))
	}
}

// Hash returns the recorded hash at a height.
func (w *HashWindow) Hash(number uint64) (string, bool) {
	hash, ok := w.hashes[number]
	return hash, ok
}

// Matches reports whether the recorded hash at a height equals the given
// one. Unrecorded heights match vacuously.
func (w *HashWindow) Matches(number uint64, hash string) bool {
	stored, ok := w.hashes[number]
	if !ok {
		return true
	}
	return stored == strings.ToLower(hash)
}

// Rollback forgets every recorded hash at or above the fork height, after the
// orphaned segment has been rolled back in the store.
func (w *HashWindow) Rollback(fork uint64) {
	for number := range w.hashes {
		if number >= fork {
			delete(w.hashes, number)
		}
	}
}
