// Package tally collects per-item outcomes of a batch run.
package tally

import (
	"sort"
	"sync"
)

type Outcome struct {
	Path string
	Err  error
}

type Tally interface {
	Add(path string, err error)
	Attempted() int
	Succeeded() int
	Failed() int
	// Outcomes returns the recorded outcomes sorted by path, so reports stay
	// deterministic even when items were processed concurrently.
	Outcomes() []Outcome
}

type tally struct {
	mu        sync.Mutex
	outcomes  []Outcome
	succeeded int
}

func New() Tally {
	return &tally{}
}

func (t *tally) Add(path string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.outcomes = append(t.outcomes, Outcome{Path: path, Err: err})

	if err == nil {
		t.succeeded++
	}
}

func (t *tally) Attempted() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.outcomes)
}

func (t *tally) Succeeded() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.succeeded
}

func (t *tally) Failed() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.outcomes) - t.succeeded
}

func (t *tally) Outcomes() []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	ans := make([]Outcome, len(t.outcomes))
	copy(ans, t.outcomes)

	sort.Slice(ans, func(i, j int) bool { return ans[i].Path < ans[j].Path })

	return ans
}
