package tally_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/profitbox/betops/tally"
)

func TestTallyCountsFailuresWithoutAborting(t *testing.T) {
	tl := tally.New()

	tl.Add("2026-08-29/4/a.jsonl", nil)
	tl.Add("2026-08-29/4/b.jsonl", errors.New("short write"))
	tl.Add("2026-08-29/4/c.jsonl", nil)

	assert.Equal(t, 3, tl.Attempted())
	assert.Equal(t, 2, tl.Succeeded())
	assert.Equal(t, 1, tl.Failed())
}

func TestTallyOutcomesSortedByPath(t *testing.T) {
	tl := tally.New()

	tl.Add("c", nil)
	tl.Add("a", errors.New("boom"))
	tl.Add("b", nil)

	outcomes := tl.Outcomes()

	assert.Equal(t, "a", outcomes[0].Path)
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, "b", outcomes[1].Path)
	assert.Equal(t, "c", outcomes[2].Path)
}

func TestTallyEmpty(t *testing.T) {
	tl := tally.New()

	assert.Equal(t, 0, tl.Attempted())
	assert.Equal(t, 0, tl.Failed())
	assert.Empty(t, tl.Outcomes())
}
