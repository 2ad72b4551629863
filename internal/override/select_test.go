package override

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noren/internal/model"
)

var selNow = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

func rec(id string, kind model.OverrideKind, priority int, updatedAt time.Time) model.OverrideRecord {
	return model.OverrideRecord{
		ID:        id,
		Kind:      kind,
		Priority:  priority,
		Published: true,
		UpdatedAt: updatedAt,
	}
}

func TestSelectActivePriority(t *testing.T) {
	end := selNow.Add(time.Hour)
	closed := rec("a", model.OverrideClosed, 5, selNow)
	closed.EndTime = &end
	special := rec("b", model.OverrideSpecial, 1, selNow)

	got := SelectActive([]model.OverrideRecord{special, closed}, selNow)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID, "higher priority wins")
}

func TestSelectActiveTieBreak(t *testing.T) {
	older := rec("old", model.OverrideSpecial, 3, selNow.Add(-2*time.Hour))
	newer := rec("new", model.OverrideSpecial, 3, selNow.Add(-time.Hour))

	// Later updatedAt wins regardless of input order.
	for _, candidates := range [][]model.OverrideRecord{
		{older, newer},
		{newer, older},
	} {
		got := SelectActive(candidates, selNow)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.ID)
	}
}

func TestSelectActiveFiltersExpired(t *testing.T) {
	past := selNow.Add(-time.Minute)
	expired := rec("expired", model.OverrideClosed, 9, selNow)
	expired.EndTime = &past

	assert.Nil(t, SelectActive([]model.OverrideRecord{expired}, selNow),
		"an ended override is never selected even as the only candidate")
}

func TestSelectActiveFiltersUnpublishedAndFuture(t *testing.T) {
	future := selNow.Add(time.Hour)

	draft := rec("draft", model.OverrideClosed, 9, selNow)
	draft.Published = false

	upcoming := rec("upcoming", model.OverrideClosed, 9, selNow)
	upcoming.StartTime = &future

	live := rec("live", model.OverrideSpecial, 1, selNow)

	got := SelectActive([]model.OverrideRecord{draft, upcoming, live}, selNow)
	require.NotNil(t, got)
	assert.Equal(t, "live", got.ID)
}

func TestSelectActiveEmpty(t *testing.T) {
	assert.Nil(t, SelectActive(nil, selNow))
}
