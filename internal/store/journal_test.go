package store

import (
	"path/filepath"
	"testing"
	"time"

	"acolyte/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openJournal(t, filepath.Join(t.TempDir(), "journal.db"))

	at := time.Unix(1700000000, 42)
	events := []scheduler.Event{
		{Kind: scheduler.EventImpulseStarted, Beat: 1, Imperative: "earn", Impulse: "labour", Priority: "goal", Reaction: "r1", At: at},
		{Kind: scheduler.EventReactionEnded, Beat: 4, Impulse: "labour", Reaction: "r1", Aborted: true, Detail: "refused", At: at},
		{Kind: scheduler.EventImperativeCompleted, Beat: 9, Imperative: "earn"},
	}
	for _, e := range events {
		require.NoError(t, j.Record(e))
	}

	got, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "imperative_completed", got[0].Kind)
	assert.False(t, got[0].At.IsZero(), "missing timestamps are filled in")

	ended := got[1]
	assert.Equal(t, uint64(4), ended.Beat)
	assert.Equal(t, "reaction_ended", ended.Kind)
	assert.True(t, ended.Aborted)
	assert.Equal(t, "refused", ended.Detail)
	assert.Equal(t, j.RunID(), ended.RunID)
	assert.True(t, at.Equal(ended.At))

	all, err := j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Greater(t, all[0].Seq, all[2].Seq)

	written, failed := j.Stats()
	assert.Equal(t, int64(3), written)
	assert.Zero(t, failed)
}

func TestListenerAndCounts(t *testing.T) {
	j := openJournal(t, ":memory:")

	var l scheduler.Listener = j
	l.OnEvent(scheduler.Event{Kind: scheduler.EventReactionStarted, Beat: 1})
	l.OnEvent(scheduler.Event{Kind: scheduler.EventReactionEnded, Beat: 2})
	l.OnEvent(scheduler.Event{Kind: scheduler.EventReactionStarted, Beat: 3})

	counts, err := j.KindCounts(j.RunID())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"reaction_started": 2, "reaction_ended": 1}, counts)
}

func TestRunsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(scheduler.Event{Kind: scheduler.EventImperativeAdded, Beat: 1}))
	require.NoError(t, first.Close())

	second := openJournal(t, path)
	require.NoError(t, second.Record(scheduler.Event{Kind: scheduler.EventSchedulerStopped, Beat: 2}))
	assert.NotEqual(t, first.RunID(), second.RunID())

	runs, err := second.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID(), runs[0])

	mine, err := second.RunEntries(second.RunID(), 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "scheduler_stopped", mine[0].Kind)

	all, err := second.Recent(10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Record(scheduler.Event{}), ErrClosed)
	_, err = j.Recent(1)
	assert.ErrorIs(t, err, ErrClosed)
	// Must not panic or log an error.
	j.OnEvent(scheduler.Event{Kind: scheduler.EventReactionEnded})
}

func TestInspectDoesNotStartARun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	_, err := Inspect(path)
	require.Error(t, err, "missing journals are not created")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(scheduler.Event{Kind: scheduler.EventImperativeAdded, Beat: 1, Imperative: "earn"}))
	require.NoError(t, w.Close())

	r, err := Inspect(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.RunID())
	assert.ErrorIs(t, r.Record(scheduler.Event{}), ErrReadOnly)

	runs, err := r.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{w.RunID()}, runs)

	entries, err := r.Recent(5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "earn", entries[0].Imperative)
}
