package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *Request {
	return &Request{
		Term: "Baz(",
		Projects: []ProjectFiles{
			{Project: Project{Name: "app"}, Files: []string{"/a.cs", "/b.cs"}},
			{Project: Project{Name: "lib"}, Files: []string{"/c.cs"}},
		},
	}
}

func TestSQLHistory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h := NewSQLHistory(mustOpenDB(t))

	start := time.Now().Add(-3 * time.Second)
	id, err := h.Begin(ctx, testRequest(), "schedule", start)
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, h.Progress(ctx, id, 2, 1, 0))
	entries, err := h.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "running", entries[0].Status)
	assert.Equal(t, int64(2), entries[0].FilesProcessed)
	assert.Equal(t, []string{"app", "lib"}, entries[0].Projects)
	assert.Equal(t, int64(3), entries[0].TotalFiles)
	assert.Nil(t, entries[0].FinishedAt)

	require.NoError(t, h.Finish(ctx, id, Summary{
		RunID: 7, FilesProcessed: 3, Hits: 4, Warnings: 1, Cancelled: true,
		StartedAt: start, FinishedAt: time.Now(),
	}))

	// Progress after finish must not touch a terminal row.
	require.NoError(t, h.Progress(ctx, id, 1, 0, 0))

	entries, err = h.List(ctx, 10, 0)
	require.NoError(t, err)
	e := entries[0]
	assert.Equal(t, "cancelled", e.Status)
	assert.Equal(t, "schedule", e.TriggeredBy)
	assert.Equal(t, int64(3), e.FilesProcessed)
	assert.Equal(t, int64(4), e.Hits)
	assert.Equal(t, int64(1), e.Warnings)
	require.NotNil(t, e.FinishedAt)
	require.NotNil(t, e.DurationSeconds)
	assert.GreaterOrEqual(t, *e.DurationSeconds, int64(2))
}

func TestSQLHistory_ListNewestFirstAndPaged(t *testing.T) {
	ctx := context.Background()
	h := NewSQLHistory(mustOpenDB(t))

	base := time.Now().Add(-time.Hour)
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := h.Begin(ctx, testRequest(), "manual", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	page, err := h.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, err = h.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestSQLHistory_PruneKeepsRunning(t *testing.T) {
	ctx := context.Background()
	h := NewSQLHistory(mustOpenDB(t))

	old := time.Now().Add(-48 * time.Hour)
	finished, err := h.Begin(ctx, testRequest(), "manual", old)
	require.NoError(t, err)
	require.NoError(t, h.Finish(ctx, finished, Summary{RunID: 1, StartedAt: old, FinishedAt: old.Add(time.Second)}))
	_, err = h.Begin(ctx, testRequest(), "manual", old)
	require.NoError(t, err)

	n, err := h.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := h.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "running", entries[0].Status)
}

func TestMarkStaleScansFailed(t *testing.T) {
	ctx := context.Background()
	db := mustOpenDB(t)
	h := NewSQLHistory(db)

	_, err := h.Begin(ctx, testRequest(), "manual", time.Now())
	require.NoError(t, err)

	require.NoError(t, MarkStaleScansFailed(db))

	entries, err := h.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Status)
	assert.NotNil(t, entries[0].FinishedAt)
}

func TestSQLHistory_ProjectNamesWithCommas(t *testing.T) {
	ctx := context.Background()
	h := NewSQLHistory(mustOpenDB(t))

	req := &Request{
		Term: "Baz(",
		Projects: []ProjectFiles{
			{Project: Project{Name: "a,b"}},
			{Project: Project{Name: `quoted "c"`}},
		},
	}
	_, err := h.Begin(ctx, req, "manual", time.Now())
	require.NoError(t, err)

	entries, err := h.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"a,b", `quoted "c"`}, entries[0].Projects)
}
