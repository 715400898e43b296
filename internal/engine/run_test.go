package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/core"
)

func TestRun_ExecutesInDependencyOrder(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/base.sql":  `SELECT 1 AS id`,
		"models/mid.sql":   `SELECT * FROM {{ ref('base') }}`,
		"models/final.sql": `SELECT * FROM {{ ref('mid') }}`,
	})
	require.NoError(t, eng.Compile())

	run, err := eng.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.NotEmpty(t, run.ID)
	success, failed, skipped := run.Counts()
	assert.Equal(t, 3, success)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)

	base := fake.firstIndex("main.base")
	mid := fake.firstIndex("main.mid")
	final := fake.firstIndex("main.final")
	require.GreaterOrEqual(t, base, 0)
	assert.Less(t, base, mid)
	assert.Less(t, mid, final)
}

func TestRun_FailurePropagatesSkips(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/broken.sql":     `SELECT * FROM boom_table`,
		"models/dependent.sql":  `SELECT * FROM {{ ref('broken') }}`,
		"models/grandchild.sql": `SELECT * FROM {{ ref('dependent') }}`,
		"models/bystander.sql":  `SELECT 1`,
	})
	require.NoError(t, eng.Compile())
	fake.failOn = "boom_table"

	run, err := eng.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, core.NodeStatusFailed, run.Results["broken"].Status)
	assert.Contains(t, run.Results["broken"].Error, "runtime error")
	assert.Equal(t, core.NodeStatusSkipped, run.Results["dependent"].Status)
	assert.Equal(t, core.NodeStatusSkipped, run.Results["grandchild"].Status)
	assert.Contains(t, run.Results["dependent"].Error, "broken")

	// The independent branch still runs.
	assert.Equal(t, core.NodeStatusSuccess, run.Results["bystander"].Status)
	assert.Equal(t, 1, fake.rollbacks)
}

func TestRun_FailedNodeRollsBackItsTransaction(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/broken.sql": `/*---
materialized: table
---*/
SELECT * FROM boom_table`,
	})
	require.NoError(t, eng.Compile())
	fake.failOn = "boom_table"

	run, err := eng.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, run.Failed())
	assert.Zero(t, fake.commits)
	assert.Equal(t, 1, fake.rollbacks)
}

func TestRun_SelectWithDownstream(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/a.sql": `SELECT 1`,
		"models/b.sql": `SELECT * FROM {{ ref('a') }}`,
		"models/c.sql": `SELECT * FROM {{ ref('b') }}`,
		"models/d.sql": `SELECT 1`,
	})
	require.NoError(t, eng.Compile())

	run, err := eng.Run(context.Background(), RunOptions{Select: []string{"b"}, Downstream: true})
	require.NoError(t, err)

	assert.Len(t, run.Results, 2)
	assert.Equal(t, core.NodeStatusSuccess, run.Results["b"].Status)
	assert.Equal(t, core.NodeStatusSuccess, run.Results["c"].Status)
	// b's SQL mentions main.a, so look for a's creation specifically.
	assert.Equal(t, -1, fake.firstIndex("VIEW main.a AS"))
	assert.Equal(t, -1, fake.firstIndex("VIEW main.d AS"))
}

func TestRun_SelectUnknownNode(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/a.sql": `SELECT 1`,
	})
	require.NoError(t, eng.Compile())

	_, err := eng.Run(context.Background(), RunOptions{Select: []string{"ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRun_SeedsOnly(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"seeds/countries.csv": "code\nus\n",
		"models/geo.sql":      `SELECT * FROM {{ ref('countries') }}`,
	})
	require.NoError(t, eng.Compile())

	run, err := eng.Run(context.Background(), RunOptions{SeedsOnly: true})
	require.NoError(t, err)

	assert.Len(t, run.Results, 1)
	assert.Equal(t, core.NodeStatusSuccess, run.Results["countries"].Status)
	assert.Equal(t, -1, fake.firstIndex("main.geo"))
}

func TestRun_CancellationLeavesPartialRun(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/slow.sql":  `SELECT 1`,
		"models/after.sql": `SELECT * FROM {{ ref('slow') }}`,
	})
	require.NoError(t, eng.Compile())
	fake.execWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	run, err := eng.Run(ctx, RunOptions{Parallelism: 1})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusPartial, run.Status)
	// The in-flight node finished; the undispatched one was skipped.
	assert.Equal(t, core.NodeStatusSuccess, run.Results["slow"].Status)
	assert.Equal(t, core.NodeStatusSkipped, run.Results["after"].Status)
	assert.Equal(t, "run cancelled", run.Results["after"].Error)
}

func TestRun_CancellationDrainsQueuedNodes(t *testing.T) {
	// Four independent models and one worker: all four are eligible and
	// enqueued immediately, but only the in-flight one may finish after
	// cancellation. The queued rest must be skipped, not executed.
	eng, fake := newTestEngine(t, map[string]string{
		"models/a.sql": `SELECT 1`,
		"models/b.sql": `SELECT 2`,
		"models/c.sql": `SELECT 3`,
		"models/d.sql": `SELECT 4`,
	})
	require.NoError(t, eng.Compile())
	fake.execWait = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	run, err := eng.Run(ctx, RunOptions{Parallelism: 1})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusPartial, run.Status)
	success, failed, skipped := run.Counts()
	assert.Equal(t, 1, success)
	assert.Zero(t, failed)
	assert.Equal(t, 3, skipped)
	for _, res := range run.Results {
		if res.Status == core.NodeStatusSkipped {
			assert.Equal(t, "run cancelled", res.Error)
		}
	}
}

func TestRun_CancellationWithNothingSkippedCompletes(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/only.sql": `SELECT 1`,
	})
	require.NoError(t, eng.Compile())
	fake.execWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	// The sole node was already in flight when the run was cancelled; it
	// finishes, nothing was skipped, so the run is complete.
	run, err := eng.Run(ctx, RunOptions{Parallelism: 1})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Empty(t, run.Error)
	success, failed, skipped := run.Counts()
	assert.Equal(t, 1, success)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)
}

func TestRun_SourceNodesAreNotDispatched(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]string{
		"models/schema.yaml": `
sources:
  - name: raw
    schema: raw
    tables:
      - name: orders
`,
		"models/stg_orders.sql": `SELECT * FROM {{ source('raw', 'orders') }}`,
	})
	require.NoError(t, eng.Compile())

	run, err := eng.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	_, tracked := run.Results["raw.orders"]
	assert.False(t, tracked)
	assert.Equal(t, core.NodeStatusSuccess, run.Results["stg_orders"].Status)
	assert.GreaterOrEqual(t, fake.firstIndex("raw.orders"), 0) // referenced, never created
}
