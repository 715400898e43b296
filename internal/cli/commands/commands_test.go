package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/core"
)

func TestSplitSelect(t *testing.T) {
	assert.Nil(t, splitSelect(""))
	assert.Equal(t, []string{"a"}, splitSelect("a"))
	assert.Equal(t, []string{"a", "b"}, splitSelect("a, b"))
	assert.Equal(t, []string{"a", "b"}, splitSelect("a,,b,"))
}

func TestIsStaticError(t *testing.T) {
	assert.True(t, IsStaticError(&core.ConfigError{Message: "bad"}))
	assert.True(t, IsStaticError(&core.ParseError{Node: "m"}))
	assert.True(t, IsStaticError(&core.CompileError{Node: "m"}))
	assert.False(t, IsStaticError(&core.RuntimeError{Node: "m", Err: os.ErrClosed}))
	assert.False(t, IsStaticError(os.ErrNotExist))
	assert.False(t, IsStaticError(nil))
}

func TestRenderRunReport(t *testing.T) {
	now := time.Now()
	run := &core.Run{
		ID:          "run-1",
		Status:      core.RunStatusFailed,
		StartedAt:   now,
		CompletedAt: now.Add(time.Second),
		Results: map[string]*core.NodeResult{
			"a": {Name: "a", Status: core.NodeStatusSuccess, RowsAffected: 10},
			"b": {Name: "b", Status: core.NodeStatusFailed, Error: "runtime error in b: boom"},
		},
	}

	var buf bytes.Buffer
	renderRunReport(&buf, run, []string{"a", "b"})
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "1 succeeded, 1 failed, 0 skipped")
}

func TestRenderTestReport_CountsFailures(t *testing.T) {
	results := []core.TestResult{
		{Model: "a", Column: "id", Kind: core.TestUnique, Passed: true},
		{Model: "a", Column: "id", Kind: core.TestNotNull, Passed: false, FailingRows: 2},
		{Model: "b", Column: "x", Kind: core.TestExpression, Error: "syntax error"},
	}

	var buf bytes.Buffer
	failed := renderTestReport(&buf, results)

	assert.Equal(t, 2, failed)
	assert.Contains(t, buf.String(), "1 of 3 tests passed")
	assert.Contains(t, buf.String(), "syntax error")
}

func TestInitCommand_Scaffolds(t *testing.T) {
	dir := t.TempDir()

	cmd := NewInitCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	for _, rel := range []string{
		"loom.yaml",
		"seeds/raw_customers.csv",
		"models/staging/stg_customers.sql",
		"models/marts/customer_orders.sql",
		"models/marts/schema.yaml",
	} {
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, rel)
	}
	assert.True(t, strings.Contains(buf.String(), "Project ready"))
}

func TestInitCommand_RefusesExistingProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte("{}"), 0o644))

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{dir})
	require.Error(t, cmd.Execute())
}
