package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/adapter"
)

func TestNew_Defaults(t *testing.T) {
	eng, err := New(Config{Adapter: adapter.Config{Type: "fake"}})
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	assert.Equal(t, "dev", eng.environment)
	assert.Equal(t, DefaultParallelism, eng.parallelism)
	assert.NotNil(t, eng.logger)
}

func TestNew_UnknownAdapter(t *testing.T) {
	_, err := New(Config{Adapter: adapter.Config{Type: "oracle"}})
	require.Error(t, err)
	var uerr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &uerr)
}

func TestCompile_EmptyProject(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	require.NoError(t, eng.Compile())
	assert.Zero(t, eng.Graph().Len())
}
