package engine

import (
	"path/filepath"
	"testing"

	"github.com/openmined/deltasync/internal/delta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootLock(t *testing.T) {
	root := t.TempDir()

	first := NewRootLock(root)
	second := NewRootLock(root)
	assert.Equal(t, filepath.Join(root, delta.MetadataDirName, lockFileName), first.Path())

	require.NoError(t, first.Lock())
	assert.ErrorIs(t, second.Lock(), ErrRootLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())

	// unlocking twice is harmless
	assert.NoError(t, second.Unlock())
}
