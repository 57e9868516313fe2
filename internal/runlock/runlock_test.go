package runlock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "docmigrate.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "second release is a no-op")

	again, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestRelease_NilLock(t *testing.T) {
	t.Parallel()

	var l *Lock
	assert.NoError(t, l.Release())
}
