// SPDX-License-Identifier: MIT

package outputpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionFallsBackToSystemTemp(t *testing.T) {
	s, err := NewSession(filepath.Join(t.TempDir(), "out.mp4"), "")
	require.NoError(t, err)
	assert.DirExists(t, s.TempDir)
	assert.Equal(t, ".mp4", filepath.Ext(s.TempVideo))
	t.Cleanup(func() { os.RemoveAll(s.TempDir) })
}

func TestFinalizeMovesAndCleansUpTemp(t *testing.T) {
	final := filepath.Join(t.TempDir(), "nested", "out.mkv")
	s, err := NewSession(final, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.TempVideo, []byte("data"), 0o644))
	require.NoError(t, s.Finalize(s.TempVideo))

	assert.FileExists(t, final)
	assert.NoDirExists(t, s.TempDir)
	content, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}
