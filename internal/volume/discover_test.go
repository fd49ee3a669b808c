package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandidate(t *testing.T, root, name string, withContainer bool) string {
	t.Helper()
	path := filepath.Join(root, name)
	if withContainer {
		require.NoError(t, os.MkdirAll(filepath.Join(path, "Slides"), 0o755))
	} else {
		require.NoError(t, os.MkdirAll(path, 0o755))
	}
	return path
}

func TestFromPath(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Laptop", true)

	v, err := FromPath(path, "Slides")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Laptop", v.Name)
	assert.Equal(t, path, v.Path)
}

func TestFromPathNoContainer(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Misc", false)

	v, err := FromPath(path, "Slides")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFromPathContainerIsFile(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Odd", false)
	require.NoError(t, os.WriteFile(filepath.Join(path, "Slides"), []byte("x"), 0o644))

	v, err := FromPath(path, "Slides")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFromPathNameOverride(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "sdb1", true)
	require.NoError(t, os.WriteFile(filepath.Join(path, ".volume.yml"),
		[]byte("name: BigDisk\n"), 0o644))

	v, err := FromPath(path, "Slides")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "BigDisk", v.Name)
}

func TestFromPathDisabled(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Laptop", true)
	require.NoError(t, os.WriteFile(filepath.Join(path, ".volume.yml"),
		[]byte("disabled: true\n"), 0o644))

	v, err := FromPath(path, "Slides")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFromPathMalformedMeta(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Laptop", true)
	require.NoError(t, os.WriteFile(filepath.Join(path, ".volume.yml"),
		[]byte("name: [broken\n"), 0o644))

	_, err := FromPath(path, "Slides")
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	root := t.TempDir()
	mkCandidate(t, root, "Laptop", true)
	mkCandidate(t, root, "Pendrive", true)
	mkCandidate(t, root, "NoSlides", false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "regular-file"), []byte("x"), 0o644))

	vols := Identify("Slides", []string{root})
	assert.Len(t, vols, 2)
	assert.Contains(t, vols, "Laptop")
	assert.Contains(t, vols, "Pendrive")
}

func TestIdentifySkipsUnreadableRoot(t *testing.T) {
	root := t.TempDir()
	mkCandidate(t, root, "Laptop", true)

	vols := Identify("Slides", []string{filepath.Join(root, "missing"), root})
	assert.Len(t, vols, 1)
}

func TestIdentifyDuplicateNamesKeepFirst(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	first := mkCandidate(t, rootA, "Laptop", true)
	mkCandidate(t, rootB, "Laptop", true)

	vols := Identify("Slides", []string{rootA, rootB})
	require.Len(t, vols, 1)
	assert.Equal(t, first, vols["Laptop"].Path)
}

func TestIdentifyMalformedCandidateSkipped(t *testing.T) {
	root := t.TempDir()
	bad := mkCandidate(t, root, "Broken", true)
	require.NoError(t, os.WriteFile(filepath.Join(bad, ".volume.yml"),
		[]byte(": [oops\n"), 0o644))
	mkCandidate(t, root, "Laptop", true)

	vols := Identify("Slides", []string{root})
	assert.Len(t, vols, 1)
	assert.Contains(t, vols, "Laptop")
}

func TestIndexSlides(t *testing.T) {
	root := t.TempDir()
	path := mkCandidate(t, root, "Laptop", true)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "Slides", "Pendrive"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "Slides", "Server"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "Slides", "Server", ".slide.yml"),
		[]byte("route: Pendrive\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "Slides", "stray.txt"),
		[]byte("x"), 0o644))

	vols := Identify("Slides", []string{root})
	v := vols["Laptop"]
	require.NotNil(t, v)
	require.Len(t, v.Slides, 2)
	assert.Empty(t, v.Slides["Pendrive"].Route)
	assert.Equal(t, "Pendrive", v.Slides["Server"].Route)
}
