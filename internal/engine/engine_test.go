package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitslides/bitslides/internal/plan"
	"github.com/bitslides/bitslides/internal/volume"
)

func mkVolume(t *testing.T, base, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(base, name, "Slides"), 0o755))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func discoverVols(t *testing.T, base string) map[string]*volume.Volume {
	t.Helper()
	vols := volume.Identify("Slides", []string{base})
	require.NotEmpty(t, vols)
	return vols
}

// runAll discovers, plans and drains everything under base.
func runAll(t *testing.T, base string, cfg Config) (Result, error) {
	t.Helper()
	vols := discoverVols(t, base)
	jobs, err := plan.Build(vols, plan.NewToken("test"))
	require.NoError(t, err)
	return New(cfg).Run(context.Background(), vols, jobs)
}

func TestRunDirectDelivery(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3")
	writeFile(t, src, "X")

	res, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "song.mp3")
	assert.Equal(t, "X", readFile(t, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(1), res.Stats.FilesMoved)
	assert.Equal(t, int64(1), res.Stats.BytesMoved)
}

func TestRunRoutedDelivery(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Server", "movie.iso")
	writeFile(t, src, "payload")
	writeFile(t, filepath.Join(base, "Laptop", "Slides", "Server", ".slide.yml"), "route: Pendrive\n")

	_, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	dst := filepath.Join(base, "Pendrive", "Slides", "Server", "movie.iso")
	assert.Equal(t, "payload", readFile(t, dst))
	assert.NoFileExists(t, src)
	// Metadata stays with the source slide.
	assert.FileExists(t, filepath.Join(base, "Laptop", "Slides", "Server", ".slide.yml"))
}

func TestRunDirectWinsOverRoute(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	mkVolume(t, base, "Server")
	src := filepath.Join(base, "Laptop", "Slides", "Server", "movie.iso")
	writeFile(t, src, "payload")
	writeFile(t, filepath.Join(base, "Laptop", "Slides", "Server", ".slide.yml"), "route: Pendrive\n")

	_, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(base, "Server", "Slides", "Server", "movie.iso"))
	assert.NoFileExists(t, filepath.Join(base, "Pendrive", "Slides", "Server", "movie.iso"))
	assert.NoFileExists(t, src)
}

func TestRunCollisionEqual(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "a.txt")
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "a.txt")
	writeFile(t, src, "same")
	writeFile(t, dst, "same")

	res, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	assert.Equal(t, "same", readFile(t, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(0), res.Stats.FilesMoved)
	assert.Equal(t, int64(1), res.Stats.FilesSkipped)
}

func TestRunCollisionDifferent(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "a.txt")
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "a.txt")
	writeFile(t, src, "new content")
	writeFile(t, dst, "old content")

	_, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	assert.Equal(t, "new content", readFile(t, dst))
	assert.NoFileExists(t, src)
}

func TestRunCollisionSkipPolicy(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "a.txt")
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "a.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	res, err := runAll(t, base, Config{Safe: true, Collision: CollisionSkip})
	require.NoError(t, err)

	assert.Equal(t, "old", readFile(t, dst))
	assert.Equal(t, "new", readFile(t, src))
	assert.Equal(t, int64(1), res.Stats.FilesSkipped)
}

func TestRunCollisionFailPolicy(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "a.txt")
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "a.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	res, err := runAll(t, base, Config{Safe: true, Collision: CollisionFail})
	require.NoError(t, err)

	assert.Equal(t, "old", readFile(t, dst))
	assert.Equal(t, "new", readFile(t, src))
	assert.Equal(t, int64(1), res.Stats.FilesFailed)
}

func TestRunCollisionOverwritePolicy(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "a.txt")
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "a.txt")
	writeFile(t, src, "same")
	writeFile(t, dst, "same")

	res, err := runAll(t, base, Config{Safe: true, Collision: CollisionOverwrite})
	require.NoError(t, err)

	assert.Equal(t, "same", readFile(t, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(1), res.Stats.FilesMoved)
}

func TestRunMovesNestedTree(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	slide := filepath.Join(base, "Laptop", "Slides", "Pendrive")
	writeFile(t, filepath.Join(slide, "top.txt"), "1")
	writeFile(t, filepath.Join(slide, "photos", "2024", "a.jpg"), "2")
	writeFile(t, filepath.Join(slide, "photos", "2024", "b.jpg"), "3")

	res, err := runAll(t, base, Config{Safe: true, FileWorkers: 4})
	require.NoError(t, err)

	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive")
	assert.Equal(t, "1", readFile(t, filepath.Join(dst, "top.txt")))
	assert.Equal(t, "2", readFile(t, filepath.Join(dst, "photos", "2024", "a.jpg")))
	assert.Equal(t, "3", readFile(t, filepath.Join(dst, "photos", "2024", "b.jpg")))
	assert.Equal(t, int64(3), res.Stats.FilesMoved)

	// Drained subtree is cleaned up but the slide folder itself stays.
	assert.NoDirExists(t, filepath.Join(slide, "photos"))
	assert.DirExists(t, slide)
}

func TestRunSweepsStaleWIP(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "big.bin")
	writeFile(t, src, "entire payload")
	// Leftover from an interrupted earlier run.
	stale := filepath.Join(base, "Pendrive", "Slides", "Pendrive", ".big.bin.wip")
	writeFile(t, stale, "partial pay")

	res, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "big.bin")
	assert.Equal(t, "entire payload", readFile(t, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(1), res.Stats.WipCleaned)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3")
	writeFile(t, src, "X")

	vols := discoverVols(t, base)
	jobs, err := plan.Build(vols, plan.NewToken("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(Config{Safe: true}).Run(ctx, vols, jobs)
	assert.Error(t, err)

	// Cancellation never loses the source.
	assert.Equal(t, "X", readFile(t, src))
	assert.NoFileExists(t, filepath.Join(base, "Pendrive", "Slides", "Pendrive", "song.mp3"))
}

func TestRunDryRun(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3")
	writeFile(t, src, "X")

	res, err := runAll(t, base, Config{Safe: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "X", readFile(t, src))
	assert.NoFileExists(t, filepath.Join(base, "Pendrive", "Slides", "Pendrive", "song.mp3"))
	assert.Equal(t, int64(1), res.Stats.FilesMoved)
}

func TestRunIdempotent(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3")
	writeFile(t, src, "X")

	_, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)

	res, err := runAll(t, base, Config{Safe: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Stats.FilesMoved)

	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "song.mp3")
	assert.Equal(t, "X", readFile(t, dst))
}

func TestRunFiresJobTriggers(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	writeFile(t, filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3"), "X")

	vols := discoverVols(t, base)
	jobs, err := plan.Build(vols, plan.NewToken("test"))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = New(Config{Safe: true}).Run(context.Background(), vols, jobs)
	require.NoError(t, err)

	select {
	case <-jobs[0].Done():
	default:
		t.Fatal("job trigger not fired")
	}

	// The engine owns the trigger after a run.
	_, err = jobs[0].TakeTrigger()
	assert.ErrorIs(t, err, plan.ErrTriggerTaken)
}

func TestRunUnsafeMovesWithoutStaging(t *testing.T) {
	base := t.TempDir()
	mkVolume(t, base, "Laptop")
	mkVolume(t, base, "Pendrive")
	src := filepath.Join(base, "Laptop", "Slides", "Pendrive", "song.mp3")
	writeFile(t, src, "X")

	res, err := runAll(t, base, Config{Safe: false})
	require.NoError(t, err)

	dst := filepath.Join(base, "Pendrive", "Slides", "Pendrive", "song.mp3")
	assert.Equal(t, "X", readFile(t, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(1), res.Stats.FilesMoved)
}
