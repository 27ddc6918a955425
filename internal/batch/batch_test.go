package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/blockscrub/internal/cache"
	"github.com/varalys/blockscrub/internal/files"
	"github.com/varalys/blockscrub/internal/registry"
	"github.com/varalys/blockscrub/internal/types"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]types.FormatSpec{{
		Extension:    ".blk",
		Prefix:       []byte("123"),
		Suffix:       []byte("789"),
		BlockPattern: "A[1-9]C",
		Replacement:  []byte("A255C"),
	}})
	require.NoError(t, err)
	return reg
}

func writeInputs(t *testing.T, dir string, contents map[string]string) []files.Target {
	t.Helper()
	for name, body := range contents {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o640))
	}
	targets, err := files.Expand(context.Background(), []string{dir}, files.Options{})
	require.NoError(t, err)
	return targets
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestRun_OutDir(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	targets := writeInputs(t, in, map[string]string{
		"clean.blk":     "123A1C789",
		"sub/dirty.blk": "123 AXC 789\n",
		"bad.blk":       "999",
		"notes.txt":     "hello",
	})

	var observed []string
	outcomes, err := Run(context.Background(), testRegistry(t), targets, Options{
		OutDir: out,
		Logger: zerolog.Nop(),
		Observe: func(ext string, _ *types.ProcessResult, _ error, _ time.Duration) {
			observed = append(observed, ext)
		},
		Threads: 1,
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	byRel := map[string]FileOutcome{}
	for i, o := range outcomes {
		byRel[targets[i].Rel] = o
	}

	clean := byRel["clean.blk"]
	require.NoError(t, clean.Err)
	assert.True(t, clean.Clean())
	assert.Equal(t, "123A1C789", readFile(t, filepath.Join(out, "clean.blk")))

	dirty := byRel["sub/dirty.blk"]
	assert.True(t, dirty.Sanitized())
	assert.Equal(t, "123 A255C789\n", readFile(t, filepath.Join(out, "sub", "dirty.blk")))
	st, err := os.Stat(filepath.Join(out, "sub", "dirty.blk"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())

	bad := byRel["bad.blk"]
	assert.True(t, bad.Failed())
	assert.True(t, types.IsCode(bad.Result.Err(), types.CodeInvalidHeader))
	_, err = os.Stat(filepath.Join(out, "bad.blk"))
	assert.True(t, os.IsNotExist(err), "failed file must not produce output")

	unknown := byRel["notes.txt"]
	assert.True(t, unknown.Failed())
	assert.Equal(t, types.CodeInvalidFormat, unknown.Result.Error.Code)

	assert.ElementsMatch(t, []string{".blk", ".blk", ".blk"}, observed)

	leftovers, _ := filepath.Glob(filepath.Join(out, "**", ".blockscrub-*"))
	assert.Empty(t, leftovers)
}

func TestRun_InPlaceAndExtOverride(t *testing.T) {
	dir := t.TempDir()
	targets := writeInputs(t, dir, map[string]string{"data.bin": "123AXC789"})

	outcomes, err := Run(context.Background(), testRegistry(t), targets, Options{InPlace: true, Ext: "BLK", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, ".blk", outcomes[0].Extension)
	assert.True(t, outcomes[0].Sanitized())
	assert.Equal(t, "123A255C789", readFile(t, filepath.Join(dir, "data.bin")))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	targets := writeInputs(t, dir, map[string]string{"a.blk": "123AXC789"})

	outcomes, err := Run(context.Background(), testRegistry(t), targets, Options{DryRun: true, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.True(t, outcomes[0].Sanitized())
	assert.Empty(t, outcomes[0].Output)
	assert.Equal(t, "123AXC789", readFile(t, filepath.Join(dir, "a.blk")))
}

func TestRun_NoDestination(t *testing.T) {
	_, err := Run(context.Background(), testRegistry(t), nil, Options{})
	assert.ErrorIs(t, err, ErrNoDestination)
}

func TestRun_CacheSkipsCleanFiles(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	targets := writeInputs(t, in, map[string]string{
		"clean.blk": "123A1C789",
		"dirty.blk": "123AXC789",
	})
	db := &cache.DB{Entries: map[string]cache.Entry{}}
	opts := Options{OutDir: out, Cache: db, Logger: zerolog.Nop()}

	first, err := Run(context.Background(), testRegistry(t), targets, opts)
	require.NoError(t, err)
	for _, o := range first {
		assert.False(t, o.Skipped)
	}
	require.NoError(t, os.Remove(filepath.Join(out, "clean.blk")))

	second, err := Run(context.Background(), testRegistry(t), targets, opts)
	require.NoError(t, err)
	for i, o := range second {
		switch targets[i].Rel {
		case "clean.blk":
			assert.True(t, o.Skipped)
			assert.True(t, o.Clean())
		case "dirty.blk":
			assert.False(t, o.Skipped, "files with replacements are never cached")
		}
	}
	// skipped files are still published to the output directory
	assert.Equal(t, "123A1C789", readFile(t, filepath.Join(out, "clean.blk")))

	require.NoError(t, os.WriteFile(filepath.Join(in, "clean.blk"), []byte("123A2C789"), 0o644))
	third, err := Run(context.Background(), testRegistry(t), targets, opts)
	require.NoError(t, err)
	for i, o := range third {
		if targets[i].Rel == "clean.blk" {
			assert.False(t, o.Skipped, "changed contents must be reprocessed")
		}
	}
}

func TestRun_CacheKeysAreAbsolutePaths(t *testing.T) {
	in := t.TempDir()
	targets := writeInputs(t, in, map[string]string{
		"sub/clean.blk": "123A1C789",
		"dirty.blk":     "123AXC789",
	})
	db := &cache.DB{Entries: map[string]cache.Entry{}}

	_, err := Run(context.Background(), testRegistry(t), targets, Options{InPlace: true, Cache: db, Logger: zerolog.Nop()})
	require.NoError(t, err)

	abs, err := filepath.Abs(filepath.Join(in, "sub", "clean.blk"))
	require.NoError(t, err)
	require.Len(t, db.Entries, 1)
	assert.Contains(t, db.Entries, filepath.ToSlash(abs))
}

func TestRun_Canceled(t *testing.T) {
	dir, out := t.TempDir(), t.TempDir()
	targets := writeInputs(t, dir, map[string]string{"a.blk": "123A1C789"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testRegistry(t), targets, Options{OutDir: out, Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(out, "a.blk"))
	assert.True(t, os.IsNotExist(statErr))
}
