package conflict

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestResolveNoCollision(t *testing.T) {
	for _, p := range []Policy{Overwrite{}, Skip{}, Rename{Pattern: DefaultPattern}} {
		t.Run(p.Mode(), func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "clip.mp4")

			d, err := NewResolver(p).Resolve(dst)
			require.NoError(t, err)
			assert.Equal(t, dst, d.Path)
			assert.Equal(t, ActionWrite, d.Action)
		})
	}
}

func TestResolveOverwrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.csv")
	touch(t, dst)

	d, err := NewResolver(Overwrite{}).Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, dst, d.Path)
	assert.Equal(t, ActionReplace, d.Action)
}

func TestResolveSkip(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.csv")
	touch(t, dst)

	d, err := NewResolver(Skip{}).Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, d.Action)
}

func TestRenameSuccessiveCollisions(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "clip.mp4")
	touch(t, dst)

	r := NewResolver(Rename{Pattern: DefaultPattern})

	var got []string
	for range 3 {
		d, err := r.Resolve(dst)
		require.NoError(t, err)
		require.Equal(t, ActionWrite, d.Action)
		touch(t, d.Path)
		r.Release(d.Path)
		got = append(got, filepath.Base(d.Path))
	}

	assert.Equal(t, []string{"clip_1.mp4", "clip_2.mp4", "clip_3.mp4"}, got)
}

func TestRenameSkipsExistingCandidates(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "clip.mp4")
	touch(t, dst)
	touch(t, filepath.Join(dir, "clip_1.mp4"))
	touch(t, filepath.Join(dir, "clip_2.mp4"))

	d, err := NewResolver(Rename{Pattern: DefaultPattern}).Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip_3.mp4"), d.Path)
}

func TestRenameConcurrentClaimsAreDistinct(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "clip.mp4")
	touch(t, dst)

	r := NewResolver(Rename{Pattern: DefaultPattern})

	const n = 20
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			d, err := r.Resolve(dst)
			assert.NoError(t, err)
			paths[i] = d.Path
		})
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestRenameWithoutCounterIsUnresolvable(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "clip.mp4")
	touch(t, dst)
	touch(t, filepath.Join(dir, "clip_copy.mp4"))

	d, err := NewResolver(Rename{Pattern: "{name}_copy.{ext}"}).Resolve(dst)
	require.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, ActionSkip, d.Action)
}

func TestRenamePatternIdentityIsUnresolvable(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "clip.mp4")
	touch(t, dst)

	_, err := NewResolver(Rename{Pattern: "{name}.{ext}"}).Resolve(dst)
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestRenameTimeTokensUseResolutionTime(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "show.mp3")
	touch(t, dst)

	r := NewResolver(Rename{Pattern: "{name}-{date}-{time}-{n}.{ext}"})
	r.now = func() time.Time { return time.Date(2025, 7, 4, 9, 8, 7, 0, time.Local) }

	d, err := r.Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, "show-2025-07-04-09-08-07-1.mp3", filepath.Base(d.Path))
}

func TestClaimedPathCountsAsCollision(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "a.txt")

	r := NewResolver(Skip{})
	first, err := r.Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, ActionWrite, first.Action)

	second, err := r.Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, second.Action)

	r.Release(first.Path)
	third, err := r.Resolve(dst)
	require.NoError(t, err)
	assert.Equal(t, ActionWrite, third.Action)
}

func TestExpand(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		pattern, name, ext string
		want               string
	}{
		{"{name}_{n}.{ext}", "clip", "mp4", "clip_7.mp4"},
		{"{name}_{datetime}.{ext}", "clip", "mp4", "clip_2024-01-02_03-04-05.mp4"},
		{"{ts}_{name}.{ext}", "clip", "mp4", "1704164645_clip.mp4"},
		{"{name}_{n}.{ext}", "README", "", "README_7"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Expand(tt.pattern, tt.name, tt.ext, 7, now))
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Overwrite", "")
	require.NoError(t, err)
	assert.Equal(t, Overwrite{}, p)

	p, err = ParsePolicy("rename", " ")
	require.NoError(t, err)
	assert.Equal(t, Rename{Pattern: DefaultPattern}, p)

	_, err = ParsePolicy("merge", "")
	require.Error(t, err)
}
