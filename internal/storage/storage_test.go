package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKey(t *testing.T) {
	cases := map[string]string{
		"s3://podium-bucket/submissions/c1/u1/f.csv": "submissions/c1/u1/f.csv",
		"s3://bucket-only":                           "bucket-only",
		"/var/data/submissions/c1/u1/f.csv":          "submissions/c1/u1/f.csv",
		"submissions/c1/u1/f.csv":                    "submissions/c1/u1/f.csv",
		"/etc/passwd":                                "/etc/passwd",
	}
	for locator, want := range cases {
		assert.Equal(t, want, ExtractKey(locator), locator)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	locator, err := m.Save(ctx, "submissions/a.csv", []byte("id,prediction\n"))
	require.NoError(t, err)
	assert.Equal(t, "submissions/a.csv", locator)

	content, err := m.Load(ctx, "submissions/a.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("id,prediction\n"), content)

	exists, err := m.Exists(ctx, "submissions/a.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := m.Delete(ctx, "submissions/a.csv")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = m.Load(ctx, "submissions/a.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = m.Delete(ctx, "submissions/a.csv")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryCopiesContent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	original := []byte("id,prediction\n")
	_, err := m.Save(ctx, "k", original)
	require.NoError(t, err)
	original[0] = 'X'

	content, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte('i'), content[0])
}

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	locator, err := l.Save(ctx, "submissions/c1/u1/f.csv", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "submissions/c1/u1/f.csv"), locator)

	content, err := l.Load(ctx, "submissions/c1/u1/f.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), content)

	exists, err := l.Exists(ctx, "submissions/c1/u1/f.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := l.Delete(ctx, "submissions/c1/u1/f.csv")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = l.Load(ctx, "submissions/c1/u1/f.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Save(ctx, "../escape.csv", []byte("x"))
	require.Error(t, err)

	_, err = l.Load(ctx, "../../etc/passwd")
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.csv"))
	assert.True(t, os.IsNotExist(err))
}
