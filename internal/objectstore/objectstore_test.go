package objectstore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "users/u1/files/d1_report.pdf", Key("u1", "d1", "report.pdf"))
	assert.Equal(t, "users/u1/files/d1_evil.pdf", Key("u1", "d1", "../../evil.pdf"))
	assert.Equal(t, "users/u1/files/d1_x.pdf", Key("u1", "d1", `C:\tmp\x.pdf`))
}

func TestPutDelete(t *testing.T) {
	s := New(afero.NewMemMapFs())
	ctx := context.Background()
	key := Key("u1", "d1", "a.pdf")

	require.NoError(t, s.Put(ctx, key, []byte("%PDF")))
	ok, err := s.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, key), "deleting twice is fine")
}

func TestDeletePrefix(t *testing.T) {
	s := New(afero.NewMemMapFs())
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Key("u1", "d1", "a.pdf"), []byte("a")))
	require.NoError(t, s.Put(ctx, Key("u1", "d2", "b.pdf"), []byte("b")))
	require.NoError(t, s.Put(ctx, Key("u2", "d3", "c.pdf"), []byte("c")))

	require.NoError(t, s.DeletePrefix(ctx, TenantPrefix("u1")))

	ok, _ := s.Exists(Key("u1", "d1", "a.pdf"))
	assert.False(t, ok)
	ok, _ = s.Exists(Key("u2", "d3", "c.pdf"))
	assert.True(t, ok)
}

func TestRejectsTraversal(t *testing.T) {
	s := New(afero.NewMemMapFs())
	assert.ErrorIs(t, s.Put(context.Background(), "../etc/passwd", nil), ErrInvalidKey)
	assert.ErrorIs(t, s.DeletePrefix(context.Background(), ""), ErrInvalidKey)
}

func TestNewLocal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "users/u1/files/x", []byte("x")))
	ok, err := s.Exists("users/u1/files/x")
	require.NoError(t, err)
	assert.True(t, ok)
}
