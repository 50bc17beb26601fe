package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/maibvn/pal/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	st, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", st.Type())

	require.NoError(t, st.Save(ctx, "doc-1.txt", strings.NewReader("hello"), 5))
	rc, err := st.Open(ctx, "doc-1.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "hello", string(data))

	require.NoError(t, st.Delete(ctx, "doc-1.txt"))
	_, err = st.Open(ctx, "doc-1.txt")
	require.ErrorIs(t, err, ErrNotExist)
	require.NoError(t, st.Delete(ctx, "doc-1.txt"))
}

func TestLocalStore_RejectsPathKeys(t *testing.T) {
	st, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	for _, key := range []string{"", "../x", "a/b", `a\b`, ".."} {
		require.Error(t, st.Save(context.Background(), key, strings.NewReader("x"), 1), key)
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"region": "eu-west-1"}})
	require.Error(t, err)
}

func TestS3Store_ObjectKey(t *testing.T) {
	st, err := New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{
		"bucket": "pal", "prefix": "/uploads/", "endpoint": "http://127.0.0.1:9000",
		"secret_id": "id", "secret_key": "key", "path_style": true,
	}})
	require.NoError(t, err)
	require.Equal(t, "s3", st.Type())
	require.Equal(t, "uploads/doc.pdf", st.(*s3Store).objectKey("doc.pdf"))
}
