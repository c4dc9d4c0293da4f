package objectstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectNameSanitizesAndLowercases(t *testing.T) {
	require.Equal(t, "user_example.com/my_report.pdf", ObjectName("User@Example.com", "My Report.pdf"))
}

func TestMemoryStoreSaveUploadRoundTrip(t *testing.T) {
	m, err := NewMemoryStore(t.TempDir())
	require.NoError(t, err)

	localPath, objectURL, err := m.SaveUpload(context.Background(), []byte("hello"), "doc.txt", "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "mem://a_b.com/doc.txt", objectURL)

	onDisk, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(onDisk))

	stored, ok := m.Get("a_b.com/doc.txt")
	require.True(t, ok)
	require.Equal(t, "hello", string(stored))
}

func TestMemoryStoreCreatePAR(t *testing.T) {
	m, err := NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	_, _, err = m.SaveUpload(context.Background(), []byte("x"), "f.txt", "a@b.com")
	require.NoError(t, err)

	url, err := m.CreatePAR(context.Background(), "a_b.com/f.txt", time.Minute)
	require.NoError(t, err)
	require.Contains(t, url, "a_b.com/f.txt")

	_, err = m.CreatePAR(context.Background(), "missing", time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	m, err := NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	_, _, err = m.SaveUpload(context.Background(), []byte("x"), "f.txt", "a@b.com")
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), "a_b.com/f.txt"))
	require.ErrorIs(t, m.Delete(context.Background(), "a_b.com/f.txt"), ErrNotFound)
}
