package minioutil

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/nstore/atomicfile"
	"github.com/kjk/nstore/nstore"
	"github.com/kjk/nstore/u"
	"github.com/minio/minio-go/v7"
)

func TestConfigValidate(t *testing.T) {
	var c *Config
	assert.Error(t, c.validate())

	c = &Config{Access: "a", Bucket: "b"}
	err := c.validate()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "secret, endpoint"), "%s", err)

	_, err = New(context.Background(), c)
	assert.Error(t, err)

	c.Secret = "s"
	c.Endpoint = "localhost:9000"
	assert.NoError(t, c.validate())
}

func TestRemotePath(t *testing.T) {
	c := &Client{config: &Config{}}
	assert.Equal(t, "db.zst", c.RemotePath("/db.zst"))
	c.config.Prefix = "backups/"
	assert.Equal(t, "backups/db.zst", c.RemotePath("db.zst"))
	c.config.Prefix = "/backups"
	assert.Equal(t, "backups/2026/db.zst", c.RemotePath("/2026/db.zst"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/zstd", contentType("db.zst"))
	assert.Equal(t, "application/x-brotli", contentType("db.BR"))
	assert.Equal(t, "application/gzip", contentType("x/db.gz"))
	assert.Equal(t, "text/plain; charset=utf-8", contentType("db.txt"))
}

func TestTmpDumpPath(t *testing.T) {
	p1 := tmpDumpPath("backups/users.db.zst")
	p2 := tmpDumpPath("backups/users.db.zst")
	assert.NotEqual(t, p1, p2)
	assert.Equal(t, ".zst", filepath.Ext(p1))
	assert.True(t, strings.HasSuffix(p1, "-users.db.zst"))
}

// dirRemote keeps objects as files in a directory
type dirRemote struct {
	dir       string
	uploadErr error
}

func (r *dirRemote) RemotePath(remotePath string) string {
	return joinRemote("backups", remotePath)
}

func (r *dirRemote) UploadFile(ctx context.Context, remotePath string, path string) (minio.UploadInfo, error) {
	if r.uploadErr != nil {
		return minio.UploadInfo{}, r.uploadErr
	}
	d, err := os.ReadFile(path)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	dst := filepath.Join(r.dir, r.RemotePath(remotePath))
	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return minio.UploadInfo{}, err
	}
	if err = os.WriteFile(dst, d, 0644); err != nil {
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Key: r.RemotePath(remotePath), Size: int64(len(d))}, nil
}

func (r *dirRemote) DownloadFileAtomically(ctx context.Context, dstPath string, remotePath string) error {
	src, err := os.Open(filepath.Join(r.dir, r.RemotePath(remotePath)))
	if err != nil {
		return err
	}
	defer src.Close()
	f, err := atomicfile.New(dstPath)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotCommitted()
	if _, err = io.Copy(f, src); err != nil {
		return err
	}
	return f.Close()
}

func openTestStore(t *testing.T, name string) *nstore.Store {
	t.Helper()
	s, err := nstore.Open(filepath.Join(t.TempDir(), name))
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	r := &dirRemote{dir: t.TempDir()}
	s := openTestStore(t, "users.db")
	docs := map[string]string{
		"alice": `{"name":"Alice","age":45}`,
		"bob":   `{"name":"Bob","age":17}`,
		"zed":   `{"name":"Zed","age":28}`,
	}
	for key, d := range docs {
		_, err := s.SaveRaw(key, []byte(d))
		assert.NoError(t, err)
	}

	n, err := backup(ctx, r, s, "2026/users.db.zst")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	objPath := filepath.Join(r.dir, "backups", "2026", "users.db.zst")
	f, err := u.OpenFileMaybeCompressed(objPath)
	assert.NoError(t, err)
	dump, err := io.ReadAll(f)
	assert.NoError(t, err)
	assert.NoError(t, f.Close())
	assert.True(t, strings.Contains(string(dump), docs["alice"]), "%s", dump)

	s2 := openTestStore(t, "restored.db")
	_, err = s2.Save("bob", "old")
	assert.NoError(t, err)
	n, err = restore(ctx, r, s2, "2026/users.db.zst")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s2.Len())
	for key, d := range docs {
		got, err := s2.GetRaw(key)
		assert.NoError(t, err)
		assert.Equal(t, d, string(got))
	}

	_, err = restore(ctx, r, s2, "missing.zst")
	assert.Error(t, err)

	r.uploadErr = errors.New("bucket is gone")
	_, err = backup(ctx, r, s, "users.db.zst")
	assert.True(t, errors.Is(err, r.uploadErr), "%s", err)
}
