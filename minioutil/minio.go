// Package minioutil stores backups of nstore databases in S3-compatible
// storage (s3, r2, minio etc.)
package minioutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kjk/nstore/atomicfile"
	"github.com/kjk/nstore/log"
	"github.com/kjk/nstore/nstore"
	"github.com/kjk/nstore/u"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// Prefix is prepended to remote paths e.g. "backups/"
	Prefix string `yaml:"prefix"`
	// use http instead of https, for a local minio
	Insecure bool `yaml:"insecure"`

	RequestTrace io.Writer `yaml:"-"`
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	var missing []string
	if c.Access == "" {
		missing = append(missing, "access")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields in config: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Client struct {
	Client *minio.Client
	config *Config
	Bucket string
}

// New creates a client and checks that the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}

	return &Client{
		Client: mc,
		config: c,
		Bucket: c.Bucket,
	}, nil
}

// RemotePath returns the object name for remotePath, with Config.Prefix
func (c *Client) RemotePath(remotePath string) string {
	return joinRemote(c.config.Prefix, remotePath)
}

func joinRemote(prefix string, remotePath string) string {
	remotePath = strings.TrimPrefix(remotePath, "/")
	if prefix == "" {
		return remotePath
	}
	return path.Join(strings.TrimPrefix(prefix, "/"), remotePath)
}

// contentType for dumps, based on their compression
func contentType(remotePath string) string {
	switch strings.ToLower(filepath.Ext(remotePath)) {
	case ".zst", ".zstd":
		return "application/zstd"
	case ".br":
		return "application/x-brotli"
	case ".gz":
		return "application/gzip"
	}
	return "text/plain; charset=utf-8"
}

func (c *Client) Exists(ctx context.Context, remotePath string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, c.RemotePath(remotePath), minio.StatObjectOptions{})
	return err == nil
}

func (c *Client) UploadFile(ctx context.Context, remotePath string, path string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: contentType(remotePath),
	}
	return c.Client.FPutObject(ctx, c.Bucket, c.RemotePath(remotePath), path, opts)
}

// DownloadFileAtomically downloads to dstPath. dstPath only appears
// if the download was complete
func (c *Client) DownloadFileAtomically(ctx context.Context, dstPath string, remotePath string) error {
	obj, err := c.Client.GetObject(ctx, c.Bucket, c.RemotePath(remotePath), minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	// ensure there's a dir for destination file
	err = os.MkdirAll(filepath.Dir(dstPath), 0755)
	if err != nil {
		return err
	}

	f, err := atomicfile.New(dstPath)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotCommitted()
	_, err = io.Copy(f, obj)
	if err != nil {
		return err
	}
	return f.Close()
}

// ListObjects returns objects under prefix (relative to Config.Prefix),
// sorted by name
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.RemotePath(prefix),
		Recursive: true,
	}
	var res []minio.ObjectInfo
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		res = append(res, oi)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Key < res[j].Key
	})
	return res, nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, c.RemotePath(remotePath), minio.RemoveObjectOptions{})
}

// tmpDumpPath returns a path in the system temp dir with the same
// extension as remotePath, so that the dump is compressed the same way
func tmpDumpPath(remotePath string) string {
	name := "nstore-" + nstore.NewKey() + "-" + path.Base(remotePath)
	return filepath.Join(os.TempDir(), name)
}

// remote is the part of Client used by backups
type remote interface {
	RemotePath(remotePath string) string
	UploadFile(ctx context.Context, remotePath string, path string) (minio.UploadInfo, error)
	DownloadFileAtomically(ctx context.Context, dstPath string, remotePath string) error
}

var _ remote = &Client{}

// Backup exports s and uploads the export as remotePath. Extension of
// remotePath decides compression, .zst is a good choice
func (c *Client) Backup(ctx context.Context, s *nstore.Store, remotePath string) (int, error) {
	return backup(ctx, c, s, remotePath)
}

// Restore downloads a backup made with Backup and imports it into s
func (c *Client) Restore(ctx context.Context, s *nstore.Store, remotePath string) (int, error) {
	return restore(ctx, c, s, remotePath)
}

func backup(ctx context.Context, r remote, s *nstore.Store, remotePath string) (int, error) {
	timeStart := time.Now()
	tmpPath := tmpDumpPath(remotePath)
	defer os.Remove(tmpPath)

	n, err := s.ExportFile(tmpPath)
	if err != nil {
		return 0, err
	}
	if _, err = r.UploadFile(ctx, remotePath, tmpPath); err != nil {
		return 0, fmt.Errorf("upload of '%s' as '%s' failed: %w", tmpPath, remotePath, err)
	}
	log.Logf("backed up %d documents (%s) to '%s' in %s\n", n, u.FormatSize(u.FileSize(tmpPath)), r.RemotePath(remotePath), time.Since(timeStart))
	log.Event("nstore.backup", "remote", r.RemotePath(remotePath), "documents", n)
	return n, nil
}

func restore(ctx context.Context, r remote, s *nstore.Store, remotePath string) (int, error) {
	timeStart := time.Now()
	tmpPath := tmpDumpPath(remotePath)
	defer os.Remove(tmpPath)

	if err := r.DownloadFileAtomically(ctx, tmpPath, remotePath); err != nil {
		return 0, fmt.Errorf("download of '%s' failed: %w", remotePath, err)
	}
	n, err := s.ImportFile(tmpPath)
	if err != nil {
		return n, err
	}
	log.Logf("restored %d documents from '%s' in %s\n", n, r.RemotePath(remotePath), time.Since(timeStart))
	log.Event("nstore.restore", "remote", r.RemotePath(remotePath), "documents", n)
	return n, nil
}
