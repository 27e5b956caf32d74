package u

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// implement io.ReadCloser over os.File wrapped with io.Reader.
// Close() closes the decompressor (if it needs closing) and the file
type readerWrappedFile struct {
	f       *os.File
	r       io.Reader
	closeFn func()
}

func (rc *readerWrappedFile) Close() error {
	if rc.closeFn != nil {
		rc.closeFn()
	}
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func wrapInReadCloser(f *os.File, r io.Reader, closeFn func(), err error) (io.ReadCloser, error) {
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readerWrappedFile{
		f:       f,
		r:       r,
		closeFn: closeFn,
	}, nil
}

func compressionExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zstd" {
		return ".zst"
	}
	return ext
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip
// or bzip2 or zstd or brotli, based on file extension
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch compressionExt(path) {
	case ".gz":
		r, err := gzip.NewReader(f)
		return wrapInReadCloser(f, r, nil, err)
	case ".bz2":
		r := bzip2.NewReader(f)
		return wrapInReadCloser(f, r, nil, nil)
	case ".zst":
		r, err := zstd.NewReader(f)
		if err != nil {
			return wrapInReadCloser(f, nil, nil, err)
		}
		return wrapInReadCloser(f, r, r.Close, nil)
	case ".br":
		r := brotli.NewReader(f)
		return wrapInReadCloser(f, r, nil, nil)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// in my tests:
	// - zstd.SpeedBestCompression is much slower and not much better
	// - default concurrency is GONUMPROCS() but adding concurrency of any value
	//   doesn't consistently speed things up
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}

// NewWriterMaybeCompressed wraps w in a compressor picked by extension of path:
// .gz (gzip), .zst / .zstd (zstd), .br (brotli). Other extensions are not
// compressed. Close() flushes the compressor but doesn't close w
func NewWriterMaybeCompressed(w io.Writer, path string) (io.WriteCloser, error) {
	switch compressionExt(path) {
	case ".gz":
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case ".zst":
		return zstdNewWriter(w)
	case ".br":
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	}
	return nopWriteCloser{w}, nil
}
