package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrCancelled is returned by calls subsequent to RemoveIfNotCommitted()
	ErrCancelled = errors.New("cancelled")
	// ErrCommitted is returned by Write() etc. after Commit()
	ErrCommitted = errors.New("already committed")

	// ensure we implement desired interface
	_ io.WriteCloser = &File{}
	_ io.ReaderAt    = &File{}
	_ io.WriterAt    = &File{}
)

// File is a temporary file in the same directory as the destination.
// Commit() renames it to the destination. Until then the destination
// is not touched
type File struct {
	dstPath string
	dir     string
	tmpPath string
	tmpFile *os.File
	err     error

	committed bool
}

// New creates a temporary file with a random name next to path
func New(path string) (*File, error) {
	dir, fName, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	tmpFile, err := os.CreateTemp(dir, fName)
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}, nil
}

// NewWithName creates a temporary file named tmpName next to path.
// The file is opened for reading and writing and must not exist
func NewWithName(path string, tmpName string) (*File, error) {
	dir, _, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(dir, tmpName)
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpPath,
	}, nil
}

func splitPath(path string) (string, string, error) {
	dir, fName := filepath.Split(path)
	if fName == "" {
		return "", "", &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	return dir, fName, nil
}

// Path returns the path of the temporary file
func (f *File) Path() string {
	return f.tmpPath
}

// File returns the underlying temporary file. After Commit() it's the
// file at the destination path and the caller owns it
func (f *File) File() *os.File {
	return f.tmpFile
}

func (f *File) handleError(err error) error {
	if err == nil {
		return nil
	}
	// remember the first error
	if f.err == nil {
		f.err = err
	}
	return err
}

func (f *File) checkWritable() error {
	if f.err != nil {
		return f.err
	}
	if f.committed {
		return ErrCommitted
	}
	return nil
}

// Write writes data to a file
func (f *File) Write(d []byte) (int, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.handleError(err)
}

func (f *File) WriteAt(b []byte, off int64) (int, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	n, err := f.tmpFile.WriteAt(b, off)
	return n, f.handleError(err)
}

func (f *File) ReadAt(b []byte, off int64) (int, error) {
	if f.tmpFile == nil {
		return 0, os.ErrClosed
	}
	return f.tmpFile.ReadAt(b, off)
}

func (f *File) Sync() error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	return f.handleError(f.tmpFile.Sync())
}

// Commit syncs the temporary file and renames it over the destination.
// The file stays open. On failure the destination is not modified and
// the temporary file is removed
func (f *File) Commit() error {
	if f.committed {
		return nil
	}
	if f.err != nil {
		f.RemoveIfNotCommitted()
		return f.err
	}
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	err := f.tmpFile.Sync()
	if err == nil {
		// this will over-write dstPath (if it exists)
		err = os.Rename(f.tmpPath, f.dstPath)
	}
	if err != nil {
		f.handleError(err)
		f.RemoveIfNotCommitted()
		return err
	}
	f.committed = true
	// for extra protection against crashes elsewhere,
	// sync directory after rename
	fdir, _ := os.Open(f.dir)
	if fdir != nil {
		// ignore errors as those are a nice have, not must have
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}

// RemoveIfNotCommitted closes and removes the temporary file if Commit()
// didn't succeed. Use it with defer. A no-op after Commit()
func (f *File) RemoveIfNotCommitted() {
	if f == nil || f.committed || f.tmpFile == nil {
		return
	}
	if f.err == nil {
		f.err = ErrCancelled
	}
	_ = f.tmpFile.Close()
	f.tmpFile = nil
	_ = os.Remove(f.tmpPath)
}

// Close commits and closes the file. Can be called multiple times to make
// it easier to use via defer
func (f *File) Close() error {
	if f.tmpFile == nil {
		// return the first error we encountered
		return f.err
	}
	if err := f.Commit(); err != nil {
		return err
	}
	err := f.tmpFile.Close()
	f.tmpFile = nil
	if f.err == nil {
		f.err = err
	}
	return err
}
