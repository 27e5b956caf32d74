package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Reader reads blocks written by Writer
type Reader struct {
	r *bufio.Reader

	// NoTimestamp must match Writer.NoTimestamp. Without timestamps
	// everything after the size is the name, spaces included
	NoTimestamp bool

	// Data / Name / Timestamp are available after ReadNextData.
	// They are over-written in next ReadNextData.
	Data      []byte
	Name      string
	Timestamp time.Time

	// position of the current block within the reader
	CurrRecordPos int64
	// position of the next block within the reader
	NextRecordPos int64

	err  error
	done bool
}

// NewReader creates a new reader
func NewReader(r *bufio.Reader) *Reader {
	return &Reader{
		r: r,
	}
}

// Done returns true if we're finished reading from the reader
func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

// Err returns error from last read. io.EOF is not an error
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) setHeaderErr(hdr []byte) bool {
	r.err = fmt.Errorf("siser: unexpected header '%s' at position %d", string(hdr), r.CurrRecordPos)
	return false
}

// ReadNextData reads next block. Returns false when there are no more
// blocks or there was an error (check Err())
func (r *Reader) ReadNextData() bool {
	if r.Done() {
		return false
	}
	r.Name = ""
	r.Timestamp = time.Time{}
	r.CurrRecordPos = r.NextRecordPos

	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
		} else if err == io.EOF {
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = err
		}
		return false
	}
	recSize := len(hdr)
	if !bytes.HasPrefix(hdr, hdrPrefix) {
		return r.setHeaderErr(hdr)
	}
	rest := hdr[len(hdrPrefix) : len(hdr)-1]

	var sizeStr []byte
	sizeStr, rest, _ = bytes.Cut(rest, []byte{' '})
	size, err := strconv.ParseInt(string(sizeStr), 10, 64)
	if err != nil || size < 0 {
		return r.setHeaderErr(hdr)
	}
	if !r.NoTimestamp {
		var tsStr []byte
		tsStr, rest, _ = bytes.Cut(rest, []byte{' '})
		ms, err := strconv.ParseInt(string(tsStr), 10, 64)
		if err != nil {
			return r.setHeaderErr(hdr)
		}
		r.Timestamp = time.UnixMilli(ms)
	}
	r.Name = string(rest)

	// re-use r.Data as long as it doesn't grow too much
	if cap(r.Data) > 1024*1024 {
		r.Data = nil
	}
	if size > int64(cap(r.Data)) {
		r.Data = make([]byte, size)
	} else {
		r.Data = r.Data[:size]
	}
	n, err := io.ReadFull(r.r, r.Data)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return false
	}
	recSize += n

	// the writer pads data that doesn't end with newline
	if n > 0 && r.Data[n-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			r.err = err
			return false
		}
		recSize++
	}
	r.NextRecordPos += int64(recSize)
	return true
}
