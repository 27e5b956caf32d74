package nstore

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	fieldSep  = '\t'
	recordSep = '\n'
)

// format of a record:
// <key>\t<payload>\n
// empty payload is a tombstone i.e. the key was removed
func encodeRecord(key string, payload []byte) []byte {
	n := len(key) + 1 + len(payload) + 1
	d := make([]byte, 0, n)
	d = append(d, key...)
	d = append(d, fieldSep)
	d = append(d, payload...)
	d = append(d, recordSep)
	return d
}

// decodeRecord splits a complete line (without the trailing newline)
// into key and payload. Returns false if there's no tab
func decodeRecord(line []byte) (key []byte, payload []byte, ok bool) {
	idx := bytes.IndexByte(line, fieldSep)
	if idx < 0 {
		return nil, nil, false
	}
	return line[:idx], line[idx+1:], true
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, "\t\n") {
		return fmt.Errorf("%w: key '%s' cannot contain tab or newline", ErrInvalidKey, key)
	}
	return nil
}

func validatePayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}
	if bytes.IndexByte(payload, recordSep) >= 0 {
		return fmt.Errorf("%w: payload cannot contain newlines", ErrInvalidPayload)
	}
	return nil
}
