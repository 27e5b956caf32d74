package siser

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestMarshalLine(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		data string
		exp  string
	}{
		{"", time.Time{}, "", "--- 0\n"},
		{"key", time.Time{}, "abc", "--- 3 key\nabc\n"},
		{"key with spaces", time.Time{}, "abc\n", "--- 4 key with spaces\nabc\n"},
		{"ev", time.UnixMilli(1277765030789), "{}", "--- 2 1277765030789 ev\n{}\n"},
	}
	for _, test := range tests {
		got := MarshalLine(test.name, test.t, []byte(test.data), nil)
		assert.Equal(t, test.exp, string(got))
	}
}

func TestWriteRead(t *testing.T) {
	type block struct {
		name string
		data string
	}
	blocks := []block{
		{"a", `{"v":1}`},
		{"b c", `{"v":2}`},
		{"empty", ""},
		{"nl", "ends with newline\n"},
		{"", "no name"},
	}
	for _, noTimestamp := range []bool{true, false} {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		w.NoTimestamp = noTimestamp
		for _, b := range blocks {
			_, err := w.Write([]byte(b.data), time.Time{}, b.name)
			assert.NoError(t, err)
		}

		r := NewReader(bufio.NewReader(&buf))
		r.NoTimestamp = noTimestamp
		var n int
		for r.ReadNextData() {
			b := blocks[n]
			assert.Equal(t, b.name, r.Name)
			assert.Equal(t, b.data, string(r.Data))
			assert.Equal(t, noTimestamp, r.Timestamp.IsZero())
			n++
		}
		assert.NoError(t, r.Err())
		assert.Equal(t, len(blocks), n)
		assert.True(t, r.Done())
	}
}

func TestReadPositions(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.NoTimestamp = true
	n1, _ := w.Write([]byte("abc"), time.Time{}, "k1")
	n2, _ := w.Write([]byte("defg\n"), time.Time{}, "k2")

	r := NewReader(bufio.NewReader(&buf))
	r.NoTimestamp = true
	assert.True(t, r.ReadNextData())
	assert.Equal(t, int64(0), r.CurrRecordPos)
	assert.Equal(t, int64(n1), r.NextRecordPos)
	assert.True(t, r.ReadNextData())
	assert.Equal(t, int64(n1), r.CurrRecordPos)
	assert.Equal(t, int64(n1+n2), r.NextRecordPos)
	assert.False(t, r.ReadNextData())
	assert.NoError(t, r.Err())
}

func TestReadErrors(t *testing.T) {
	tests := []string{
		"not a header\n",
		"--- x name\n",
		"--- -5 name\n",
		"--- 10 name\nshort",
		"--- 3 name",
	}
	for _, test := range tests {
		r := NewReader(bufio.NewReader(strings.NewReader(test)))
		r.NoTimestamp = true
		assert.False(t, r.ReadNextData(), "input: %q", test)
		assert.Error(t, r.Err(), "input: %q", test)
	}
}
