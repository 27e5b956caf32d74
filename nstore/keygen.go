package nstore

import (
	"crypto/rand"
)

const (
	keyLen      = 16
	keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// with 36^16 (about 2^82) possible keys we never expect to get here
	maxKeyTries = 16
)

// NewKey returns a random 16 character base-36 string
func NewKey() string {
	var buf [keyLen]byte
	// rand.Read never returns an error
	_, _ = rand.Read(buf[:])
	for i, b := range buf {
		// 252 is the largest multiple of 36 below 256; re-roll above it
		// so that every character is equally likely
		for b >= 252 {
			var one [1]byte
			_, _ = rand.Read(one[:])
			b = one[0]
		}
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf[:])
}

// generateKey returns a new key for which exists() returns false
func generateKey(exists func(string) bool) (string, error) {
	for i := 0; i < maxKeyTries; i++ {
		key := NewKey()
		if !exists(key) {
			return key, nil
		}
	}
	return "", ErrKeyCollision
}
