package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Digest returns the lowercase hex MD5 of data. Both ends must compute it the same way.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Verify checks data against an announced digest.
func Verify(data []byte, want string) error {
	if got := Digest(data); got != want {
		return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}
