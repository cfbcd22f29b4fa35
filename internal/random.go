package internal

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	mrand "math/rand"
)

// Material is random token material plus a record of where it came from.
// Secure is false when the platform CSPRNG was unavailable and the
// pseudo-random fallback was used; such material is NOT suitable for
// forgery protection and callers must surface that.
type Material struct {
	Value  string
	Secure bool
}

// entropy is the CSPRNG source. Swapped out in tests to exercise the
// fallback path.
var entropy io.Reader = rand.Reader

// SetEntropySource replaces the CSPRNG source and returns a restore
// function. Test hook only.
func SetEntropySource(r io.Reader) (restore func()) {
	prev := entropy
	entropy = r
	return func() { entropy = prev }
}

// TokenMaterial returns n bytes of hex-encoded random material. It never
// fails: when the CSPRNG is unavailable it degrades to math/rand and marks
// the material insecure.
func TokenMaterial(n int) Material {
	b := make([]byte, n)
	if _, err := io.ReadFull(entropy, b); err == nil {
		return Material{Value: hex.EncodeToString(b), Secure: true}
	}

	for i := range b {
		b[i] = byte(mrand.Intn(256))
	}
	return Material{Value: hex.EncodeToString(b), Secure: false}
}
