package fingerprint

import (
	"encoding/hex"
	"hash"

	sha256 "github.com/minio/sha256-simd"
)

// DigestSize is the byte length of an accepted digest (256 bits).
const DigestSize = sha256.Size

// Digester constructs the hash primitive used for the digest.
type Digester func() hash.Hash

// DefaultDigester is SHA-256 with SIMD acceleration where the CPU supports it.
var DefaultDigester Digester = sha256.New

// UnsupportedCryptoError reports that no cryptographically strong hash is available.
type UnsupportedCryptoError struct {
	Reason string
}

func (e *UnsupportedCryptoError) Error() string {
	return "secure hashing is not supported on this device: " + e.Reason
}

// Is makes every UnsupportedCryptoError match ErrUnsupportedCrypto.
func (e *UnsupportedCryptoError) Is(target error) bool {
	_, ok := target.(*UnsupportedCryptoError)
	return ok
}

var ErrUnsupportedCrypto = &UnsupportedCryptoError{Reason: "no strong digest available"}

func hashHex(d Digester, raw string) (string, error) {
	if d == nil {
		return "", &UnsupportedCryptoError{Reason: "no digest primitive"}
	}

	h := d()
	if h == nil {
		return "", &UnsupportedCryptoError{Reason: "no digest primitive"}
	}
	if h.Size() != DigestSize {
		return "", &UnsupportedCryptoError{Reason: "digest primitive is not 256-bit"}
	}

	_, _ = h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil)), nil
}
