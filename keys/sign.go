package keys

import (
	"crypto/sha256"

	"github.com/cloudflare/circl/sign/ed25519"
)

// SignSHA256 returns an ed25519 signature over sha256(message), the digest
// NEAR signs for transactions.
func (kp KeyPair) SignSHA256(message []byte) []byte {
	digest := sha256.Sum256(message)
	return ed25519.Sign(kp.Private, digest[:])
}

// VerifySHA256 checks a signature produced by SignSHA256.
func VerifySHA256(pub ed25519.PublicKey, message, sig []byte) bool {
	digest := sha256.Sum256(message)
	return ed25519.Verify(pub, digest[:], sig)
}
