// Package keys handles NEAR signing keys.
//
// Keys use the NEAR text form "ed25519:<base58>". Private keys are 64 bytes
// (seed followed by public key); a bare 32-byte seed is also accepted.
//
// CredentialStore reads the near-cli credentials directory
// (~/.near-credentials/<network>/<account>.json). It never writes.
package keys
