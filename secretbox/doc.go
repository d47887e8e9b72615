// Package secretbox seals small secrets (TOTP shared keys, sealed
// configuration values) with AES-256-GCM.
//
// Ciphertext layout is nonce || ciphertext || tag. The data key is derived
// from a 32-byte master key with HKDF-SHA256 and a per-purpose info string,
// so the same master key can protect several kinds of secret without
// cross-use.
package secretbox
