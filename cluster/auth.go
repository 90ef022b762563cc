package cluster

import (
	"crypto/hmac"
	"crypto/rand"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	oldcrypt "github.com/amoghe/go-crypt"
	crypt "github.com/sergeymakinen/go-crypt"
)

const (
	nonceSize = 32
	hkdfInfo  = "flock-cluster-peer-auth-v1"
	macKeySize = blake2b.Size256
)

func newBlake2b256() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// deriveSessionKey stretches the cluster's shared secret into a
// handshake MAC key via HKDF over blake2b-256, salted per-connection so
// two handshakes never reuse the same key even with the same secret.
func deriveSessionKey(secret, salt []byte) ([]byte, error) {
	reader := hkdf.New(newBlake2b256, secret, salt, []byte(hkdfInfo))
	key := make([]byte, macKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("cluster: derive session key: %w", err)
	}
	return key, nil
}

// newNonce returns fresh random handshake challenge bytes.
func newNonce() ([]byte, error) {
	n := make([]byte, nonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("cluster: generate nonce: %w", err)
	}
	return n, nil
}

// proveNonce computes the HMAC the connecting side sends to answer a
// handshake challenge.
func proveNonce(secret, salt, nonce []byte) ([]byte, error) {
	key, err := deriveSessionKey(secret, salt)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newBlake2b256, key)
	mac.Write(nonce)
	return mac.Sum(nil), nil
}

// verifyNonce checks a handshake proof in constant time.
func verifyNonce(secret, salt, nonce, proof []byte) (bool, error) {
	want, err := proveNonce(secret, salt, nonce)
	if err != nil {
		return false, err
	}
	return hmac.Equal(want, proof), nil
}

// HashJoinToken hashes a cluster join token for storage in config, so
// the plaintext token never needs to live on disk — mirrors how the
// teacher hashes player passwords before persisting them. Uses a fresh
// SHA-512-crypt salt each time, so the same token hashes differently on
// every call (compare with VerifyJoinToken, never by string equality).
func HashJoinToken(token string) (string, error) {
	salt, err := crypt.NewSHA512Salt()
	if err != nil {
		return "", fmt.Errorf("cluster: generate join token salt: %w", err)
	}
	hashed, err := crypt.Crypt(token, salt)
	if err != nil {
		return "", fmt.Errorf("cluster: hash join token: %w", err)
	}
	return hashed, nil
}

// VerifyJoinToken checks a presented token against a stored hash. Accepts
// both the current SHA-512-crypt format (sergeymakinen/go-crypt) and the
// legacy DES-crypt format some older peer configs still carry
// (amoghe/go-crypt), so a cluster can upgrade its hash format peer by
// peer without a flag day.
func VerifyJoinToken(token, storedHash string) bool {
	if len(storedHash) >= 3 && storedHash[0] == '$' {
		recomputed, err := crypt.Crypt(token, crypt.Salt(storedHash))
		return err == nil && recomputed == storedHash
	}
	recomputed, err := oldcrypt.Crypt(token, storedHash)
	return err == nil && recomputed == storedHash
}
