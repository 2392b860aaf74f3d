// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// ParseSigningKeyPEM parses a PKCS#8 PEM encoded Ed25519 private key.
func ParseSigningKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	key, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, oops.Code("SIGNING_KEY_INVALID").Wrap(err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, oops.Code("SIGNING_KEY_INVALID").Errorf("not an ed25519 private key")
	}
	return priv, nil
}

// ParseVerifyKeyPEM parses a PKIX PEM encoded Ed25519 public key.
func ParseVerifyKeyPEM(data []byte) (ed25519.PublicKey, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, oops.Code("VERIFY_KEY_INVALID").Wrap(err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, oops.Code("VERIFY_KEY_INVALID").Errorf("not an ed25519 public key")
	}
	return pub, nil
}

// LoadSigningKey reads a signing key from a PEM file.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, oops.Code("SIGNING_KEY_READ_FAILED").With("path", path).Wrap(err)
	}
	return ParseSigningKeyPEM(data)
}

// LoadVerifyKey reads a verification key from a PEM file.
func LoadVerifyKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, oops.Code("VERIFY_KEY_READ_FAILED").With("path", path).Wrap(err)
	}
	return ParseVerifyKeyPEM(data)
}

// GenerateKeyPairPEM creates a new Ed25519 key pair encoded as PEM
// (PKCS#8 private key, PKIX public key).
func GenerateKeyPairPEM() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("KEYGEN_FAILED").Wrap(err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, oops.Code("KEYGEN_FAILED").With("operation", "marshal private key").Wrap(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, oops.Code("KEYGEN_FAILED").With("operation", "marshal public key").Wrap(err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
