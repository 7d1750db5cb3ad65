package server

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// parsePrivateKey reads an rsa key in PKCS#8 or PKCS#1 PEM.
func parsePrivateKey(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no pem block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not rsa", key)
	}
	return rsaKey, nil
}

// parsePublicKey reads a public key in PKIX or PKCS#1 PEM, as found in actor documents.
func parsePublicKey(s string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(s)))
	if block == nil {
		return nil, fmt.Errorf("no pem block in public key")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return key, nil
}

// publicKeyPEM encodes the public half of key in PKIX PEM.
func publicKeyPEM(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// loadKeys reads the key pair of a local account. The public key file is
// optional, it is derived from the private key when missing.
func loadKeys(privFile, pubFile string) (*rsa.PrivateKey, string, error) {
	b, err := os.ReadFile(privFile)
	if err != nil {
		return nil, "", fmt.Errorf("reading private key: %w", err)
	}
	key, err := parsePrivateKey(b)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", privFile, err)
	}
	if pubFile == "" {
		pub, err := publicKeyPEM(key)
		return key, pub, err
	}
	pub, err := os.ReadFile(pubFile)
	if err != nil {
		return nil, "", fmt.Errorf("reading public key: %w", err)
	}
	if _, err := parsePublicKey(string(pub)); err != nil {
		return nil, "", fmt.Errorf("%s: %w", pubFile, err)
	}
	return key, string(pub), nil
}
