package jsonld

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tkrehbiel/inboxlace/server/activity"
)

// SignatureType is the only linked data signature suite we verify or produce.
const SignatureType = "RsaSignature2017"

var ErrNoSignature = errors.New("document has no signature")

// KeyResolver finds the public key of an actor.
type KeyResolver interface {
	PublicKey(ctx context.Context, actor string) (crypto.PublicKey, error)
}

// Signatures verifies and creates linked data signatures on raw documents.
// Documents are the decoded json as received, not the compacted graph.
type Signatures struct {
	proc *Processor
	keys KeyResolver
}

func NewSignatures(proc *Processor, keys KeyResolver) *Signatures {
	return &Signatures{proc: proc, keys: keys}
}

// IsSigned reports whether doc carries a signature block.
func IsSigned(doc map[string]interface{}) bool {
	sig, ok := doc["signature"].(map[string]interface{})
	return ok && len(sig) > 0
}

// Signer returns the actor whose key produced the document signature.
// The signature block must verify against the actor's own key, so a
// relayed document keeps the identity of its author.
func (s *Signatures) Signer(ctx context.Context, doc map[string]interface{}) (string, error) {
	if !IsSigned(doc) {
		return "", ErrNoSignature
	}
	sig := doc["signature"].(map[string]interface{})

	actor := RawID(doc["actor"])
	if actor == "" {
		return "", fmt.Errorf("signed document has no actor")
	}
	value, _ := sig["signatureValue"].(string)
	signature, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(signature) == 0 {
		return "", fmt.Errorf("bad signature value")
	}

	key, err := s.keys.PublicKey(ctx, actor)
	if err != nil {
		return "", fmt.Errorf("fetching key for %s: %w", actor, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("key for %s is not an rsa key", actor)
	}

	digest, err := s.digest(sig, doc)
	if err != nil {
		return "", err
	}
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest, signature); err != nil {
		return "", fmt.Errorf("verifying signature of %s: %w", actor, err)
	}
	return actor, nil
}

// Sign returns a copy of doc with a signature block created by keyOwner.
func (s *Signatures) Sign(doc map[string]interface{}, keyOwner string, key *rsa.PrivateKey) (map[string]interface{}, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	options := map[string]interface{}{
		"type":    SignatureType,
		"nonce":   hex.EncodeToString(nonce),
		"creator": keyOwner + "#main-key",
		"created": time.Now().UTC().Format(time.RFC3339),
	}
	digest, err := s.digest(options, doc)
	if err != nil {
		return nil, err
	}
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	if err != nil {
		return nil, err
	}
	options["signatureValue"] = base64.StdEncoding.EncodeToString(signature)

	signed := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		signed[k] = v
	}
	signed["signature"] = options
	return signed, nil
}

// digest is sha256 over the hex hashes of the normalized options and
// the normalized document without its signature.
func (s *Signatures) digest(options, doc map[string]interface{}) ([]byte, error) {
	opts := map[string]interface{}{"@context": activity.IdentityContext}
	for k, v := range options {
		switch k {
		case "type", "id", "signatureValue":
		default:
			opts[k] = v
		}
	}
	data := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k != "signature" {
			data[k] = v
		}
	}

	ohash, err := s.hash(opts)
	if err != nil {
		return nil, fmt.Errorf("hashing signature options: %w", err)
	}
	dhash, err := s.hash(data)
	if err != nil {
		return nil, fmt.Errorf("hashing document: %w", err)
	}
	sum := sha256.Sum256([]byte(ohash + dhash))
	return sum[:], nil
}

func (s *Signatures) hash(v map[string]interface{}) (string, error) {
	normalized, err := s.proc.Normalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// RawID returns the id of a raw json-ld property.
// Properties can be a simple string or an embedded object with an id,
// so we handle either, and take the first entry of a list.
func RawID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["id"].(string); ok {
			return s
		}
		if s, ok := t["@id"].(string); ok {
			return s
		}
	case []interface{}:
		if len(t) > 0 {
			return RawID(t[0])
		}
	}
	return ""
}
