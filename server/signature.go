package server

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

var (
	ErrDigestMismatch = errors.New("digest does not match body")
	ErrUnsignedHeader = errors.New("required header is not signed")
	ErrStaleSignature = errors.New("signature date is out of range")
)

const (
	signatureMaxAge = 12 * time.Hour
	clockSkew       = time.Hour
)

// Signatures are generated by hand, go-fed/httpsig only verifies them.
// Its signer had trouble communicating with Mastodon.

func computeDigest(body []byte) string {
	hash := sha256.New()
	hash.Write(body)
	return base64.StdEncoding.EncodeToString(hash.Sum(nil))
}

func computeSigningString(signedHeaders []string, r *http.Request) string {
	signingStrings := make([]string, 0)
	for _, hdr := range signedHeaders {
		var s string
		switch hdr {
		case "(request-target)":
			target := r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			s = fmt.Sprintf("(request-target): %s %s", strings.ToLower(r.Method), target)
		default:
			s = fmt.Sprintf("%s: %s", hdr, r.Header.Get(hdr))
		}
		signingStrings = append(signingStrings, s)
	}
	return strings.Join(signingStrings, "\n")
}

// sign an http request with a public and private key.
// Requests with a body also sign its digest and content type.
func sign(privateKey crypto.PrivateKey, pubKeyId string, r *http.Request) error {
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("cannot sign with this private key")
	}

	if r.Header.Get("Host") == "" {
		r.Header.Set("Host", r.URL.Host)
	}
	if r.Header.Get("Date") == "" {
		r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	signedHeaders := []string{"(request-target)", "host", "date"}

	if r.Body != nil && r.Body != http.NoBody {
		// Read and replace the request body so we can create a digest
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return fmt.Errorf("reading body to sign: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))
		r.Header.Set("Digest", fmt.Sprintf("SHA-256=%s", computeDigest(body)))
		signedHeaders = append(signedHeaders, "digest", "content-type")
	}

	signingString := computeSigningString(signedHeaders, r)

	created := time.Now().UTC()
	expires := created.Add(time.Hour)

	sigHash := sha256.New()
	sigHash.Write([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, sigHash.Sum(nil))
	if err != nil {
		return err
	}
	signature64 := base64.StdEncoding.EncodeToString(signature)
	r.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",created=%d,expires=%d,headers="%s",signature="%s"`,
		pubKeyId, created.Unix(), expires.Unix(), strings.Join(signedHeaders, " "), signature64))
	return nil
}

// keyOwners finds the actor a signing key belongs to.
type keyOwners interface {
	// KeyOwner may answer from a cache.
	KeyOwner(ctx context.Context, keyID string) (string, crypto.PublicKey, error)
	// RefreshKey always fetches the key again, for actors that rotated their keys.
	RefreshKey(ctx context.Context, keyID string) (string, crypto.PublicKey, error)
}

// verify a signed http request and return the owner of the signing key.
func verify(ctx context.Context, keys keyOwners, r *http.Request) (string, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return "", err
	}
	keyID := verifier.KeyId()
	owner, pubKey, err := keys.KeyOwner(ctx, keyID)
	if err != nil {
		return "", fmt.Errorf("key [%s]: %w", keyID, err)
	}
	// hs2019 signatures from Mastodon and friends are rsa-sha256 as well
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err == nil {
		return owner, nil
	}
	telemetry.Debug("signature by [%s] failed, refreshing key", keyID)
	owner, pubKey, err = keys.RefreshKey(ctx, keyID)
	if err != nil {
		return "", fmt.Errorf("refreshing key [%s]: %w", keyID, err)
	}
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return "", err
	}
	return owner, nil
}

// verifyDigest checks the Digest header of a request with a body.
func verifyDigest(header http.Header, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	digest := header.Get("Digest")
	if digest == "" {
		return fmt.Errorf("%w: no digest", ErrDigestMismatch)
	}
	expected := computeDigest(body)
	for _, d := range strings.Split(digest, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(d), "=")
		if ok && strings.EqualFold(algo, "SHA-256") && value == expected {
			return nil
		}
	}
	return ErrDigestMismatch
}

// signedHeaders lists the headers a request signature covers, lower case.
func signedHeaders(header http.Header) []string {
	sig := header.Get("Signature")
	if sig == "" {
		sig = strings.TrimPrefix(header.Get("Authorization"), "Signature ")
	}
	for _, param := range strings.Split(sig, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && key == "headers" {
			return strings.Fields(strings.ToLower(strings.Trim(value, `"`)))
		}
	}
	// headers defaults to date alone
	return []string{"date"}
}

// checkCoverage makes sure a signature can't be replayed with another body
// or long after it was made. The body needs a signed digest, and a signed
// date must be recent. A signed (created) is checked by httpsig itself.
func checkCoverage(header http.Header, body []byte, now time.Time) error {
	covered := make(map[string]bool)
	for _, h := range signedHeaders(header) {
		covered[h] = true
	}
	if len(body) > 0 && !covered["digest"] {
		return fmt.Errorf("%w: digest", ErrUnsignedHeader)
	}
	if !covered["date"] {
		if covered["(created)"] {
			return nil
		}
		return fmt.Errorf("%w: date", ErrUnsignedHeader)
	}
	date, err := http.ParseTime(header.Get("Date"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStaleSignature, err)
	}
	if now.Sub(date) > signatureMaxAge || date.Sub(now) > clockSkew {
		return fmt.Errorf("%w: %s", ErrStaleSignature, header.Get("Date"))
	}
	return nil
}

// Verifier recovers the signers of inbound messages.
type Verifier struct {
	keys keyOwners
	ld   *jsonld.Signatures
	now  func() time.Time
}

func NewVerifier(keys keyOwners, ld *jsonld.Signatures) *Verifier {
	return &Verifier{keys: keys, ld: ld, now: time.Now}
}

// inboundRequest rebuilds the request a message arrived with.
func inboundRequest(ctx context.Context, msg receiver.InboundMessage) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, msg.Method, msg.Target, bytes.NewReader(msg.Body))
	if err != nil {
		return nil, err
	}
	r.Header = msg.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Host = msg.Host
	return r, nil
}

// HTTPSigner implements receiver.SignatureVerifier.
func (v *Verifier) HTTPSigner(ctx context.Context, msg receiver.InboundMessage) (string, error) {
	r, err := inboundRequest(ctx, msg)
	if err != nil {
		return "", err
	}
	if err := verifyDigest(r.Header, msg.Body); err != nil {
		return "", err
	}
	if err := checkCoverage(r.Header, msg.Body, v.now()); err != nil {
		telemetry.Increment("http_signature_failures", 1)
		return "", err
	}
	signer, err := verify(ctx, v.keys, r)
	if err != nil {
		telemetry.Increment("http_signature_failures", 1)
		return "", err
	}
	return signer, nil
}

// IsSigned implements receiver.SignatureVerifier.
func (v *Verifier) IsSigned(doc map[string]interface{}) bool {
	return jsonld.IsSigned(doc)
}

// LDSigner implements receiver.SignatureVerifier.
func (v *Verifier) LDSigner(ctx context.Context, doc map[string]interface{}) (string, error) {
	return v.ld.Signer(ctx, doc)
}
