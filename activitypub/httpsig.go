package activitypub

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/deemkeen/inboxd/domain"
)

// SignatureVerifier checks the transport signature of an inbound request
// against the key of the actor that claims to have sent it.
type SignatureVerifier interface {
	VerifySignature(req *http.Request, body []byte, actor domain.Actor) error
}

// SignRequest signs an outgoing HTTP request with the given private key.
// A non-nil body is covered by a Digest header.
// keyId format: "https://example.com/u/alice#main-key"
func SignRequest(req *http.Request, body []byte, privateKey crypto.PrivateKey, keyId string) error {
	headers := []string{"(request-target)", "host", "date"}
	if body != nil {
		headers = append(headers, "digest")
	}

	algo := httpsig.RSA_SHA256
	if _, ok := privateKey.(ed25519.PrivateKey); ok {
		algo = httpsig.ED25519
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{algo},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return signer.SignRequest(privateKey, keyId, req, body)
}

// HTTPSignatureVerifier implements SignatureVerifier with draft-cavage HTTP
// signatures as used across the fediverse.
type HTTPSignatureVerifier struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

func NewHTTPSignatureVerifier(maxSkew time.Duration) *HTTPSignatureVerifier {
	return &HTTPSignatureVerifier{MaxSkew: maxSkew, Now: time.Now}
}

func (v *HTTPSignatureVerifier) VerifySignature(req *http.Request, body []byte, actor domain.Actor) error {
	if req == nil {
		return fail(ErrSignatureInvalid, "no request to verify")
	}
	if req.Header.Get("Host") == "" && req.Host != "" {
		// net/http moves Host out of the header map
		req.Header.Set("Host", req.Host)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return fail(ErrSignatureInvalid, "no usable signature: %v", err)
	}

	if !keyBelongsTo(verifier.KeyId(), actor.RemoteId()) {
		return fail(ErrSignatureInvalid, "key %s does not belong to %s", verifier.KeyId(), actor.RemoteId())
	}

	if err := v.checkDate(req); err != nil {
		return err
	}
	if err := checkDigest(req, body); err != nil {
		return err
	}

	pubKey, err := ParsePublicKey(actor.PublicKeyPem())
	if err != nil {
		return fail(ErrSignatureInvalid, "unusable key for %s: %v", actor.RemoteId(), err)
	}

	algo := httpsig.RSA_SHA256
	if _, ok := pubKey.(ed25519.PublicKey); ok {
		algo = httpsig.ED25519
	}
	if err := verifier.Verify(pubKey, algo); err != nil {
		return fail(ErrSignatureInvalid, "verification failed: %v", err)
	}
	return nil
}

func (v *HTTPSignatureVerifier) checkDate(req *http.Request) error {
	if v.MaxSkew <= 0 {
		return nil
	}
	raw := req.Header.Get("Date")
	if raw == "" {
		return fail(ErrSignatureInvalid, "missing Date header")
	}
	date, err := http.ParseTime(raw)
	if err != nil {
		return fail(ErrSignatureInvalid, "unparsable Date header %q", raw)
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(date)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return fail(ErrSignatureInvalid, "Date header %s is outside the accepted window", raw)
	}
	return nil
}

// checkDigest compares the SHA-256 Digest header with the received body.
func checkDigest(req *http.Request, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	header := req.Header.Get("Digest")
	if header == "" {
		return fail(ErrSignatureInvalid, "missing Digest header")
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(algo, "SHA-256") && value == want {
			return nil
		}
	}
	return fail(ErrSignatureInvalid, "body does not match Digest header")
}

// keyBelongsTo reports whether keyId names a key of the actor, either as
// fragment ("…/u/alice#main-key") or as sub path ("…/u/alice/main-key").
func keyBelongsTo(keyId, actorId string) bool {
	owner, _, _ := strings.Cut(keyId, "#")
	return owner == actorId || strings.HasPrefix(owner, strings.TrimSuffix(actorId, "/")+"/")
}

// ParsePrivateKey converts a PKCS1 or PKCS8 PEM string to a private key
func ParsePrivateKey(pemString string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKey converts a PEM string to an RSA or Ed25519 public key
func ParsePublicKey(pemString string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	switch key := pubKey.(type) {
	case *rsa.PublicKey, ed25519.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pubKey)
	}
}
