package activitypub

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

// privateKeyToPEM converts private key to PEM string
func privateKeyToPEM(key *rsa.PrivateKey) string {
	keyBytes := x509.MarshalPKCS1PrivateKey(key)
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: keyBytes,
	})
	return string(keyPEM)
}

// newSignedRequest creates a request to url signed with key under keyId
func newSignedRequest(t *testing.T, method, url string, body []byte, key any, keyId string) *http.Request {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, url, bytes.NewReader(body))
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if err := SignRequest(req, body, key, keyId); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return req
}

func TestParsePrivateKey(t *testing.T) {
	privateKey, _ := testKey(t)

	parsed, err := ParsePrivateKey(privateKeyToPEM(privateKey))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		t.Fatalf("Expected *rsa.PrivateKey, got %T", parsed)
	}
	if rsaKey.N.Cmp(privateKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}
}

func TestParsePrivateKeyPKCS8(t *testing.T) {
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ed25519 key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(edKey)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}

	parsed, err := ParsePrivateKey(string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if _, ok := parsed.(ed25519.PrivateKey); !ok {
		t.Errorf("Expected ed25519.PrivateKey, got %T", parsed)
	}
}

func TestParseKeysInvalidPEM(t *testing.T) {
	for _, input := range []string{"", "not a valid PEM"} {
		if _, err := ParsePrivateKey(input); err == nil {
			t.Errorf("Expected private key error for %q", input)
		}
		if _, err := ParsePublicKey(input); err == nil {
			t.Errorf("Expected public key error for %q", input)
		}
	}
}

func TestParsePublicKey(t *testing.T) {
	privateKey, publicPEM := testKey(t)

	parsed, err := ParsePublicKey(publicPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("Expected *rsa.PublicKey, got %T", parsed)
	}
	if rsaKey.N.Cmp(privateKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&privateKey.PublicKey),
	}))
	if _, err := ParsePublicKey(pkcs1); err != nil {
		t.Errorf("PKCS1 public key should parse: %v", err)
	}
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	privateKey, publicPEM := testKey(t)
	actor := &domain.Person{ApId: "https://myserver.com/users/testuser", PublicKey: publicPEM}
	verifier := NewHTTPSignatureVerifier(time.Hour)

	tests := []struct {
		name   string
		method string
		url    string
		body   []byte
	}{
		{
			name:   "POST with body",
			method: "POST",
			url:    "https://example.com/inbox",
			body:   []byte(`{"type":"Create","object":{}}`),
		},
		{
			name:   "GET without body",
			method: "GET",
			url:    "https://example.com/users/alice",
			body:   nil,
		},
		{
			name:   "POST to different path",
			method: "POST",
			url:    "https://example.com/c/golang/inbox",
			body:   []byte(`{"type":"Follow"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSignedRequest(t, tt.method, tt.url, tt.body, privateKey, actor.ApId+"#main-key")
			if tt.body != nil && req.Header.Get("Digest") == "" {
				t.Error("Signed request with body should carry a Digest header")
			}
			if err := verifier.VerifySignature(req, tt.body, actor); err != nil {
				t.Fatalf("VerifySignature failed: %v", err)
			}
		})
	}
}

func TestVerifySignatureEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ed25519 key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	actor := &domain.Person{
		ApId:      "https://myserver.com/users/ed",
		PublicKey: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	}

	body := []byte(`{"type":"Like"}`)
	req := newSignedRequest(t, "POST", "https://example.com/inbox", body, priv, actor.ApId+"#main-key")
	if err := NewHTTPSignatureVerifier(time.Hour).VerifySignature(req, body, actor); err != nil {
		t.Fatalf("VerifySignature failed: %v", err)
	}
}

func TestVerifySignatureFailures(t *testing.T) {
	privateKey, publicPEM := testKey(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	actor := &domain.Person{ApId: "https://myserver.com/users/alice", PublicKey: publicPEM}
	body := []byte(`{"type":"Create"}`)
	keyId := actor.ApId + "#main-key"

	tests := []struct {
		name  string
		build func() (*http.Request, []byte)
	}{
		{
			name: "no signature",
			build: func() (*http.Request, []byte) {
				req, _ := http.NewRequest("POST", "https://example.com/inbox", bytes.NewReader(body))
				return req, body
			},
		},
		{
			name: "wrong private key",
			build: func() (*http.Request, []byte) {
				return newSignedRequest(t, "POST", "https://example.com/inbox", body, otherKey, keyId), body
			},
		},
		{
			name: "key of another actor",
			build: func() (*http.Request, []byte) {
				return newSignedRequest(t, "POST", "https://example.com/inbox", body, privateKey, "https://myserver.com/users/bob#main-key"), body
			},
		},
		{
			name: "body changed after signing",
			build: func() (*http.Request, []byte) {
				return newSignedRequest(t, "POST", "https://example.com/inbox", body, privateKey, keyId), []byte(`{"type":"Delete"}`)
			},
		},
		{
			name: "date outside the window",
			build: func() (*http.Request, []byte) {
				req, err := http.NewRequest("POST", "https://example.com/inbox", bytes.NewReader(body))
				if err != nil {
					t.Fatalf("Failed to create request: %v", err)
				}
				req.Header.Set("Date", time.Now().Add(-48*time.Hour).UTC().Format(http.TimeFormat))
				req.Header.Set("Host", "example.com")
				if err := SignRequest(req, body, privateKey, keyId); err != nil {
					t.Fatalf("SignRequest failed: %v", err)
				}
				return req, body
			},
		},
	}

	verifier := NewHTTPSignatureVerifier(12 * time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, received := tt.build()
			err := verifier.VerifySignature(req, received, actor)
			if !errors.Is(err, ErrSignatureInvalid) {
				t.Errorf("Expected ErrSignatureInvalid, got %v", err)
			}
		})
	}

	if err := verifier.VerifySignature(nil, body, actor); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Expected ErrSignatureInvalid for nil request, got %v", err)
	}
}

func TestVerifySignatureUsesRequestHost(t *testing.T) {
	privateKey, publicPEM := testKey(t)
	actor := &domain.Person{ApId: "https://myserver.com/users/alice", PublicKey: publicPEM}
	body := []byte(`{"type":"Like"}`)

	req := newSignedRequest(t, "POST", "https://example.com/inbox", body, privateKey, actor.ApId+"#main-key")
	// servers see Host only on the request, not in the header map
	req.Host = req.Header.Get("Host")
	req.Header.Del("Host")

	if err := NewHTTPSignatureVerifier(time.Hour).VerifySignature(req, body, actor); err != nil {
		t.Fatalf("VerifySignature failed: %v", err)
	}
}

func TestKeyBelongsTo(t *testing.T) {
	tests := []struct {
		keyId string
		actor string
		want  bool
	}{
		{"https://a.example/u/alice#main-key", "https://a.example/u/alice", true},
		{"https://a.example/u/alice/main-key", "https://a.example/u/alice", true},
		{"https://a.example/u/alice", "https://a.example/u/alice", true},
		{"https://a.example/u/alicex#main-key", "https://a.example/u/alice", false},
		{"https://a.example/u/bob#main-key", "https://a.example/u/alice", false},
		{"https://b.example/u/alice#main-key", "https://a.example/u/alice", false},
	}

	for _, tt := range tests {
		if got := keyBelongsTo(tt.keyId, tt.actor); got != tt.want {
			t.Errorf("keyBelongsTo(%q, %q) = %v, want %v", tt.keyId, tt.actor, got, tt.want)
		}
	}
}
