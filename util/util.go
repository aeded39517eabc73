package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

//go:embed version.txt
var embeddedVersion string

const KeyFileName = "instance.pem"

type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", "\t")
	return string(s)
}

// UserAgent is sent with every outbound fetch.
func UserAgent(conf *AppConfig) string {
	return fmt.Sprintf("%s/%s (+%s)", Name, GetVersion(), conf.BaseURL())
}

func GeneratePemKeypair() *RsaKeyPair {
	bitSize := 2048

	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		panic(err)
	}

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	pubBytes, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		panic(err)
	}
	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubBytes,
		},
	)

	return &RsaKeyPair{Private: string(keyPEM), Public: string(pubPEM)}
}

// LoadOrCreateKeypair reads the instance key from path, generating and
// persisting a fresh one on first start.
func LoadOrCreateKeypair(path string) (*RsaKeyPair, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		kp := GeneratePemKeypair()
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(kp.Private), 0600); err != nil {
			return nil, fmt.Errorf("failed to write instance key: %w", err)
		}
		log.Printf("Generated new instance key at %s", path)
		return kp, nil
	}
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance key: %w", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return &RsaKeyPair{Private: string(buf), Public: string(pubPEM)}, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes markup and unescapes entities, collapsing whitespace.
func StripHTML(text string) string {
	plain := html.UnescapeString(tagPattern.ReplaceAllString(text, " "))
	return strings.Join(strings.Fields(plain), " ")
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

const AppConfigDir = ".config/inboxd"

// ConfigDir returns ~/.config/inboxd, creating it when missing.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, AppConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ResolvePath locates a data file. A copy in the working directory wins,
// otherwise the file lives below ConfigDir whether it exists yet or not.
func ResolvePath(elem ...string) string {
	local := filepath.Join(elem...)
	if filepath.IsAbs(local) {
		return local
	}
	if _, err := os.Stat(local); err == nil {
		return local
	}
	dir, err := ConfigDir()
	if err != nil {
		return local
	}
	return filepath.Join(dir, local)
}
