// Package apikey issues API access keys. Secrets are shown to the caller once
// and persisted only as a keyed hash.
package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultPrefix marks keygate secrets.
	DefaultPrefix = "kg_"

	secretBytes = 32

	// DisplayPrefixLen is how many leading characters of a secret are kept for
	// display in listings.
	DisplayPrefixLen = 10
)

// Generator creates random secrets and derives their lookup hashes.
type Generator struct {
	prefix string
	pepper []byte
	random io.Reader
}

// NewGenerator returns a generator that prefixes secrets with prefix and
// hashes them with HMAC-SHA256 keyed by pepper.
func NewGenerator(prefix string, pepper []byte) *Generator {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return &Generator{
		prefix: prefix,
		pepper: append([]byte(nil), pepper...),
		random: rand.Reader,
	}
}

// Generate returns a fresh plaintext secret.
func (g *Generator) Generate() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := io.ReadFull(g.random, raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return g.prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Hash derives the deterministic at-rest form of secret.
func (g *Generator) Hash(secret string) string {
	mac := hmac.New(sha256.New, g.pepper)
	mac.Write([]byte(secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DisplayPrefix returns the non-secret leading part of secret.
func DisplayPrefix(secret string) string {
	if len(secret) <= DisplayPrefixLen {
		return secret
	}
	return secret[:DisplayPrefixLen]
}
