package dispatch

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the queue's JWT over the callback body.
const SignatureHeader = "Upstash-Signature"

const signatureIssuer = "Upstash"

// ErrInvalidSignature means the callback was not signed by the queue.
var ErrInvalidSignature = errors.New("invalid queue signature")

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// SignatureVerifier checks worker callbacks against the current and next
// signing keys, so keys can be rotated without downtime.
type SignatureVerifier struct {
	keys []string
}

func NewSignatureVerifier(current, next string) *SignatureVerifier {
	v := &SignatureVerifier{}
	for _, key := range []string{current, next} {
		if key = strings.TrimSpace(key); key != "" {
			v.keys = append(v.keys, key)
		}
	}
	return v
}

// Enabled reports whether any signing key is configured.
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && len(v.keys) > 0
}

// Verify validates token for body.
func (v *SignatureVerifier) Verify(token string, body []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}
	want := bodyHash(body)
	var lastErr error
	for _, key := range v.keys {
		claims := &signatureClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			return []byte(key), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(signatureIssuer),
		)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimRight(claims.Body, "=") != want {
			return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign produces a callback signature the way the queue does.
func Sign(key string, body []byte, claims jwt.RegisteredClaims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = signatureIssuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signatureClaims{
		Body:             base64.URLEncoding.EncodeToString(sha256Sum(body)),
		RegisteredClaims: claims,
	})
	return token.SignedString([]byte(key))
}

func sha256Sum(body []byte) []byte {
	sum := sha256.Sum256(body)
	return sum[:]
}
