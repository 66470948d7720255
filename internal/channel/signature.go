package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HubSignatureHeader carries the HMAC-SHA256 of a webhook body.
const HubSignatureHeader = "X-Hub-Signature-256"

const hubSignaturePrefix = "sha256="

// SignHub computes the "sha256=<hex>" signature of payload.
func SignHub(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hubSignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyHubSignature checks a "sha256=<hex>" header against payload.
func VerifyHubSignature(payload []byte, signature, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrVerificationSkipped
	}
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, hubSignaturePrefix) {
		return ErrVerificationFailed
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, hubSignaturePrefix))
	if err != nil {
		return ErrVerificationFailed
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyToken compares a shared-secret header in constant time.
func VerifyToken(got, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrVerificationSkipped
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(secret)) != 1 {
		return ErrVerificationFailed
	}
	return nil
}
