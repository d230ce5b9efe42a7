package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const SignaturePrefix = "sha256="

// VerifySignature checks the HMAC-SHA256 signature GitHub attaches to
// webhook deliveries, in the form "sha256=<hex digest>".
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}

	receivedMAC := strings.TrimPrefix(signature, SignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks.
	return hmac.Equal([]byte(expectedMAC), []byte(receivedMAC))
}
