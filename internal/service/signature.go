package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const signaturePrefix = "sha256="

// SignPayload computes the delivery signature over the exact request body
// bytes, in the form "sha256=<hex HMAC-SHA256>".
func SignPayload(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the payload signature and compares it in
// constant time. Subscribers perform the same check on their side.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected, err := SignPayload(secret, payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
