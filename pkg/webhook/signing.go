// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Header names carried on every signed event delivery.
const (
	// SignatureHeader is the HTTP header containing the HMAC signature.
	SignatureHeader = "X-Wxbridge-Signature"
	// TimestampHeader is the HTTP header containing the Unix timestamp.
	TimestampHeader = "X-Wxbridge-Timestamp"
)

// signaturePrefix is the prefix for the HMAC-SHA256 signature value.
const signaturePrefix = "sha256="

// SignPayload computes an HMAC-SHA256 signature over the given timestamp and
// payload. The signature is computed over the string "timestamp.payload" and
// returned in the format "sha256=<hex-encoded-signature>".
func SignPayload(secret []byte, timestamp int64, payload []byte) string {
	return signaturePrefix + hex.EncodeToString(mac(secret, timestamp, payload))
}

// VerifySignature reports whether signature is the "sha256=<hex>" HMAC of
// timestamp and payload under secret. The comparison is constant time.
// Receivers use it to authenticate deliveries.
func VerifySignature(secret []byte, timestamp int64, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}

	return hmac.Equal(mac(secret, timestamp, payload), sigBytes)
}

func mac(secret []byte, timestamp int64, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(strconv.AppendInt(nil, timestamp, 10))
	h.Write([]byte{'.'})
	h.Write(payload)
	return h.Sum(nil)
}
