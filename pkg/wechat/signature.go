// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"crypto/sha1" // #nosec G505 - the platform defines the callback signature as SHA-1
	"encoding/hex"
	"slices"
	"strings"
)

// Sign computes the callback signature for token, timestamp and nonce: the
// three values sorted by byte order, concatenated without separators, SHA-1
// hashed and rendered as uppercase hex.
func Sign(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	slices.Sort(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, ""))) // #nosec G401
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySignature reports whether signature matches Sign(token, timestamp,
// nonce), ignoring hex letter case.
func VerifySignature(token, timestamp, nonce, signature string) bool {
	return strings.EqualFold(Sign(token, timestamp, nonce), signature)
}
