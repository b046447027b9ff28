// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	testEventSecret = "event-secret"
	testEventTime   = int64(1735689600)
)

var testEventBody = []byte(`{"version":"v1","uid":"evt-1","type":"login.succeeded","data":{"account_id":"42"}}`)

func TestSignPayload_MatchesReceiverComputation(t *testing.T) {
	t.Parallel()

	h := hmac.New(sha256.New, []byte(testEventSecret))
	h.Write([]byte("1735689600."))
	h.Write(testEventBody)
	want := "sha256=" + hex.EncodeToString(h.Sum(nil))

	assert.Equal(t, want, SignPayload([]byte(testEventSecret), testEventTime, testEventBody))
}

func TestVerifySignature_Rejections(t *testing.T) {
	t.Parallel()

	good := SignPayload([]byte(testEventSecret), testEventTime, testEventBody)

	tests := []struct {
		name      string
		secret    string
		timestamp int64
		body      []byte
		signature string
		want      bool
	}{
		{name: "accepted", secret: testEventSecret, timestamp: testEventTime, body: testEventBody, signature: good, want: true},
		{name: "other secret", secret: "rotated", timestamp: testEventTime, body: testEventBody, signature: good},
		{name: "replayed with new timestamp", secret: testEventSecret, timestamp: testEventTime + 60, body: testEventBody, signature: good},
		{name: "body edited", secret: testEventSecret, timestamp: testEventTime, body: []byte(`{"uid":"evt-2"}`), signature: good},
		{name: "bare hex", secret: testEventSecret, timestamp: testEventTime, body: testEventBody, signature: good[len("sha256="):]},
		{name: "not hex", secret: testEventSecret, timestamp: testEventTime, body: testEventBody, signature: "sha256=zz"},
		{name: "prefix only", secret: testEventSecret, timestamp: testEventTime, body: testEventBody, signature: "sha256="},
		{name: "empty", secret: testEventSecret, timestamp: testEventTime, body: testEventBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VerifySignature([]byte(tt.secret), tt.timestamp, tt.body, tt.signature))
		})
	}
}

func TestSignPayload_EmptyBody(t *testing.T) {
	t.Parallel()

	sig := SignPayload([]byte(testEventSecret), testEventTime, nil)
	assert.True(t, VerifySignature([]byte(testEventSecret), testEventTime, []byte{}, sig))
}
