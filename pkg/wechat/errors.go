// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"errors"
	"fmt"
)

// Platform error codes the bridge distinguishes.
const (
	ErrCodeInvalidCredential = 40001
	ErrCodeInvalidAppSecret  = 40125
	ErrCodeInvalidCode       = 40029
	ErrCodeCodeUsed          = 40163
	ErrCodeTokenExpired      = 42001
	ErrCodeUserRefused       = 43101
)

// ErrInvalidCode is returned when the platform rejects an authorization code.
var ErrInvalidCode = errors.New("wechat: invalid or consumed authorization code")

// APIError is a non-zero errcode in a platform response payload.
type APIError struct {
	ErrCode int64  `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error %d: %s", e.ErrCode, e.ErrMsg)
}

// IsTokenRejected reports whether the platform rejected the access token itself,
// in which case the cached token should be dropped.
func (e *APIError) IsTokenRejected() bool {
	return e.ErrCode == ErrCodeInvalidCredential || e.ErrCode == ErrCodeTokenExpired
}
