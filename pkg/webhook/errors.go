// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import "fmt"

// NetworkError is a failure to reach the receiver, a timeout, or a 5xx answer.
type NetworkError struct {
	WebhookName string
	Err         error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("webhook %q: network error: %v", e.WebhookName, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// InvalidResponseError is a receiver answer that is neither 2xx nor 5xx.
type InvalidResponseError struct {
	WebhookName string
	StatusCode  int
	Body        string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("webhook %q: unexpected status %d: %s", e.WebhookName, e.StatusCode, e.Body)
}
