// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package turn

import "github.com/pkg/errors"

// ProtocolError wraps a STUN ERROR-CODE response that this client treated
// as fatal to the current allocation (everything except a 401 or 438 the
// client could retry, and except CHANNEL-BIND errors, which are reported
// but never torn down).
type ProtocolError struct {
	Method string
	Code   int
	Reason string
}

func (e *ProtocolError) Error() string {
	return errors.Errorf("turn: %s failed: %d %s", e.Method, e.Code, e.Reason).Error()
}

var (
	errNotConnected     = errors.New("turn: allocation is not connected")
	errNoRelayedAddress = errors.New("turn: server did not return an IPv4 relayed address")
	errAuthLoop         = errors.New("turn: server nonce/realm did not change; refusing to retry")
)
