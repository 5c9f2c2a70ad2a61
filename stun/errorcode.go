// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

// ErrorCode is the ERROR-CODE attribute: a 3-digit code (RFC 5389 encodes
// it as class*100+number) and a human-readable reason phrase.
type ErrorCode struct {
	Code   int
	Reason string
}

// AddTo implements Setter.
func (e ErrorCode) AddTo(m *Message) error {
	v := make([]byte, 4+len(e.Reason))
	v[2] = byte(e.Code / 100)
	v[3] = byte(e.Code % 100)
	copy(v[4:], e.Reason)
	m.Add(AttrErrorCode, v)
	return nil
}

// GetFrom implements Getter.
func (e *ErrorCode) GetFrom(m *Message) error {
	raw, ok := m.Get(AttrErrorCode)
	if !ok {
		return ErrAttributeNotFound
	}
	if len(raw.Value) < 4 {
		return newDecodeError("ERROR-CODE value too short (%d bytes)", len(raw.Value))
	}
	e.Code = int(raw.Value[2])*100 + int(raw.Value[3])
	e.Reason = string(raw.Value[4:])
	return nil
}

// Well-known error codes referenced by the turn and ice packages.
const (
	CodeUnauthorized  = 401
	CodeStaleNonce    = 438
	CodeBadRequest    = 400
	CodeServerError   = 500
	CodeAllocMismatch = 437
)
