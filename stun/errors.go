// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import "fmt"

// DecodeError describes why Decode rejected a buffer. Decode reports every
// failure as a *DecodeError except an attribute whose length breaks its
// grammar, which is an *AttrLengthError; callers should treat either as a
// dropped packet plus a diagnostic for their logger, not as fatal.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "stun: decode: " + e.Reason
}

func newDecodeError(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// ErrAttributeNotFound is returned by Getter.GetFrom when the expected
// attribute is absent from the message.
var ErrAttributeNotFound = fmt.Errorf("stun: attribute not found")

// AttrLengthError reports an attribute whose value length does not match
// its grammar (e.g. PRIORITY must be exactly 4 bytes).
type AttrLengthError struct {
	Attr     AttrType
	Expected int
	Got      int
}

func (e *AttrLengthError) Error() string {
	return fmt.Sprintf("stun: %s: expected length %d, got %d", e.Attr, e.Expected, e.Got)
}
