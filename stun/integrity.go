// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec
	"crypto/sha1"
	"strings"
)

// MessageIntegrity is a Setter/Getter for the MESSAGE-INTEGRITY attribute.
// The key is either a short-term password (ICE connectivity checks) or a
// long-term key derived by LongTermKey (TURN). Encapsulating key selection
// here keeps call sites from confusing the two.
type MessageIntegrity []byte

// LongTermKey derives the TURN long-term credential key as
// MD5(username:realm:password).
func LongTermKey(username, realm, password string) MessageIntegrity {
	h := md5.New() //nolint:gosec
	h.Write([]byte(strings.Join([]string{username, realm, password}, ":")))
	return MessageIntegrity(h.Sum(nil))
}

// ShortTermKey derives the ICE short-term credential key, which is simply
// the peer's password taken verbatim.
func ShortTermKey(password string) MessageIntegrity {
	return MessageIntegrity(password)
}

// AddTo appends a MESSAGE-INTEGRITY attribute computed over every byte of
// m written so far, with the header length temporarily extended to cover
// the 24-byte TLV.
func (i MessageIntegrity) AddTo(m *Message) error {
	length := m.Length
	m.Length += attrHeaderSize + 20
	m.WriteLength()
	mac := hmac.New(sha1.New, i)
	mac.Write(m.Raw)
	sum := mac.Sum(nil)
	m.Length = length
	m.WriteLength()

	m.Add(AttrMessageIntegrity, sum)
	return nil
}
