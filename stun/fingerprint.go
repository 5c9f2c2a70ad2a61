// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import "hash/crc32"

const fingerprintXORValue uint32 = 0x5354554E

// Fingerprint is a Setter that appends a FINGERPRINT attribute computed
// over every byte written to the message so far. It must be the last
// attribute added.
type Fingerprint struct{}

// AddTo computes the CRC32 over m's current bytes (with the header length
// temporarily extended to cover the 8-byte FINGERPRINT TLV) and appends it.
func (Fingerprint) AddTo(m *Message) error {
	length := m.Length
	m.Length += attrHeaderSize + 4
	m.WriteLength()
	val := crc32.ChecksumIEEE(m.Raw) ^ fingerprintXORValue
	m.Length = length
	m.WriteLength()

	b := make([]byte, 4)
	bin.PutUint32(b, val)
	m.Add(AttrFingerprint, b)
	return nil
}
