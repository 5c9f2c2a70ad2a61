// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"hash/crc32"
)

// Decode parses buf into a Message. key selects MESSAGE-INTEGRITY
// verification: an empty key skips the check entirely; a non-empty key
// must match the attribute, if one is present, or decode fails. A
// present FINGERPRINT is always verified.
func Decode(buf []byte, key []byte) (*Message, error) {
	t, cookie, id, ok := peekHeader(buf)
	if !ok {
		return nil, newDecodeError("buffer of %d bytes shorter than header", len(buf))
	}
	if cookie != MagicCookie {
		return nil, newDecodeError("bad magic cookie 0x%08x", cookie)
	}
	bodyLen := int(bin.Uint16(buf[2:4]))
	if bodyLen != len(buf)-headerSize {
		return nil, newDecodeError("header body length %d does not match buffer (%d bytes)", bodyLen, len(buf)-headerSize)
	}

	m := &Message{Type: t, TransactionID: id, Raw: buf}

	var (
		integritySeen  bool
		integrityStart int
		integrityValue []byte
		fingerprintStart int
		fingerprintValue []byte
	)

	offset := 0
	for offset < bodyLen {
		if bodyLen-offset < attrHeaderSize {
			return nil, newDecodeError("truncated attribute header at offset %d", offset)
		}
		abs := headerSize + offset
		attrType := AttrType(bin.Uint16(buf[abs : abs+2]))
		attrLen := int(bin.Uint16(buf[abs+2 : abs+4]))
		valStart := abs + attrHeaderSize
		valEnd := valStart + attrLen
		if valEnd > len(buf) {
			return nil, newDecodeError("attribute %s value (%d bytes) exceeds buffer", attrType, attrLen)
		}
		value := buf[valStart:valEnd]
		next := offset + attrHeaderSize + paddedLength(attrLen)

		if integritySeen && attrType != AttrFingerprint {
			// Silently dropped: anything after MESSAGE-INTEGRITY other
			// than FINGERPRINT is not part of a validly signed message.
			offset = next
			continue
		}

		if want, ok := exactLength[attrType]; ok && want != attrLen {
			return nil, &AttrLengthError{Attr: attrType, Expected: want, Got: attrLen}
		}

		if _, known := attrNames[attrType]; !known {
			// Unknown attribute: skipped; Decode does not report it to
			// the caller.
			offset = next
			continue
		}

		m.Attributes = append(m.Attributes, RawAttribute{Type: attrType, Value: value})

		switch attrType {
		case AttrMessageIntegrity:
			integritySeen = true
			integrityStart = abs
			integrityValue = value
		case AttrFingerprint:
			fingerprintStart = abs
			fingerprintValue = value
			offset = next
			goto doneAttrs
		}

		offset = next
	}
doneAttrs:
	m.Length = uint32(bodyLen)

	if fingerprintValue != nil {
		if err := verifyFingerprint(buf, fingerprintStart, fingerprintValue); err != nil {
			return nil, err
		}
	}
	if len(key) > 0 && integrityValue != nil {
		if err := verifyIntegrity(buf, integrityStart, key, integrityValue); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// lengthPatched returns a copy of buf[:attrStart] with the header's length
// field rewritten to newBodyLen, matching the wire state the sender used
// when it computed the attribute that starts at attrStart.
func lengthPatched(buf []byte, attrStart int, newBodyLen int) []byte {
	out := make([]byte, attrStart)
	copy(out, buf[:attrStart])
	bin.PutUint16(out[2:4], uint16(newBodyLen))
	return out
}

func verifyIntegrity(buf []byte, attrStart int, key []byte, stored []byte) error {
	scope := lengthPatched(buf, attrStart, attrStart-headerSize+attrHeaderSize+20)
	mac := hmac.New(sha1.New, key)
	mac.Write(scope)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, stored) {
		return newDecodeError("bad integrity: HMAC mismatch")
	}
	return nil
}

func verifyFingerprint(buf []byte, attrStart int, stored []byte) error {
	scope := lengthPatched(buf, attrStart, attrStart-headerSize+attrHeaderSize+4)
	expected := crc32.ChecksumIEEE(scope) ^ fingerprintXORValue
	if bin.Uint32(stored) != expected {
		return newDecodeError("bad fingerprint: CRC mismatch")
	}
	return nil
}
