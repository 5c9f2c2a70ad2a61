// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripNoAuth(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding,
		Software("test"),
	)
	require.NoError(t, err)

	raw := m.Encode()
	decoded, err := Decode(raw, nil)
	require.NoError(t, err)

	assert.Equal(t, m.Type, decoded.Type)
	assert.Equal(t, m.TransactionID, decoded.TransactionID)

	sw, err := GetSoftware(decoded)
	require.NoError(t, err)
	assert.EqualValues(t, "test", sw)
}

func TestRoundTripWithIntegrityAndFingerprint(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding,
		Username("alice"),
		ShortTermKey("s3cret"),
		Fingerprint{},
	)
	require.NoError(t, err)
	raw := m.Encode()

	decoded, err := Decode(raw, ShortTermKey("s3cret"))
	require.NoError(t, err)

	_, err = Decode(raw, ShortTermKey("wrong"))
	assert.Error(t, err)

	// Empty key never checks integrity.
	_, err = Decode(raw, nil)
	assert.NoError(t, err)

	u, err := GetUsername(decoded)
	require.NoError(t, err)
	assert.EqualValues(t, "alice", u)
}

func TestFingerprintMismatchFailsDecode(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding, Fingerprint{})
	require.NoError(t, err)
	raw := m.Encode()
	// Corrupt the last transaction-id byte of the header, which the CRC
	// covers, without touching the FINGERPRINT TLV itself.
	raw[19] ^= 0xFF

	_, err = Decode(raw, nil)
	assert.Error(t, err)
}

func TestAttributesAfterIntegrityAreDropped(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding,
		ShortTermKey("pw"),
	)
	require.NoError(t, err)
	// Append an out-of-band attribute after MESSAGE-INTEGRITY directly,
	// simulating a message that violates the ordering invariant.
	m.Add(AttrSoftware, []byte("evil"))
	raw := m.Encode()

	decoded, err := Decode(raw, ShortTermKey("pw"))
	require.NoError(t, err)

	_, ok := decoded.Get(AttrSoftware)
	assert.False(t, ok, "attribute after MESSAGE-INTEGRITY must be dropped")
}

func TestXorMappedAddressIPv4(t *testing.T) {
	id := TransactionID{}
	copy(id[:], []byte("313233343536373839303132")[:12])

	m := New(ClassSuccessResponse, MethodBinding)
	m.TransactionID = id
	addr := Address{IP: net.ParseIP("192.0.2.1"), Port: 32853}
	require.NoError(t, XorMappedAddress{Address: addr}.AddTo(m))
	m.WriteLength()

	var got XorMappedAddress
	require.NoError(t, got.GetFrom(m))
	assert.Equal(t, addr.Port, got.Port)
	assert.True(t, addr.IP.Equal(got.IP))

	raw, ok := m.Get(AttrXorMappedAddress)
	require.True(t, ok)
	assert.Equal(t, uint16(32853)^uint16(0x2112), bin.Uint16(raw.Value[2:4]))
	assert.Equal(t, uint32(0xC0000201)^uint32(MagicCookie), bin.Uint32(raw.Value[4:8]))
}

func TestHeaderVectorNoAuth(t *testing.T) {
	id := TransactionID{}
	copy(id[:], "313233343536373839303132")

	m := New(ClassRequest, MethodBinding)
	m.TransactionID = id
	raw := m.Encode()

	require.Len(t, raw, 20)
	assert.Equal(t, uint16(0), bin.Uint16(raw[2:4]))
	assert.Equal(t, []byte{0x21, 0x12, 0xA4, 0x42}, raw[4:8])
}

func TestPeekType(t *testing.T) {
	m, err := Build(ClassRequest, MethodAllocate)
	require.NoError(t, err)
	raw := m.Encode()

	typ, cookie, id, ok := PeekType(raw)
	require.True(t, ok)
	assert.Equal(t, m.Type, typ)
	assert.Equal(t, uint32(MagicCookie), cookie)
	assert.Equal(t, m.TransactionID, id)

	_, _, _, ok = PeekType([]byte{0, 0, 0})
	assert.False(t, ok)

	garbage := make([]byte, 20)
	_, _, _, ok = PeekType(garbage)
	assert.False(t, ok)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding)
	require.NoError(t, err)
	raw := m.Encode()
	raw = append(raw, 0, 0, 0, 0) // trailing garbage not reflected in header length

	_, err = Decode(raw, nil)
	assert.Error(t, err)
}

func TestAtMostOneAttributeInstance(t *testing.T) {
	m, err := Build(ClassRequest, MethodBinding, Username("a"))
	require.NoError(t, err)
	raw := m.Encode()

	decoded, err := Decode(raw, nil)
	require.NoError(t, err)

	count := 0
	for _, a := range decoded.Attributes {
		if a.Type == AttrUsername {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
