// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import (
	"net"
)

const (
	familyIPv4 byte = 0x01
	familyIPv6 byte = 0x02
)

// Address is a transport address value as carried by the plain (non-XOR)
// address attributes.
type Address struct {
	IP   net.IP
	Port int
}

func encodeAddress(a Address) ([]byte, error) {
	ip4 := a.IP.To4()
	var family byte
	var raw []byte
	if ip4 != nil {
		family = familyIPv4
		raw = ip4
	} else if ip6 := a.IP.To16(); ip6 != nil {
		family = familyIPv6
		raw = ip6
	} else {
		return nil, newDecodeError("invalid IP address")
	}
	v := make([]byte, 4+len(raw))
	v[0] = 0
	v[1] = family
	bin.PutUint16(v[2:4], uint16(a.Port))
	copy(v[4:], raw)
	return v, nil
}

func decodeAddress(v []byte) (Address, error) {
	if len(v) < 4 {
		return Address{}, newDecodeError("address value too short (%d bytes)", len(v))
	}
	family := v[1]
	port := int(bin.Uint16(v[2:4]))
	rest := v[4:]
	switch family {
	case familyIPv4:
		if len(rest) != net.IPv4len {
			return Address{}, newDecodeError("bad IPv4 address length %d", len(rest))
		}
		return Address{IP: net.IP(append([]byte{}, rest...)), Port: port}, nil
	case familyIPv6:
		if len(rest) != net.IPv6len {
			return Address{}, newDecodeError("bad IPv6 address length %d", len(rest))
		}
		return Address{IP: net.IP(append([]byte{}, rest...)), Port: port}, nil
	default:
		return Address{}, newDecodeError("unknown address family 0x%02x", family)
	}
}

// plainAddress implements the plain (non-XOR) address
// attributes: MAPPED-ADDRESS, SOURCE-ADDRESS, CHANGED-ADDRESS, OTHER-ADDRESS.
type plainAddress struct {
	attr AttrType
	Address
}

func (a plainAddress) AddTo(m *Message) error {
	v, err := encodeAddress(a.Address)
	if err != nil {
		return err
	}
	m.Add(a.attr, v)
	return nil
}

func (a *plainAddress) GetFrom(m *Message) error {
	raw, ok := m.Get(a.attr)
	if !ok {
		return ErrAttributeNotFound
	}
	addr, err := decodeAddress(raw.Value)
	if err != nil {
		return err
	}
	a.Address = addr
	return nil
}

// MappedAddress is the MAPPED-ADDRESS attribute.
type MappedAddress struct{ Address }

// AddTo implements Setter.
func (a MappedAddress) AddTo(m *Message) error {
	return plainAddress{attr: AttrMappedAddress, Address: a.Address}.AddTo(m)
}

// GetFrom implements Getter.
func (a *MappedAddress) GetFrom(m *Message) error {
	p := plainAddress{attr: AttrMappedAddress}
	if err := p.GetFrom(m); err != nil {
		return err
	}
	a.Address = p.Address
	return nil
}

// SourceAddress is the SOURCE-ADDRESS attribute.
type SourceAddress struct{ Address }

func (a SourceAddress) AddTo(m *Message) error {
	return plainAddress{attr: AttrSourceAddress, Address: a.Address}.AddTo(m)
}

func (a *SourceAddress) GetFrom(m *Message) error {
	p := plainAddress{attr: AttrSourceAddress}
	if err := p.GetFrom(m); err != nil {
		return err
	}
	a.Address = p.Address
	return nil
}

// ChangedAddress is the CHANGED-ADDRESS attribute.
type ChangedAddress struct{ Address }

func (a ChangedAddress) AddTo(m *Message) error {
	return plainAddress{attr: AttrChangedAddress, Address: a.Address}.AddTo(m)
}

func (a *ChangedAddress) GetFrom(m *Message) error {
	p := plainAddress{attr: AttrChangedAddress}
	if err := p.GetFrom(m); err != nil {
		return err
	}
	a.Address = p.Address
	return nil
}

// OtherAddress is the OTHER-ADDRESS attribute.
type OtherAddress struct{ Address }

func (a OtherAddress) AddTo(m *Message) error {
	return plainAddress{attr: AttrOtherAddress, Address: a.Address}.AddTo(m)
}

func (a *OtherAddress) GetFrom(m *Message) error {
	p := plainAddress{attr: AttrOtherAddress}
	if err := p.GetFrom(m); err != nil {
		return err
	}
	a.Address = p.Address
	return nil
}

// xorKey returns the 16-byte key used to XOR an IPv6 address: the magic
// cookie concatenated with the transaction id. For IPv4 only the leading
// 4 bytes (the cookie) are used.
func xorKey(id TransactionID) [16]byte {
	var k [16]byte
	bin.PutUint32(k[0:4], MagicCookie)
	copy(k[4:], id[:])
	return k
}

func encodeXorAddress(attr AttrType, a Address, id TransactionID) (RawAttribute, []byte, error) {
	ip4 := a.IP.To4()
	var family byte
	var raw []byte
	if ip4 != nil {
		family = familyIPv4
		raw = append([]byte{}, ip4...)
	} else if ip6 := a.IP.To16(); ip6 != nil {
		family = familyIPv6
		raw = append([]byte{}, ip6...)
	} else {
		return RawAttribute{}, nil, newDecodeError("invalid IP address")
	}

	key := xorKey(id)
	for i := range raw {
		raw[i] ^= key[i]
	}
	port := uint16(a.Port) ^ uint16(MagicCookie>>16)

	v := make([]byte, 4+len(raw))
	v[1] = family
	bin.PutUint16(v[2:4], port)
	copy(v[4:], raw)
	return RawAttribute{Type: attr, Value: v}, v, nil
}

func decodeXorAddress(v []byte, id TransactionID) (Address, error) {
	if len(v) < 4 {
		return Address{}, newDecodeError("xor address value too short (%d bytes)", len(v))
	}
	family := v[1]
	port := int(bin.Uint16(v[2:4]) ^ uint16(MagicCookie>>16))
	raw := append([]byte{}, v[4:]...)
	key := xorKey(id)
	for i := range raw {
		raw[i] ^= key[i]
	}
	switch family {
	case familyIPv4:
		if len(raw) != net.IPv4len {
			return Address{}, newDecodeError("bad XOR IPv4 address length %d", len(raw))
		}
	case familyIPv6:
		if len(raw) != net.IPv6len {
			return Address{}, newDecodeError("bad XOR IPv6 address length %d", len(raw))
		}
	default:
		return Address{}, newDecodeError("unknown address family 0x%02x", family)
	}
	return Address{IP: net.IP(raw), Port: port}, nil
}

type xorAddress struct {
	attr AttrType
	Address
}

func (a xorAddress) AddTo(m *Message) error {
	raw, v, err := encodeXorAddress(a.attr, a.Address, m.TransactionID)
	if err != nil {
		return err
	}
	m.Add(raw.Type, v)
	return nil
}

func (a *xorAddress) GetFrom(m *Message) error {
	raw, ok := m.Get(a.attr)
	if !ok {
		return ErrAttributeNotFound
	}
	addr, err := decodeXorAddress(raw.Value, m.TransactionID)
	if err != nil {
		return err
	}
	a.Address = addr
	return nil
}

// XorMappedAddress is the XOR-MAPPED-ADDRESS attribute.
type XorMappedAddress struct{ Address }

func (a XorMappedAddress) AddTo(m *Message) error {
	return xorAddress{attr: AttrXorMappedAddress, Address: a.Address}.AddTo(m)
}

func (a *XorMappedAddress) GetFrom(m *Message) error {
	x := xorAddress{attr: AttrXorMappedAddress}
	if err := x.GetFrom(m); err != nil {
		return err
	}
	a.Address = x.Address
	return nil
}

// XorPeerAddress is the XOR-PEER-ADDRESS attribute (TURN).
type XorPeerAddress struct{ Address }

func (a XorPeerAddress) AddTo(m *Message) error {
	return xorAddress{attr: AttrXorPeerAddress, Address: a.Address}.AddTo(m)
}

func (a *XorPeerAddress) GetFrom(m *Message) error {
	x := xorAddress{attr: AttrXorPeerAddress}
	if err := x.GetFrom(m); err != nil {
		return err
	}
	a.Address = x.Address
	return nil
}

// XorRelayedAddress is the XOR-RELAYED-ADDRESS attribute (TURN). Per the
// module's Non-goals only IPv4 relayed addresses are surfaced; GetFrom
// rejects an IPv6 value.
type XorRelayedAddress struct{ Address }

func (a XorRelayedAddress) AddTo(m *Message) error {
	return xorAddress{attr: AttrXorRelayedAddress, Address: a.Address}.AddTo(m)
}

func (a *XorRelayedAddress) GetFrom(m *Message) error {
	x := xorAddress{attr: AttrXorRelayedAddress}
	if err := x.GetFrom(m); err != nil {
		return err
	}
	if x.Address.IP.To4() == nil {
		return newDecodeError("XOR-RELAYED-ADDRESS: only IPv4 relays are supported")
	}
	a.Address = x.Address
	return nil
}
