// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

// ChangeRequest is the CHANGE-REQUEST attribute (RFC 5780 STUN server
// behavior discovery); carried as a raw 32-bit flags value.
type ChangeRequest uint32

func (c ChangeRequest) AddTo(m *Message) error {
	v := make([]byte, 4)
	bin.PutUint32(v, uint32(c))
	m.Add(AttrChangeRequest, v)
	return nil
}

// GetChangeRequest reads a CHANGE-REQUEST attribute, if present.
func GetChangeRequest(m *Message) (ChangeRequest, error) {
	raw, ok := m.Get(AttrChangeRequest)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return ChangeRequest(bin.Uint32(raw.Value)), nil
}

// ChannelNumber is the CHANNEL-NUMBER attribute: the 16-bit channel
// followed by 2 reserved bytes.
type ChannelNumber uint16

func (c ChannelNumber) AddTo(m *Message) error {
	v := make([]byte, 4)
	bin.PutUint16(v[0:2], uint16(c))
	m.Add(AttrChannelNumber, v)
	return nil
}

// GetChannelNumber reads a CHANNEL-NUMBER attribute, if present.
func GetChannelNumber(m *Message) (ChannelNumber, error) {
	raw, ok := m.Get(AttrChannelNumber)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	if len(raw.Value) < 2 {
		return 0, newDecodeError("CHANNEL-NUMBER value too short (%d bytes)", len(raw.Value))
	}
	return ChannelNumber(bin.Uint16(raw.Value[0:2])), nil
}

// Lifetime is the LIFETIME attribute, in seconds.
type Lifetime uint32

func (l Lifetime) AddTo(m *Message) error {
	v := make([]byte, 4)
	bin.PutUint32(v, uint32(l))
	m.Add(AttrLifetime, v)
	return nil
}

// GetLifetime reads a LIFETIME attribute, if present.
func GetLifetime(m *Message) (Lifetime, error) {
	raw, ok := m.Get(AttrLifetime)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return Lifetime(bin.Uint32(raw.Value)), nil
}

// DataBlob is the DATA attribute carrying opaque application payload.
type DataBlob []byte

func (d DataBlob) AddTo(m *Message) error {
	m.Add(AttrData, d)
	return nil
}

// GetData reads a DATA attribute, if present.
func GetData(m *Message) (DataBlob, error) {
	raw, ok := m.Get(AttrData)
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return DataBlob(raw.Value), nil
}

// RequestedTransport is the REQUESTED-TRANSPORT attribute; Protocol 17 is
// UDP, the only value this module's TURN client sends.
type RequestedTransport struct {
	Protocol byte
}

func (r RequestedTransport) AddTo(m *Message) error {
	v := make([]byte, 4)
	v[0] = r.Protocol
	m.Add(AttrRequestedTransport, v)
	return nil
}

// GetRequestedTransport reads a REQUESTED-TRANSPORT attribute, if present.
func GetRequestedTransport(m *Message) (RequestedTransport, error) {
	raw, ok := m.Get(AttrRequestedTransport)
	if !ok {
		return RequestedTransport{}, ErrAttributeNotFound
	}
	if len(raw.Value) < 1 {
		return RequestedTransport{}, newDecodeError("REQUESTED-TRANSPORT value too short")
	}
	return RequestedTransport{Protocol: raw.Value[0]}, nil
}

// ProtoUDP is the REQUESTED-TRANSPORT protocol number for UDP.
const ProtoUDP = 17

// ReservationToken is the RESERVATION-TOKEN attribute.
type ReservationToken []byte

func (r ReservationToken) AddTo(m *Message) error {
	m.Add(AttrReservationToken, r)
	return nil
}

// GetReservationToken reads a RESERVATION-TOKEN attribute, if present.
func GetReservationToken(m *Message) (ReservationToken, error) {
	raw, ok := m.Get(AttrReservationToken)
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return ReservationToken(raw.Value), nil
}

// Priority is the PRIORITY attribute carrying an ICE candidate-pair
// priority.
type Priority uint32

func (p Priority) AddTo(m *Message) error {
	v := make([]byte, 4)
	bin.PutUint32(v, uint32(p))
	m.Add(AttrPriority, v)
	return nil
}

// GetPriority reads a PRIORITY attribute, if present.
func GetPriority(m *Message) (Priority, error) {
	raw, ok := m.Get(AttrPriority)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return Priority(bin.Uint32(raw.Value)), nil
}

// UseCandidate is the (empty-bodied) USE-CANDIDATE attribute.
type UseCandidate struct{}

func (UseCandidate) AddTo(m *Message) error {
	m.Add(AttrUseCandidate, nil)
	return nil
}

// HasUseCandidate reports whether m carries a USE-CANDIDATE attribute.
func HasUseCandidate(m *Message) bool {
	_, ok := m.Get(AttrUseCandidate)
	return ok
}

// IceControlling is the ICE-CONTROLLING attribute: an 8-byte tiebreaker.
type IceControlling uint64

func (t IceControlling) AddTo(m *Message) error {
	v := make([]byte, 8)
	bin.PutUint64(v, uint64(t))
	m.Add(AttrIceControlling, v)
	return nil
}

// GetIceControlling reads an ICE-CONTROLLING attribute, if present.
func GetIceControlling(m *Message) (IceControlling, error) {
	raw, ok := m.Get(AttrIceControlling)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return IceControlling(bin.Uint64(raw.Value)), nil
}

// IceControlled is the ICE-CONTROLLED attribute: an 8-byte tiebreaker.
type IceControlled uint64

func (t IceControlled) AddTo(m *Message) error {
	v := make([]byte, 8)
	bin.PutUint64(v, uint64(t))
	m.Add(AttrIceControlled, v)
	return nil
}

// GetIceControlled reads an ICE-CONTROLLED attribute, if present.
func GetIceControlled(m *Message) (IceControlled, error) {
	raw, ok := m.Get(AttrIceControlled)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return IceControlled(bin.Uint64(raw.Value)), nil
}
