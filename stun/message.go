// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

// Package stun implements the wire codec for STUN (RFC 5389) messages:
// binary encode/decode of the header and attribute TLVs, with
// MESSAGE-INTEGRITY and FINGERPRINT validation. It is deliberately scoped
// to the attribute set needed by the turn and ice packages of this module.
package stun

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	// MagicCookie is the fixed value that marks a buffer as a STUN message.
	MagicCookie = 0x2112A442

	headerSize          = 20
	attrHeaderSize       = 4
	transactionIDSize    = 12
	defaultRawCapacity   = 128
)

var bin = binary.BigEndian

// TransactionID is a 12-byte STUN transaction identifier.
type TransactionID [transactionIDSize]byte

// NewTransactionID returns a random transaction ID sourced from crypto/rand.
func NewTransactionID() (id TransactionID) {
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}

// MessageClass is the 2-bit class of a STUN message type.
type MessageClass byte

// Message classes, per RFC 5389 section 6.
const (
	ClassRequest         MessageClass = 0x00
	ClassIndication      MessageClass = 0x01
	ClassSuccessResponse MessageClass = 0x02
	ClassErrorResponse   MessageClass = 0x03
)

func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	default:
		return fmt.Sprintf("class(0x%x)", byte(c))
	}
}

// Method is the 12-bit method of a STUN message type.
type Method uint16

// Methods used by this implementation.
const (
	MethodBinding          Method = 0x001
	MethodSharedSecret     Method = 0x002
	MethodAllocate         Method = 0x003
	MethodRefresh          Method = 0x004
	MethodSend             Method = 0x006
	MethodData             Method = 0x007
	MethodCreatePermission Method = 0x008
	MethodChannelBind      Method = 0x009
)

func (m Method) String() string {
	switch m {
	case MethodBinding:
		return "binding"
	case MethodSharedSecret:
		return "shared secret"
	case MethodAllocate:
		return "allocate"
	case MethodRefresh:
		return "refresh"
	case MethodSend:
		return "send"
	case MethodData:
		return "data"
	case MethodCreatePermission:
		return "create permission"
	case MethodChannelBind:
		return "channel bind"
	default:
		return fmt.Sprintf("method(0x%x)", uint16(m))
	}
}

// the 14-bit type field splits into class bits (mask 0x0110) and method
// bits (mask 0x3EEF); method bits M4-M6 and M7-M11 sit either side of the
// two class bits and must be scattered accordingly (RFC 5389 figure 3).
const (
	methodABits = 0xf
	methodBBits = 0x70
	methodDBits = 0xf80

	methodBShift = 1
	methodDShift = 2

	c0Bit = 0x1
	c1Bit = 0x2

	classC0Shift = 4
	classC1Shift = 7
)

// MessageType is the decoded (class, method) pair of a STUN message.
type MessageType struct {
	Class  MessageClass
	Method Method
}

// Value encodes the MessageType into the 14-bit wire representation.
func (t MessageType) Value() uint16 {
	m := uint16(t.Method)
	a := m & methodABits
	b := m & methodBBits
	d := m & methodDBits
	m = a + (b << methodBShift) + (d << methodDShift)

	c := uint16(t.Class)
	c0 := (c & c0Bit) << classC0Shift
	c1 := (c & c1Bit) << classC1Shift

	return m + c0 + c1
}

// ReadValue decodes the 14-bit wire representation into t.
func (t *MessageType) ReadValue(v uint16) {
	c0 := (v >> classC0Shift) & c0Bit
	c1 := (v >> classC1Shift) & c1Bit
	t.Class = MessageClass(c0 + c1)

	a := v & methodABits
	b := (v >> methodBShift) & methodBBits
	d := (v >> methodDShift) & methodDBits
	t.Method = Method(a + b + d)
}

func (t MessageType) String() string {
	return fmt.Sprintf("%s %s", t.Method, t.Class)
}

// Message is a single decoded/to-be-encoded STUN packet.
//
// Raw holds the canonical wire bytes once Encode has run; Attributes holds
// the TLVs in wire order. Mutating Attributes directly does not update Raw;
// use Add (or one of the attribute Setters) instead.
type Message struct {
	Type          MessageType
	Length        uint32 // attribute bytes, i.e. len(Raw)-headerSize once encoded
	TransactionID TransactionID
	Attributes    Attributes
	Raw           []byte
}

// New returns an empty Message with a fresh random transaction ID.
func New(class MessageClass, method Method) *Message {
	m := &Message{
		Type:          MessageType{Class: class, Method: method},
		TransactionID: NewTransactionID(),
		Raw:           make([]byte, headerSize, defaultRawCapacity),
	}
	m.WriteHeader()
	return m
}

// Setter adds an attribute (or message-level transform) to a Message.
type Setter interface {
	AddTo(m *Message) error
}

// Getter reads an attribute out of a decoded Message.
type Getter interface {
	GetFrom(m *Message) error
}

// Build constructs a Message by applying setters in order. Passing
// MessageIntegrity before Fingerprint (and nothing else after Fingerprint)
// preserves the wire ordering both attributes depend on.
func Build(class MessageClass, method Method, setters ...Setter) (*Message, error) {
	m := New(class, method)
	for _, s := range setters {
		if err := s.AddTo(m); err != nil {
			return nil, err
		}
	}
	m.WriteLength()
	return m, nil
}

func (m *Message) grow(n int) {
	for cap(m.Raw) < n {
		m.Raw = append(m.Raw, 0)
	}
	m.Raw = m.Raw[:n]
}

// Add appends a raw attribute TLV (padded to a 4-byte boundary) to the
// message and records it in Attributes. Not safe for concurrent use.
func (m *Message) Add(t AttrType, v []byte) {
	allocSize := attrHeaderSize + len(v)
	first := headerSize + int(m.Length)
	last := first + allocSize
	m.grow(last)

	buf := m.Raw[first:last]
	value := buf[attrHeaderSize:]
	bin.PutUint16(buf[0:2], uint16(t))
	bin.PutUint16(buf[2:4], uint16(len(v)))
	copy(value, v)
	m.Length += uint32(allocSize)

	if pad := paddedLength(len(v)) - len(v); pad > 0 {
		last += pad
		m.grow(last)
		for i := last - pad; i < last; i++ {
			m.Raw[i] = 0
		}
		m.Length += uint32(pad)
	}

	m.Attributes = append(m.Attributes, RawAttribute{Type: t, Value: value})
}

// Get returns the first attribute of type t, if present.
func (m *Message) Get(t AttrType) (RawAttribute, bool) {
	return m.Attributes.Get(t)
}

// WriteLength writes the current m.Length into the header's length field.
func (m *Message) WriteLength() {
	if len(m.Raw) < headerSize {
		m.grow(headerSize)
	}
	bin.PutUint16(m.Raw[2:4], uint16(m.Length))
}

// WriteHeader serializes Type, Length and TransactionID into Raw[0:20].
func (m *Message) WriteHeader() {
	if len(m.Raw) < headerSize {
		m.grow(headerSize)
	}
	bin.PutUint16(m.Raw[0:2], m.Type.Value())
	bin.PutUint16(m.Raw[2:4], uint16(len(m.Raw)-headerSize))
	bin.PutUint32(m.Raw[4:8], MagicCookie)
	copy(m.Raw[8:headerSize], m.TransactionID[:])
}

// Encode returns the final wire bytes, after stamping the header's length
// field with the current (fully-built) m.Length. Safe to call more than
// once; it does not otherwise mutate the message.
func (m *Message) Encode() []byte {
	m.WriteLength()
	return m.Raw
}

func paddedLength(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// peekHeader parses only the 20-byte header, without validating or
// decoding attributes. It is the cheap classifier used on the receive
// path to decide whether a datagram is STUN at all.
func peekHeader(buf []byte) (t MessageType, cookie uint32, id TransactionID, ok bool) {
	if len(buf) < headerSize {
		return t, 0, id, false
	}
	t.ReadValue(bin.Uint16(buf[0:2]))
	cookie = bin.Uint32(buf[4:8])
	copy(id[:], buf[8:headerSize])
	return t, cookie, id, true
}

// PeekType reports whether buf looks like a STUN packet (length and magic
// cookie only) and, if so, returns its type, cookie and transaction id.
// It performs none of the attribute-level validation Decode does.
func PeekType(buf []byte) (t MessageType, cookie uint32, id TransactionID, isStun bool) {
	t, cookie, id, ok := peekHeader(buf)
	if !ok || cookie != MagicCookie {
		return MessageType{}, cookie, id, false
	}
	return t, cookie, id, true
}
