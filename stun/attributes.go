// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

import "fmt"

// AttrType is a STUN attribute type code.
type AttrType uint16

// Attribute type codes used by this implementation.
const (
	AttrMappedAddress     AttrType = 0x0001
	AttrChangeRequest     AttrType = 0x0003
	AttrSourceAddress     AttrType = 0x0004
	AttrChangedAddress    AttrType = 0x0005
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrChannelNumber     AttrType = 0x000C
	AttrLifetime          AttrType = 0x000D
	AttrXorPeerAddress    AttrType = 0x0012
	AttrData              AttrType = 0x0013
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXorRelayedAddress AttrType = 0x0016
	AttrEvenPort          AttrType = 0x0018
	AttrRequestedTransport AttrType = 0x0019
	AttrXorMappedAddress  AttrType = 0x0020
	AttrReservationToken  AttrType = 0x0022
	AttrPriority          AttrType = 0x0024
	AttrUseCandidate      AttrType = 0x0025
	AttrSoftware          AttrType = 0x8022
	AttrFingerprint       AttrType = 0x8028
	AttrIceControlled     AttrType = 0x8029
	AttrIceControlling    AttrType = 0x802A
	AttrOtherAddress      AttrType = 0x802C
)

var attrNames = map[AttrType]string{
	AttrMappedAddress:      "MAPPED-ADDRESS",
	AttrChangeRequest:      "CHANGE-REQUEST",
	AttrSourceAddress:      "SOURCE-ADDRESS",
	AttrChangedAddress:     "CHANGED-ADDRESS",
	AttrUsername:           "USERNAME",
	AttrMessageIntegrity:   "MESSAGE-INTEGRITY",
	AttrErrorCode:          "ERROR-CODE",
	AttrChannelNumber:      "CHANNEL-NUMBER",
	AttrLifetime:           "LIFETIME",
	AttrXorPeerAddress:     "XOR-PEER-ADDRESS",
	AttrData:               "DATA",
	AttrRealm:              "REALM",
	AttrNonce:              "NONCE",
	AttrXorRelayedAddress:  "XOR-RELAYED-ADDRESS",
	AttrEvenPort:           "EVEN-PORT",
	AttrRequestedTransport: "REQUESTED-TRANSPORT",
	AttrXorMappedAddress:   "XOR-MAPPED-ADDRESS",
	AttrReservationToken:   "RESERVATION-TOKEN",
	AttrPriority:           "PRIORITY",
	AttrUseCandidate:       "USE-CANDIDATE",
	AttrSoftware:           "SOFTWARE",
	AttrFingerprint:        "FINGERPRINT",
	AttrIceControlled:      "ICE-CONTROLLED",
	AttrIceControlling:     "ICE-CONTROLLING",
	AttrOtherAddress:       "OTHER-ADDRESS",
}

func (t AttrType) String() string {
	if n, ok := attrNames[t]; ok {
		return n
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// RawAttribute is a decoded TLV: the value slice aliases the message's Raw
// buffer (for a decoded Message) or a caller-owned slice (while building).
type RawAttribute struct {
	Type  AttrType
	Value []byte
}

// Attributes is an ordered list of RawAttribute, as found on the wire.
type Attributes []RawAttribute

// Get returns the first attribute of type t.
func (a Attributes) Get(t AttrType) (RawAttribute, bool) {
	for _, attr := range a {
		if attr.Type == t {
			return attr, true
		}
	}
	return RawAttribute{}, false
}

// exactLength holds the attribute grammars that carry a fixed-size value.
var exactLength = map[AttrType]int{
	AttrChangeRequest:    4,
	AttrChannelNumber:    4,
	AttrLifetime:         4,
	AttrRequestedTransport: 4,
	AttrReservationToken: 8,
	AttrPriority:         4,
	AttrUseCandidate:     0,
	AttrMessageIntegrity: 20,
	AttrFingerprint:      4,
	AttrIceControlled:    8,
	AttrIceControlling:   8,
	AttrEvenPort:         1,
}
