// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"fmt"
	"hash/crc32"
	"net"
)

// Kind is a Candidate's origin.
type Kind byte

// Candidate kinds.
const (
	Host Kind = iota
	ServerReflexive
	PeerReflexive
	Relayed
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relayed:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference is the type_pref term of the priority formula. Every
// Host candidate uses the same local preference (65535), which ties
// between multiple interfaces rather than disambiguating them.
func (k Kind) typePreference() uint32 {
	switch k {
	case Host:
		return 126
	case PeerReflexive:
		return 110
	case ServerReflexive:
		return 100
	default:
		return 0
	}
}

const localPreference = 65535

// Candidate is one transport address eligible for media.
type Candidate struct {
	ID        string
	Component int // 1-based
	Kind      Kind
	IP        net.IP
	Port      int
	Zone      string // IPv6 scope id, set for link-local remotes paired against a scoped local socket
	Protocol  string // always "udp"
	Priority  uint32
	Base      net.IP // the local socket's address this candidate was gathered from, for Foundation
}

// priority computes priority = (type_pref<<24) + (local_pref<<8) +
// (256 - component_id).
func priority(kind Kind, component int) uint32 {
	return (kind.typePreference() << 24) + (localPreference << 8) + uint32(256-component)
}

// foundation groups candidates originating from the same local address,
// kind, and protocol, following the same CRC32-over-string technique as
// pion/ice's candidateBase.Foundation, collapsed to a short hex string.
func foundation(kind Kind, base net.IP, protocol string) string {
	sum := crc32.ChecksumIEEE([]byte(kind.String() + base.String() + protocol))
	return fmt.Sprintf("%08x", sum)
}

// newCandidate builds a Candidate with priority and foundation derived
// per the rules above.
func newCandidate(id string, component int, kind Kind, ip net.IP, port int, base net.IP) Candidate {
	return Candidate{
		ID:        id,
		Component: component,
		Kind:      kind,
		IP:        ip,
		Port:      port,
		Protocol:  "udp",
		Priority:  priority(kind, component),
		Base:      base,
	}
}

// Foundation returns the candidate's foundation string.
func (c Candidate) Foundation() string {
	return foundation(c.Kind, c.Base, c.Protocol)
}

func (c Candidate) addr() *net.UDPAddr {
	return &net.UDPAddr{IP: c.IP, Port: c.Port, Zone: c.Zone}
}

// isLinkLocalV6 reports whether ip falls in fe80::/10.
func isLinkLocalV6(ip net.IP) bool {
	return ip.To4() == nil && ip.IsLinkLocalUnicast()
}

// sameFamily reports whether a and b are both IPv4 or both IPv6.
func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}
