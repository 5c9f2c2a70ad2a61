// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFormula(t *testing.T) {
	host := priority(Host, 1)
	srflx := priority(ServerReflexive, 1)
	prflx := priority(PeerReflexive, 1)
	relay := priority(Relayed, 1)

	assert.Greater(t, host, prflx)
	assert.Greater(t, prflx, srflx)
	assert.Greater(t, srflx, relay)

	// Depends only on (kind, component): identical kind/component always
	// yields the same value, and a higher component id lowers it.
	assert.Equal(t, priority(Host, 1), priority(Host, 1))
	assert.Less(t, priority(Host, 2), priority(Host, 1))
}

func TestFoundationGroupsByKindAddressProtocol(t *testing.T) {
	a := newCandidate("a", 1, Host, net.ParseIP("10.0.0.5"), 4000, net.ParseIP("10.0.0.5"))
	b := newCandidate("b", 1, Host, net.ParseIP("10.0.0.5"), 4001, net.ParseIP("10.0.0.5"))
	c := newCandidate("c", 1, ServerReflexive, net.ParseIP("10.0.0.5"), 4002, net.ParseIP("10.0.0.5"))

	assert.Equal(t, a.Foundation(), b.Foundation(), "same base/kind/protocol must share a foundation regardless of port")
	assert.NotEqual(t, a.Foundation(), c.Foundation(), "different kind must not share a foundation")
}

func TestSameFamilyAndLinkLocal(t *testing.T) {
	v4a := net.ParseIP("192.168.1.1")
	v4b := net.ParseIP("10.0.0.1")
	v6 := net.ParseIP("2001:db8::1")
	ll := net.ParseIP("fe80::1")

	assert.True(t, sameFamily(v4a, v4b))
	assert.False(t, sameFamily(v4a, v6))
	assert.True(t, isLinkLocalV6(ll))
	assert.False(t, isLinkLocalV6(v6))
}
