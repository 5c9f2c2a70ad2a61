// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackSocket(t *testing.T) *socket {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().(*net.UDPAddr)
	return &socket{conn: conn, localIP: addr.IP, port: addr.Port}
}

func hostCandidate(s *socket) Candidate {
	return newCandidate("host", 1, Host, s.localIP, s.port, s.localIP)
}

func TestTwoAgentNomination(t *testing.T) {
	sockA := newLoopbackSocket(t)
	sockB := newLoopbackSocket(t)

	connectedA := make(chan struct{}, 1)
	connectedB := make(chan struct{}, 1)

	compA := NewComponent(ComponentConfig{
		ID:          1,
		Sockets:     []*socket{sockA},
		Ufrag:       "uf",
		Password:    "pw",
		Controlling: true,
		TieBreaker:  111,
		OnConnected: func() { connectedA <- struct{}{} },
	})
	defer compA.Close()

	compB := NewComponent(ComponentConfig{
		ID:          1,
		Sockets:     []*socket{sockB},
		Ufrag:       "uf",
		Password:    "pw",
		Controlling: false,
		TieBreaker:  222,
		OnConnected: func() { connectedB <- struct{}{} },
	})
	defer compB.Close()

	compA.SetRemoteUser("uf")
	compA.SetRemotePassword("pw")
	compB.SetRemoteUser("uf")
	compB.SetRemotePassword("pw")

	compA.AddRemoteCandidate(hostCandidate(sockB))
	compB.AddRemoteCandidate(hostCandidate(sockA))

	compA.Start()
	compB.Start()

	waitConnected(t, connectedA, "A")
	waitConnected(t, connectedB, "B")

	assert.True(t, compA.Connected())
	assert.True(t, compB.Connected())
}

func waitConnected(t *testing.T, ch <-chan struct{}, who string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not reach connected within 2s", who)
	}
}

func TestPairingRejectsCrossFamilyAndDuplicates(t *testing.T) {
	sock := newLoopbackSocket(t)
	comp := NewComponent(ComponentConfig{
		ID:      1,
		Sockets: []*socket{sock},
		Ufrag:   "uf",
	})
	defer comp.Close()

	v6remote := newCandidate("r6", 1, Host, net.ParseIP("2001:db8::1"), 5000, net.ParseIP("2001:db8::1"))
	comp.AddRemoteCandidate(v6remote)

	v4remote := newCandidate("r4", 1, Host, net.ParseIP("192.0.2.1"), 5000, net.ParseIP("192.0.2.1"))
	comp.AddRemoteCandidate(v4remote)
	comp.AddRemoteCandidate(v4remote)

	pairs := make(chan int, 1)
	comp.post(func() { pairs <- len(comp.pairs) })
	select {
	case n := <-pairs:
		assert.Equal(t, 1, n, "cross-family remote must be rejected and the duplicate must be deduped")
	case <-time.After(time.Second):
		t.Fatal("timed out reading pair count")
	}
}
