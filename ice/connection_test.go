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

func TestConnectionNominatesBothSides(t *testing.T) {
	connectedA := make(chan struct{}, 1)
	connectedB := make(chan struct{}, 1)

	connA, err := NewConnection(ConnectionConfig{
		Controlling: true,
		OnConnected: func() { connectedA <- struct{}{} },
	})
	require.NoError(t, err)
	defer connA.Close()

	connB, err := NewConnection(ConnectionConfig{
		Controlling: false,
		OnConnected: func() { connectedB <- struct{}{} },
	})
	require.NoError(t, err)
	defer connB.Close()

	loopback := []net.IP{net.ParseIP("127.0.0.1")}
	require.NoError(t, connA.Bind(loopback, 1))
	require.NoError(t, connB.Bind(loopback, 1))

	connA.SetRemoteUser(connB.LocalUfrag)
	connA.SetRemotePassword(connB.LocalPassword)
	connB.SetRemoteUser(connA.LocalUfrag)
	connB.SetRemotePassword(connA.LocalPassword)

	for _, cand := range connA.Components()[0].LocalCandidates() {
		connB.Components()[0].AddRemoteCandidate(cand)
	}
	for _, cand := range connB.Components()[0].LocalCandidates() {
		connA.Components()[0].AddRemoteCandidate(cand)
	}

	connA.ConnectToHost()
	connB.ConnectToHost()

	waitConnected(t, connectedA, "connection A")
	waitConnected(t, connectedB, "connection B")

	// The component that nominated must remain serviceable: its event
	// loop must not have wedged inside its own OnConnected callback.
	assert.True(t, connA.Components()[0].Connected())
	assert.True(t, connB.Components()[0].Connected())
}

func TestConnectionTimesOutWithoutRemoteCandidates(t *testing.T) {
	disconnected := make(chan struct{}, 1)
	conn, err := NewConnection(ConnectionConfig{
		OnDisconnected: func() { disconnected <- struct{}{} },
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Bind([]net.IP{net.ParseIP("127.0.0.1")}, 1))

	// Use a short-circuited timeout by invoking onTimeout directly
	// instead of waiting out the real 30-second connect window.
	conn.ConnectToHost()
	conn.mu.Lock()
	conn.connectTimer.Stop()
	conn.mu.Unlock()
	conn.onTimeout()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("onTimeout did not fire OnDisconnected")
	}
}
