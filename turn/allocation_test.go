// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package turn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtcware/natcore/stun"
)

// scriptedServer plays the two-step 401-challenge Allocate flow described
// by the "authenticated retry" testable property: reject the first
// Allocate with realm "r"/nonce "n1", then accept the retried request
// with a fixed relayed address and lifetime, and answer Refresh in kind.
type scriptedServer struct {
	t          *testing.T
	conn       net.PacketConn
	allocCount int
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	s := &scriptedServer{t: t, conn: conn}
	go s.run()
	return s
}

func (s *scriptedServer) addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *scriptedServer) close() {
	_ = s.conn.Close()
}

func (s *scriptedServer) run() {
	buf := make([]byte, 1600)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		msg, err := stun.Decode(buf[:n], nil)
		if err != nil {
			continue
		}

		switch msg.Type.Method {
		case stun.MethodAllocate:
			s.allocCount++
			if s.allocCount == 1 {
				s.reject(msg, from)
				continue
			}
			s.acceptAllocate(msg, from)
		case stun.MethodRefresh:
			s.acceptRefresh(msg, from)
		case stun.MethodChannelBind:
			s.acceptChannelBind(msg, from)
		}
	}
}

func (s *scriptedServer) reject(req *stun.Message, from net.Addr) {
	resp, err := stun.Build(stun.ClassErrorResponse, req.Type.Method,
		stun.ErrorCode{Code: stun.CodeUnauthorized, Reason: "unauthorized"},
		stun.Realm("r"),
		stun.Nonce("n1"),
	)
	require.NoError(s.t, err)
	resp.TransactionID = req.TransactionID
	resp.WriteHeader()
	_, err = s.conn.WriteTo(resp.Encode(), from)
	require.NoError(s.t, err)
}

func (s *scriptedServer) acceptAllocate(req *stun.Message, from net.Addr) {
	relayed := &net.UDPAddr{IP: net.ParseIP("198.51.100.7"), Port: 49200}
	resp, err := stun.Build(stun.ClassSuccessResponse, stun.MethodAllocate,
		stun.Lifetime(600),
		stun.XorRelayedAddress{Address: stun.Address{IP: relayed.IP, Port: relayed.Port}},
	)
	require.NoError(s.t, err)
	resp.TransactionID = req.TransactionID
	resp.WriteHeader()
	_, err = s.conn.WriteTo(resp.Encode(), from)
	require.NoError(s.t, err)
}

func (s *scriptedServer) acceptRefresh(req *stun.Message, from net.Addr) {
	lifetime, _ := stun.GetLifetime(req)
	resp, err := stun.Build(stun.ClassSuccessResponse, stun.MethodRefresh,
		stun.Lifetime(uint32(lifetime)),
	)
	require.NoError(s.t, err)
	resp.TransactionID = req.TransactionID
	resp.WriteHeader()
	_, err = s.conn.WriteTo(resp.Encode(), from)
	require.NoError(s.t, err)
}

func (s *scriptedServer) acceptChannelBind(req *stun.Message, from net.Addr) {
	resp, err := stun.Build(stun.ClassSuccessResponse, stun.MethodChannelBind)
	require.NoError(s.t, err)
	resp.TransactionID = req.TransactionID
	resp.WriteHeader()
	_, err = s.conn.WriteTo(resp.Encode(), from)
	require.NoError(s.t, err)
}

func TestAllocationAuthenticatedRetry(t *testing.T) {
	server := newScriptedServer(t)
	defer server.close()

	connected := make(chan struct{}, 1)
	alloc, err := NewAllocation(Config{
		ServerAddr: server.addr(),
		Username:   "user",
		Password:   "pass",
		OnConnected: func() {
			connected <- struct{}{}
		},
	})
	require.NoError(t, err)
	defer alloc.Close()

	alloc.Connect()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("allocation did not connect in time")
	}

	assert.Equal(t, StateConnected, alloc.State())
	assert.Equal(t, 2, server.allocCount, "expected exactly one rejected and one successful Allocate")

	relayed := alloc.RelayedAddress()
	require.NotNil(t, relayed)
	assert.Equal(t, "198.51.100.7", relayed.IP.String())
	assert.Equal(t, 49200, relayed.Port)

	wantKey := stun.LongTermKey("user", "r", "pass")
	syncKey := make(chan stun.MessageIntegrity, 1)
	alloc.syncDo(func() { syncKey <- alloc.key })
	assert.Equal(t, wantKey, <-syncKey)
}

func TestAllocationDisconnect(t *testing.T) {
	server := newScriptedServer(t)
	defer server.close()

	connected := make(chan struct{}, 1)
	disconnected := make(chan error, 1)
	alloc, err := NewAllocation(Config{
		ServerAddr:     server.addr(),
		Username:       "user",
		Password:       "pass",
		OnConnected:    func() { connected <- struct{}{} },
		OnDisconnected: func(err error) { disconnected <- err },
	})
	require.NoError(t, err)
	defer alloc.Close()

	alloc.Connect()
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("allocation did not connect in time")
	}

	alloc.Disconnect()
	select {
	case err := <-disconnected:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("allocation did not disconnect in time")
	}
	assert.Equal(t, StateUnconnected, alloc.State())
}

func TestAllocationChannelData(t *testing.T) {
	server := newScriptedServer(t)
	defer server.close()

	peerConn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = peerConn.Close() }()

	connected := make(chan struct{}, 1)
	alloc, err := NewAllocation(Config{
		ServerAddr:  server.addr(),
		Username:    "user",
		Password:    "pass",
		OnConnected: func() { connected <- struct{}{} },
	})
	require.NoError(t, err)
	defer alloc.Close()

	alloc.Connect()
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("allocation did not connect in time")
	}

	peerAddr := peerConn.LocalAddr().(*net.UDPAddr)
	require.NoError(t, alloc.Send([]byte("ping"), peerAddr))
}
