// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package turn

import (
	"encoding/binary"
	"net"

	"github.com/rtcware/natcore/stun"
)

var bin = binary.BigEndian

// channelDataHeaderSize is the 4-byte ChannelData framing header: a
// 16-bit channel number followed by a 16-bit length.
const channelDataHeaderSize = 4

// firstChannelNumber is the lowest channel number in the range reserved
// for client-assigned bindings, per RFC 5766 Section 11.
const firstChannelNumber = 0x4000
const lastChannelNumber = 0x7FFF

// channel tracks one client-assigned channel binding.
type channel struct {
	number uint16
	peer   *net.UDPAddr
	bound  bool // true once the ChannelBind success response has arrived
}

// channels is the per-Allocation channel table, embedded in Allocation.
// Accessed only from the events loop goroutine, so it needs no locking
// of its own.
type channels struct {
	byPeer       map[string]*channel
	byNumber     map[uint16]*channel
	pendingBinds map[stun.TransactionID]*channel
	next         uint16
}

func newChannels() channels {
	return channels{
		byPeer:       make(map[string]*channel),
		byNumber:     make(map[uint16]*channel),
		pendingBinds: make(map[stun.TransactionID]*channel),
		next:         firstChannelNumber,
	}
}

func peerKey(peer *net.UDPAddr) string {
	return peer.String()
}

// channelFor returns the channel bound to peer, allocating and requesting
// a new binding if none exists yet.
func (a *Allocation) channelFor(peer *net.UDPAddr) *channel {
	key := peerKey(peer)
	if ch, ok := a.byPeer[key]; ok {
		return ch
	}

	ch := &channel{number: a.next, peer: peer}
	a.next++
	if a.next > lastChannelNumber {
		a.next = firstChannelNumber
	}
	a.byPeer[key] = ch
	a.byNumber[ch.number] = ch

	txID := a.sendRequest(requestSpec{
		method: stun.MethodChannelBind,
		attrs: []stun.Setter{
			stun.ChannelNumber(ch.number),
			stun.XorPeerAddress{Address: stun.Address{IP: peer.IP, Port: peer.Port}},
		},
	})
	a.pendingBinds[txID] = ch
	return ch
}

// sendChannelData frames payload under peer's channel and writes it to
// the server. A write on a not-yet-confirmed channel is sent anyway; the
// server is expected to buffer or drop it until the binding completes.
func (a *Allocation) sendChannelData(payload []byte, peer *net.UDPAddr) error {
	if a.State() != StateConnected {
		return errNotConnected
	}
	ch := a.channelFor(peer)

	buf := make([]byte, channelDataHeaderSize+len(payload))
	bin.PutUint16(buf[0:2], ch.number)
	bin.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[channelDataHeaderSize:], payload)

	_, err := a.conn.WriteTo(buf, a.cfg.ServerAddr)
	return err
}

// handleChannelData demultiplexes an inbound ChannelData frame to the
// bound peer and invokes OnData.
func (a *Allocation) handleChannelData(data []byte) {
	if len(data) < channelDataHeaderSize {
		return
	}
	number := bin.Uint16(data[0:2])
	length := int(bin.Uint16(data[2:4]))
	if channelDataHeaderSize+length > len(data) {
		a.log.Debugf("turn: channel data length %d exceeds datagram", length)
		return
	}

	ch, ok := a.byNumber[number]
	if !ok {
		a.log.Debugf("turn: data on unknown channel 0x%04x", number)
		return
	}

	if a.cfg.OnData != nil {
		payload := append([]byte{}, data[channelDataHeaderSize:channelDataHeaderSize+length]...)
		a.cfg.OnData(payload, ch.peer)
	}
}
