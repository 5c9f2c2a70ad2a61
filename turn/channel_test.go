// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package turn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNumberingInvariants(t *testing.T) {
	c := newChannels()
	peer1 := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9}
	peer2 := &net.UDPAddr{IP: net.ParseIP("203.0.113.2"), Port: 9}

	ch1 := &channel{number: c.next, peer: peer1}
	c.byPeer[peerKey(peer1)] = ch1
	c.byNumber[ch1.number] = ch1
	c.next++

	ch2 := &channel{number: c.next, peer: peer2}
	c.byPeer[peerKey(peer2)] = ch2
	c.byNumber[ch2.number] = ch2
	c.next++

	require.NotEqual(t, ch1.number, ch2.number)
	assert.GreaterOrEqual(t, ch1.number, uint16(firstChannelNumber))
	assert.LessOrEqual(t, ch2.number, uint16(lastChannelNumber))
	assert.Greater(t, ch2.number, ch1.number, "channel numbers increase monotonically")
}

func TestChannelDataFraming(t *testing.T) {
	payload := []byte("hello")
	buf := make([]byte, channelDataHeaderSize+len(payload))
	bin.PutUint16(buf[0:2], 0x4001)
	bin.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[channelDataHeaderSize:], payload)

	assert.Equal(t, byte(0x40), buf[0]&0xC0, "first two bits must classify the datagram as channel data")
	assert.Equal(t, uint16(0x4001), bin.Uint16(buf[0:2]))
	assert.Equal(t, payload, buf[channelDataHeaderSize:])
}
