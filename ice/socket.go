// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"strconv"

	"github.com/pion/transport/v3"
	"github.com/pkg/errors"
)

// socket is one bound datagram endpoint owned by exactly one Component.
// zone carries the IPv6 scope id of the bound local address, if any, so
// it can be copied onto link-local remotes paired against this socket.
type socket struct {
	conn    net.PacketConn
	localIP net.IP
	port    int
	zone    string
}

func (s *socket) localAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: s.localIP, Port: s.port}
}

const (
	reservePortStart = 40000
	reservePortLimit = 65536
)

// reservePorts binds count sockets on every address in addresses such
// that, per address, the count ports are consecutive and the block
// starts on an even port. Sockets are returned grouped by address:
// result[0] holds addresses[0]'s count sockets in port order, etc.
func reservePorts(net_ transport.Net, addresses []net.IP, count int) ([][]*socket, error) {
	if count <= 0 || len(addresses) == 0 {
		return nil, errors.New("ice: reservePorts requires at least one address and count > 0")
	}

	port := reservePortStart
	if port%2 != 0 {
		port++
	}

	for port+count <= reservePortLimit {
		blocks, ok := tryReserveBlock(net_, addresses, port, count)
		if ok {
			return blocks, nil
		}
		port += 2
	}
	return nil, errors.Errorf("ice: no port block of size %d available below %d", count, reservePortLimit)
}

// tryReserveBlock attempts to bind [port, port+count) on every address,
// all-or-nothing; on any failure it releases everything it opened.
func tryReserveBlock(net_ transport.Net, addresses []net.IP, port, count int) ([][]*socket, bool) {
	blocks := make([][]*socket, len(addresses))
	opened := make([]*socket, 0, len(addresses)*count)

	release := func() {
		for _, s := range opened {
			_ = s.conn.Close()
		}
	}

	for ai, addr := range addresses {
		blocks[ai] = make([]*socket, 0, count)
		for i := 0; i < count; i++ {
			p := port + i
			conn, err := net_.ListenPacket("udp", net.JoinHostPort(addr.String(), strconv.Itoa(p)))
			if err != nil {
				release()
				return nil, false
			}
			var zone string
			if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				zone = ua.Zone
			}
			s := &socket{conn: conn, localIP: addr, port: p, zone: zone}
			opened = append(opened, s)
			blocks[ai] = append(blocks[ai], s)
		}
	}
	return blocks, true
}
