// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
	"github.com/pkg/errors"
)

const (
	ufragLength    = 4
	passwordLength = 22
	ufragChars     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	connectTimeout = 30 * time.Second
)

// ConnectionConfig configures a Connection.
type ConnectionConfig struct {
	Net           transport.Net
	LoggerFactory logging.LoggerFactory

	Controlling bool

	OnConnected    func()
	OnDisconnected func()
}

// Connection is a thin coordinator grouping several Components with
// shared credentials and an overall connect timeout.
type Connection struct {
	cfg ConnectionConfig
	log logging.LeveledLogger

	LocalUfrag    string
	LocalPassword string

	tieBreaker uint64

	mu           sync.Mutex
	components   []*Component
	connectedIDs map[int]bool

	connectTimer *time.Timer
	closed       bool
	done         bool
}

// NewConnection generates a fresh local ufrag/password pair.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.Net == nil {
		n, err := stdnet.NewNet()
		if err != nil {
			return nil, errors.Wrap(err, "ice: failed to create network")
		}
		cfg.Net = n
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	ufrag, err := randutil.GenerateCryptoRandomString(ufragLength, ufragChars)
	if err != nil {
		return nil, errors.Wrap(err, "ice: failed to generate local ufrag")
	}
	password, err := randutil.GenerateCryptoRandomString(passwordLength, ufragChars)
	if err != nil {
		return nil, errors.Wrap(err, "ice: failed to generate local password")
	}
	tieBreaker, err := randutil.CryptoUint64()
	if err != nil {
		return nil, errors.Wrap(err, "ice: failed to generate tie breaker")
	}

	return &Connection{
		cfg:           cfg,
		log:           cfg.LoggerFactory.NewLogger("ice"),
		LocalUfrag:    ufrag,
		LocalPassword: password,
		tieBreaker:    tieBreaker,
	}, nil
}

// Bind reserves componentCount*len(addresses) ports via reservePorts and
// constructs one Component per componentCount, distributing the sockets
// for each address evenly across components.
func (conn *Connection) Bind(addresses []net.IP, componentCount int) error {
	blocks, err := reservePorts(conn.cfg.Net, addresses, componentCount)
	if err != nil {
		return err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	for i := 0; i < componentCount; i++ {
		var sockets []*socket
		for _, block := range blocks {
			sockets = append(sockets, block[i])
		}
		id := i + 1
		comp := NewComponent(ComponentConfig{
			ID:            id,
			Sockets:       sockets,
			Ufrag:         conn.LocalUfrag,
			Password:      conn.LocalPassword,
			Controlling:   conn.cfg.Controlling,
			TieBreaker:    conn.tieBreaker,
			LoggerFactory: conn.cfg.LoggerFactory,
			OnConnected:   func() { conn.componentConnected(id) },
		})
		conn.components = append(conn.components, comp)
	}
	return nil
}

// Components returns the Connection's components, in order.
func (conn *Connection) Components() []*Component {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]*Component{}, conn.components...)
}

// SetRemoteUser propagates the remote ufrag to every component.
func (conn *Connection) SetRemoteUser(ufrag string) {
	for _, c := range conn.Components() {
		c.SetRemoteUser(ufrag)
	}
}

// SetRemotePassword propagates the remote password to every component.
func (conn *Connection) SetRemotePassword(password string) {
	for _, c := range conn.Components() {
		c.SetRemotePassword(password)
	}
}

// SetStunServer propagates the STUN server address to every component.
func (conn *Connection) SetStunServer(addr *net.UDPAddr) {
	for _, c := range conn.Components() {
		c.SetStunServer(addr)
	}
}

// ConnectToHost starts every component and arms the 30-second connect
// timeout.
func (conn *Connection) ConnectToHost() {
	conn.mu.Lock()
	conn.connectTimer = time.AfterFunc(connectTimeout, conn.onTimeout)
	components := append([]*Component{}, conn.components...)
	conn.mu.Unlock()

	for _, c := range components {
		c.Start()
	}
}

// componentConnected is invoked synchronously, in-line, on the nominating
// component's own event-loop goroutine (it is that component's
// OnConnected callback). It must not call back into any component,
// including itself, since that goroutine is presently busy running this
// call chain and could never service the request. id identifies the
// calling component in-band instead, so no re-query is needed.
func (conn *Connection) componentConnected(id int) {
	conn.mu.Lock()
	if conn.connectedIDs == nil {
		conn.connectedIDs = make(map[int]bool)
	}
	conn.connectedIDs[id] = true
	allConnected := len(conn.connectedIDs) == len(conn.components)
	already := conn.done
	if allConnected && !already {
		conn.done = true
		if conn.connectTimer != nil {
			conn.connectTimer.Stop()
		}
	}
	conn.mu.Unlock()

	if allConnected && !already && conn.cfg.OnConnected != nil {
		conn.cfg.OnConnected()
	}
}

func (conn *Connection) onTimeout() {
	conn.mu.Lock()
	if conn.done || conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.done = true
	components := append([]*Component{}, conn.components...)
	conn.mu.Unlock()

	for _, c := range components {
		_ = c.Close()
	}
	if conn.cfg.OnDisconnected != nil {
		conn.cfg.OnDisconnected()
	}
}

// Close stops the connect timer and closes every component.
func (conn *Connection) Close() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	conn.closed = true
	if conn.connectTimer != nil {
		conn.connectTimer.Stop()
	}
	components := append([]*Component{}, conn.components...)
	conn.mu.Unlock()

	var firstErr error
	for _, c := range components {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
