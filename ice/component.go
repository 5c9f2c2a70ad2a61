// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/rtcware/natcore/stun"
)

const (
	checkInterval       = 500 * time.Millisecond
	discoveryInterval   = 500 * time.Millisecond
	maxDiscoveryRetries = 10
)

// ComponentConfig configures a Component.
type ComponentConfig struct {
	ID       int // 1-based
	Sockets  []*socket
	Ufrag    string
	Password string

	// Controlling selects the ICE-CONTROLLING vs ICE-CONTROLLED role for
	// outbound connectivity checks.
	Controlling bool
	TieBreaker  uint64

	LoggerFactory logging.LoggerFactory

	OnConnected              func()
	OnLocalCandidatesChanged func([]Candidate)
	OnData                   func(payload []byte, from *net.UDPAddr)
}

// Component is one ICE "stream component": it owns its sockets, local
// and remote candidates, candidate pairs, and check scheduler.
type Component struct {
	cfg ComponentConfig
	log logging.LeveledLogger

	events  chan func()
	closeCh chan struct{}
	done    chan struct{}

	// fields below are only touched on the events loop goroutine.
	localCandidates  []Candidate
	remoteCandidates []Candidate
	pairs            []*CandidatePair
	activePair       *CandidatePair
	fallbackPair     *CandidatePair

	remoteUfrag    string
	remotePassword string
	stunServer     *net.UDPAddr

	checkTicker *time.Ticker

	discoveryTicker *time.Ticker
	discoveryTries  []int
	discoveryDone   []bool
	discoveryIDs    map[stun.TransactionID]int

	checkIDs map[stun.TransactionID]*CandidatePair

	connected bool
}

// NewComponent builds a Component over already-bound sockets (see
// reservePorts) and starts its event and read loops. One Host candidate
// is gathered per socket immediately.
func NewComponent(cfg ComponentConfig) *Component {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	c := &Component{
		cfg:             cfg,
		log:             cfg.LoggerFactory.NewLogger("ice"),
		events:          make(chan func(), 32),
		closeCh:         make(chan struct{}),
		done:            make(chan struct{}),
		discoveryTries:  make([]int, len(cfg.Sockets)),
		discoveryDone:   make([]bool, len(cfg.Sockets)),
		discoveryIDs:    make(map[stun.TransactionID]int),
		checkIDs:        make(map[stun.TransactionID]*CandidatePair),
	}

	for i, s := range cfg.Sockets {
		cand := newCandidate(candidateID(cfg.ID, i, Host), cfg.ID, Host, s.localIP, s.port, s.localIP)
		c.localCandidates = append(c.localCandidates, cand)
		go c.readLoop(i, s)
	}

	go c.loop()
	return c
}

func candidateID(component, socketIdx int, kind Kind) string {
	return kind.String() + ":" + itoaSimple(component) + ":" + itoaSimple(socketIdx)
}

func itoaSimple(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Start begins server-reflexive discovery (if a STUN server is set) and
// the connectivity-check ticker.
func (c *Component) Start() {
	c.post(func() {
		if c.stunServer != nil {
			c.startDiscovery()
		}
		c.checkTicker = time.NewTicker(checkInterval)
		go c.tickLoop(c.checkTicker, c.runChecks)
	})
}

func (c *Component) tickLoop(t *time.Ticker, fn func()) {
	for {
		select {
		case <-t.C:
			c.post(fn)
		case <-c.closeCh:
			return
		}
	}
}

// SetRemoteUser sets the remote ICE username fragment.
func (c *Component) SetRemoteUser(ufrag string) {
	c.post(func() { c.remoteUfrag = ufrag })
}

// SetRemotePassword sets the remote short-term credential password.
func (c *Component) SetRemotePassword(password string) {
	c.post(func() { c.remotePassword = password })
}

// SetStunServer configures the server used for server-reflexive discovery.
func (c *Component) SetStunServer(addr *net.UDPAddr) {
	c.post(func() { c.stunServer = addr })
}

// AddRemoteCandidate pairs remote with every eligible local socket.
func (c *Component) AddRemoteCandidate(remote Candidate) {
	c.post(func() { c.addRemoteCandidate(remote) })
}

// LocalCandidates returns a snapshot of the gathered local candidates.
func (c *Component) LocalCandidates() []Candidate {
	out := make(chan []Candidate, 1)
	c.post(func() {
		cp := append([]Candidate{}, c.localCandidates...)
		out <- cp
	})
	select {
	case v := <-out:
		return v
	case <-c.closeCh:
		return nil
	}
}

// Connected reports whether an active pair has been nominated.
func (c *Component) Connected() bool {
	out := make(chan bool, 1)
	c.post(func() { out <- c.connected })
	select {
	case v := <-out:
		return v
	case <-c.closeCh:
		return false
	}
}

// Send writes payload to the address to over the socket of the active
// pair if one exists, else of the fallback pair, failing if neither is
// set. The destination is to as given; the pair's remote candidate
// address is not used.
func (c *Component) Send(payload []byte, to *net.UDPAddr) error {
	errCh := make(chan error, 1)
	c.post(func() {
		pair := c.activePair
		if pair == nil {
			pair = c.fallbackPair
		}
		if pair == nil {
			errCh <- errNoPair
			return
		}
		sock := c.cfg.Sockets[pair.socketIdx]
		_, err := sock.conn.WriteTo(payload, to)
		errCh <- err
	})
	select {
	case err := <-errCh:
		return err
	case <-c.closeCh:
		return errClosed
	}
}

// Close stops both timers and closes every socket.
func (c *Component) Close() error {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	var firstErr error
	for _, s := range c.cfg.Sockets {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	<-c.done
	return firstErr
}

func (c *Component) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.closeCh:
	}
}

func (c *Component) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.closeCh:
			if c.checkTicker != nil {
				c.checkTicker.Stop()
			}
			if c.discoveryTicker != nil {
				c.discoveryTicker.Stop()
			}
			return
		}
	}
}

func (c *Component) readLoop(socketIdx int, s *socket) {
	buf := make([]byte, 1600)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		addr, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		c.post(func() { c.handleDatagram(socketIdx, data, addr) })
	}
}

func (c *Component) startDiscovery() {
	c.discoveryTicker = time.NewTicker(discoveryInterval)
	go c.tickLoop(c.discoveryTicker, c.runDiscovery)
	c.runDiscovery()
}

func (c *Component) runDiscovery() {
	allDone := true
	for i, s := range c.cfg.Sockets {
		if c.discoveryDone[i] {
			continue
		}
		if c.discoveryTries[i] >= maxDiscoveryRetries {
			continue
		}
		allDone = false
		c.discoveryTries[i]++

		msg, err := stun.Build(stun.ClassRequest, stun.MethodBinding, stun.Fingerprint{})
		if err != nil {
			continue
		}
		c.discoveryIDs[msg.TransactionID] = i
		_, _ = s.conn.WriteTo(msg.Encode(), c.stunServer)
	}
	if allDone && c.discoveryTicker != nil {
		c.discoveryTicker.Stop()
	}
}

func (c *Component) addRemoteCandidate(remote Candidate) {
	for i, s := range c.cfg.Sockets {
		if !eligiblePairing(s, remote) {
			continue
		}
		if c.hasPair(i, remote) {
			continue
		}
		if isLinkLocalV6(remote.IP) {
			remote = withScope(remote, s.zone)
		}
		pair := newPair(remote, i)
		c.pairs = append(c.pairs, pair)
		if c.fallbackPair == nil {
			c.fallbackPair = pair
		}
	}
	c.remoteCandidates = append(c.remoteCandidates, remote)
}

func eligiblePairing(s *socket, remote Candidate) bool {
	if remote.Protocol != "udp" {
		return false
	}
	if remote.Kind != Host && remote.Kind != ServerReflexive {
		return false
	}
	if !sameFamily(s.localIP, remote.IP) {
		return false
	}
	if remote.IP.To4() == nil && isLinkLocalV6(remote.IP) != isLinkLocalV6(s.localIP) {
		return false
	}
	return true
}

// withScope stamps the pairing socket's IPv6 zone onto a link-local
// remote candidate so checks and application sends against it go out
// the correct scoped interface.
func withScope(remote Candidate, zone string) Candidate {
	remote.Zone = zone
	return remote
}

func (c *Component) hasPair(socketIdx int, remote Candidate) bool {
	for _, p := range c.pairs {
		if p.socketIdx == socketIdx && p.Remote.IP.Equal(remote.IP) && p.Remote.Port == remote.Port {
			return true
		}
	}
	return false
}

func (c *Component) runChecks() {
	if c.remoteUfrag == "" {
		return
	}
	for _, p := range c.pairs {
		c.sendCheck(p)
	}
}

func (c *Component) sendCheck(p *CandidatePair) {
	setters := []stun.Setter{
		stun.Priority(p.Priority),
		stun.Username(c.remoteUfrag + ":" + c.cfg.Ufrag),
	}
	if c.cfg.Controlling {
		setters = append(setters, stun.IceControlling(c.cfg.TieBreaker), stun.UseCandidate{})
	} else {
		setters = append(setters, stun.IceControlled(c.cfg.TieBreaker))
	}
	setters = append(setters, stun.MessageIntegrity(c.remotePassword), stun.Fingerprint{})

	msg, err := stun.Build(stun.ClassRequest, stun.MethodBinding, setters...)
	if err != nil {
		c.log.Warnf("ice: failed to build connectivity check: %v", err)
		return
	}
	p.lastTxID = msg.TransactionID
	c.checkIDs[msg.TransactionID] = p

	sock := c.cfg.Sockets[p.socketIdx]
	if _, err := sock.conn.WriteTo(msg.Encode(), p.Remote.addr()); err != nil {
		c.log.Warnf("ice: failed to send connectivity check: %v", err)
	}
}

func (c *Component) handleDatagram(socketIdx int, data []byte, from *net.UDPAddr) {
	typ, cookie, id, isStun := stun.PeekType(data)
	if !isStun || cookie != stun.MagicCookie {
		c.handleApplicationData(socketIdx, data, from)
		return
	}

	if socketIdx2, ok := c.discoveryIDs[id]; ok && typ.Class == stun.ClassSuccessResponse {
		delete(c.discoveryIDs, id)
		c.handleDiscoveryResponse(socketIdx2, data)
		return
	}

	var key stun.MessageIntegrity
	if typ.Class == stun.ClassRequest {
		key = stun.ShortTermKey(c.cfg.Password)
	} else {
		key = stun.MessageIntegrity(c.remotePassword)
	}

	msg, err := stun.Decode(data, key)
	if err != nil {
		c.log.Debugf("ice: dropping malformed STUN packet: %v", err)
		return
	}

	switch msg.Type.Class {
	case stun.ClassRequest:
		c.handleBindingRequest(socketIdx, msg, from)
	case stun.ClassSuccessResponse:
		c.handleBindingSuccess(msg)
	case stun.ClassErrorResponse:
		c.log.Debugf("ice: connectivity check for pair failed")
	}
}

func (c *Component) handleApplicationData(socketIdx int, data []byte, from *net.UDPAddr) {
	for _, p := range c.pairs {
		if p.socketIdx == socketIdx && p.Remote.IP.Equal(from.IP) && p.Remote.Port == from.Port {
			c.fallbackPair = p
			break
		}
	}
	if c.cfg.OnData != nil {
		c.cfg.OnData(data, from)
	}
}

func (c *Component) handleDiscoveryResponse(socketIdx int, data []byte) {
	msg, err := stun.Decode(data, nil)
	if err != nil {
		return
	}
	var addr stun.Address
	var xma stun.XorMappedAddress
	if err := xma.GetFrom(msg); err == nil {
		addr = xma.Address
	} else {
		var ma stun.MappedAddress
		if err := ma.GetFrom(msg); err != nil {
			return
		}
		addr = ma.Address
	}

	c.discoveryDone[socketIdx] = true
	for _, cand := range c.localCandidates {
		if cand.Kind == ServerReflexive && cand.IP.Equal(addr.IP) && cand.Port == addr.Port {
			return
		}
	}

	base := c.cfg.Sockets[socketIdx].localIP
	cand := newCandidate(candidateID(c.cfg.ID, socketIdx, ServerReflexive), c.cfg.ID, ServerReflexive, addr.IP, addr.Port, base)
	c.localCandidates = append(c.localCandidates, cand)
	if c.cfg.OnLocalCandidatesChanged != nil {
		c.cfg.OnLocalCandidatesChanged(append([]Candidate{}, c.localCandidates...))
	}
}

// handleBindingRequest answers an incoming Binding request, creating a
// peer-reflexive pair for the sender if none exists yet, and sets the
// pair's ReadOk bit if the request carries USE-CANDIDATE or this side is
// controlling; the pair is nominated once WriteOk is set as well.
func (c *Component) handleBindingRequest(socketIdx int, req *stun.Message, from *net.UDPAddr) {
	pair := c.findOrCreatePeerReflexivePair(socketIdx, from)

	username, _ := stun.GetUsername(req)
	// The echoed id must be in the header before MESSAGE-INTEGRITY and
	// FINGERPRINT are computed over it.
	resp := stun.New(stun.ClassSuccessResponse, stun.MethodBinding)
	resp.TransactionID = req.TransactionID
	resp.WriteHeader()
	var err error
	for _, s := range []stun.Setter{
		stun.Username(username),
		stun.XorMappedAddress{Address: stun.Address{IP: from.IP, Port: from.Port}},
		stun.MessageIntegrity(c.cfg.Password),
		stun.Fingerprint{},
	} {
		if err = s.AddTo(resp); err != nil {
			break
		}
	}
	if err == nil {
		sock := c.cfg.Sockets[socketIdx]
		if _, err := sock.conn.WriteTo(resp.Encode(), from); err != nil {
			c.log.Warnf("ice: failed to answer binding request: %v", err)
		}
	}

	if c.cfg.Controlling || stun.HasUseCandidate(req) {
		pair.ReadOk = true
		c.checkNomination(pair)
	}

	if !c.cfg.Controlling && !c.connected && c.remoteUfrag != "" {
		c.sendCheck(pair)
	}
}

func (c *Component) findOrCreatePeerReflexivePair(socketIdx int, from *net.UDPAddr) *CandidatePair {
	for _, p := range c.pairs {
		if p.socketIdx == socketIdx && p.Remote.IP.Equal(from.IP) && p.Remote.Port == from.Port {
			return p
		}
	}
	remote := newCandidate(candidateID(c.cfg.ID, socketIdx, PeerReflexive), c.cfg.ID, PeerReflexive, from.IP, from.Port, c.cfg.Sockets[socketIdx].localIP)
	remote.Zone = from.Zone
	pair := newPair(remote, socketIdx)
	c.pairs = append(c.pairs, pair)
	if c.fallbackPair == nil {
		c.fallbackPair = pair
	}
	return pair
}

// handleBindingSuccess records the peer-reflexive address a connectivity
// check surfaced and marks the pair writable, nominating it if it is
// also readable.
func (c *Component) handleBindingSuccess(resp *stun.Message) {
	pair, ok := c.checkIDs[resp.TransactionID]
	if !ok {
		c.log.Debugf("ice: success response for unknown transaction id")
		return
	}
	delete(c.checkIDs, resp.TransactionID)

	var xma stun.XorMappedAddress
	if err := xma.GetFrom(resp); err == nil {
		pair.Reflexive = &net.UDPAddr{IP: xma.IP, Port: xma.Port}
	}
	pair.WriteOk = true
	c.checkNomination(pair)
}

func (c *Component) checkNomination(pair *CandidatePair) {
	if c.activePair != nil || !pair.connected() {
		return
	}
	c.activePair = pair
	c.connected = true
	if c.checkTicker != nil {
		c.checkTicker.Stop()
	}
	if c.cfg.OnConnected != nil {
		c.cfg.OnConnected()
	}
}
