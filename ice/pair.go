// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import (
	"net"

	"github.com/rtcware/natcore/stun"
)

// CandidatePair couples one local socket with one remote candidate.
// ReadOk is set once a Binding request from the remote has been answered
// and either carried USE-CANDIDATE or this side is controlling; WriteOk
// is set once a Binding success response confirms this side's check
// reached the remote.
// It lives until the owning Component closes.
type CandidatePair struct {
	Remote    Candidate
	socketIdx int
	Priority  uint32

	Reflexive *net.UDPAddr

	lastTxID stun.TransactionID
	ReadOk   bool
	WriteOk  bool
}

func (p *CandidatePair) connected() bool {
	return p.ReadOk && p.WriteOk
}

func newPair(remote Candidate, socketIdx int) *CandidatePair {
	return &CandidatePair{
		Remote:    remote,
		socketIdx: socketIdx,
		Priority:  remote.Priority,
	}
}
