// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

// Package ice implements a simplified ICE (RFC 5245) agent: candidate
// gathering over caller-supplied sockets, candidate pairing, periodic
// connectivity checks, and nomination of a working pair per component.
//
// It does not implement TCP candidates, full RFC 5245 priority/local
// preference, or DTLS/SRTP.
package ice
