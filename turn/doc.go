// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

// Package turn implements a TURN (RFC 5766) allocation client: a single
// long-lived session with a TURN server built on one datagram socket,
// with authenticated Allocate/Refresh retry and channel-bound data framing.
//
// Server-side state machines and full RFC 5766 permission support are
// out of scope; this package is a client only.
package turn
