// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package ice

import "github.com/pkg/errors"

var (
	errNoPair = errors.New("ice: no active or fallback pair to send on")
	errClosed = errors.New("ice: component is closed")
)
