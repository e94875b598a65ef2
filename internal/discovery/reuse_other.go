// SPDX-License-Identifier: MIT

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
