//go:build !linux

package ipc

import "net"

// VerifyPeerIsCurrentUser accepts every peer. The socket's 0600 mode is the
// only guard on platforms without SO_PEERCRED.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}
