//go:build windows

package mjpeg

import (
	"syscall"
)

// windows 上 SO_REUSEADDR 语义不同，不设置
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
