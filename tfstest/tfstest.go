// Package tfstest provides a shared in-memory diskfile for unit tests
// across every TFS package, so no test ever touches the real filesystem.
package tfstest

import (
	"github.com/xaionaro-go/bytesextra"

	"github.com/tinyfs/tfs/blockdev"
)

// NewMemDevice returns a blockdev.Device backed by a fixed-size in-memory
// buffer, the same bytesextra-backed pattern dargueta-disko's own test
// fixtures use.
func NewMemDevice(sizeBytes int) *blockdev.Device {
	buf := make([]byte, sizeBytes)
	rws := bytesextra.NewReadWriteSeeker(buf)
	return blockdev.NewFromReadWriteSeeker(rws)
}
