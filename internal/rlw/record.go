// Package rlw defines the wire format shared between the Resource-Limited
// Wrapper binary (cmd/rlw) and the Sandbox Launcher that reads its
// accounting record off a pipe.
package rlw

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RecordSize is the fixed layout size of an accounting Record on the wire:
// exit_status:i32 | pad:4 | user_us:u64 | sys_us:u64 | maxrss_kib:u64,
// the u64 fields aligned to 8 bytes as in the equivalent C struct.
const RecordSize = 4 + 4 + 8 + 8 + 8

// Record is the out-of-band accounting payload RLW writes to its sync pipe
// after wait4() returns, before it re-exits with the child's status.
type Record struct {
	ExitStatus int32
	UserUs     uint64
	SysUs      uint64
	MaxRSSKiB  uint64
}

// Encode serializes r into the fixed 32-byte host-byte-order layout.
func (r Record) Encode() []byte {
	buf := make([]byte, RecordSize)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(r.ExitStatus))
	binary.NativeEndian.PutUint64(buf[8:16], r.UserUs)
	binary.NativeEndian.PutUint64(buf[16:24], r.SysUs)
	binary.NativeEndian.PutUint64(buf[24:32], r.MaxRSSKiB)
	return buf
}

// Decode reads exactly RecordSize bytes from r and parses them. A short
// read is reported as an error; the caller (Sandbox Launcher) maps that to
// an UKE verdict.
func Decode(r io.Reader) (Record, error) {
	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, fmt.Errorf("short accounting read: %w", err)
	}
	return Record{
		ExitStatus: int32(binary.NativeEndian.Uint32(buf[0:4])),
		UserUs:     binary.NativeEndian.Uint64(buf[8:16]),
		SysUs:      binary.NativeEndian.Uint64(buf[16:24]),
		MaxRSSKiB:  binary.NativeEndian.Uint64(buf[24:32]),
	}, nil
}
