package fs

import "sync/atomic"

// anonMajor is the major number shared by every in-memory and host backed
// device.
const anonMajor = 0

var nextMinor uint32

type Device struct {
	Major, Minor uint32

	ino uint64
}

// NewAnonDevice returns a device with a fresh minor number.
func NewAnonDevice() *Device {
	return &Device{
		Major: anonMajor,
		Minor: atomic.AddUint32(&nextMinor, 1),
	}
}

func (d *Device) DeviceID() uint64 {
	return uint64(d.Major)<<20 | uint64(d.Minor)
}

// NextIno returns the next unused inode number on d.
func (d *Device) NextIno() uint64 {
	return atomic.AddUint64(&d.ino, 1)
}
