// Package device owns the kernel log device handle: opening and arming it,
// polling it for readiness, and pulling raw chunks out of it.
package device

import (
	"errors"
	"time"
)

// Infinite makes WaitReady block until the device is readable or failed.
const Infinite time.Duration = -1

// Readiness is the outcome of a readiness wait.
type Readiness int

const (
	Timeout Readiness = iota
	Readable
	ErrorCondition
)

func (r Readiness) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case Readable:
		return "readable"
	case ErrorCondition:
		return "error"
	default:
		return "unknown"
	}
}

// Framing selects how raw reads are turned into chunks.
type Framing string

const (
	// FramingKmsg reads /dev/kmsg: one structured record per read.
	FramingKmsg Framing = "kmsg"
	// FramingStream reads an unframed byte stream such as /proc/kmsg or a FIFO.
	FramingStream Framing = "stream"
)

// Valid reports whether f names a supported framing.
func (f Framing) Valid() bool {
	return f == FramingKmsg || f == FramingStream
}

var (
	// ErrOpenFailed means the device could not be opened or armed.
	ErrOpenFailed = errors.New("kernel log device open failed")
	// ErrPollFailed means the readiness primitive itself failed.
	ErrPollFailed = errors.New("kernel log device poll failed")
	// ErrInterrupted means a read was cut short by a signal; retry it.
	ErrInterrupted = errors.New("kernel log read interrupted")
	// ErrNoData means a non-blocking read found nothing to return.
	ErrNoData = errors.New("kernel log device has no data")
	// ErrOverrun means the kernel ring buffer overwrote records before we
	// read them. Reading can continue.
	ErrOverrun = errors.New("kernel log records overwritten")
	// ErrReadFailed means the handle is no longer usable.
	ErrReadFailed = errors.New("kernel log device read failed")
)

// Kernel facility and the severity assumed when the device gives none.
const (
	FacilityKern    = 0
	SeverityDefault = 6
)
