// Package reassembler splits raw kernel log reads into newline-bounded
// records, carrying an unterminated tail from one read into the next.
package reassembler

import "time"

// Header is the per-read metadata the device supplies alongside the bytes.
// Every record cut from the same read carries a copy of it.
type Header struct {
	Facility  int
	Severity  int
	Seq       uint64
	Timestamp time.Time
	Flags     string
}

// Priority returns the syslog priority value (facility*8 + severity).
func (h Header) Priority() int {
	return h.Facility<<3 | h.Severity&7
}

// Chunk is the result of one read against the device.
type Chunk struct {
	Header Header
	Data   []byte
	// More is set when the device holds further bytes of the same message.
	// A chunk with More unset ends the message, so a trailing partial line
	// is emitted rather than carried.
	More bool
}

// Record is one complete line of kernel log text.
type Record struct {
	Header    Header
	Text      string
	Truncated bool
}
