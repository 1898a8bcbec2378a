package reassembler

import (
	"bytes"
	"strings"
)

// DefaultCapacity matches the largest record /dev/kmsg hands out in one read.
const DefaultCapacity = 8192

// Reassembler owns a single fixed-size working buffer. New reads land
// directly after the pending tail so no auxiliary storage is ever needed.
type Reassembler struct {
	buf  []byte
	tail int

	// discarding is set after a truncated record was emitted; input is
	// dropped up to the next newline or end of message.
	discarding bool
}

// New creates a Reassembler whose buffer, and so the longest record it can
// emit untruncated, is capacity bytes.
func New(capacity int) *Reassembler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reassembler{buf: make([]byte, capacity)}
}

// Cap returns the working buffer capacity.
func (r *Reassembler) Cap() int { return len(r.buf) }

// Pending returns the number of unterminated bytes carried forward.
func (r *Reassembler) Pending() int { return r.tail }

// Reset drops the pending tail and any resync state.
func (r *Reassembler) Reset() {
	r.tail = 0
	r.discarding = false
}

// Free returns the unused region of the buffer. A reader fills it and then
// calls Commit with the number of bytes written.
func (r *Reassembler) Free() []byte {
	return r.buf[r.tail:]
}

// Feed copies a chunk in after the pending tail and returns the records it
// completes. Chunks larger than the free space are consumed piecewise.
func (r *Reassembler) Feed(c Chunk) []Record {
	var out []Record
	data := c.Data
	for {
		n := copy(r.Free(), data)
		data = data[n:]
		out = append(out, r.Commit(c.Header, n, c.More || len(data) > 0)...)
		if len(data) == 0 {
			return out
		}
	}
}

// Commit accounts for n bytes written into Free and returns every record
// they complete, in order.
func (r *Reassembler) Commit(hdr Header, n int, more bool) []Record {
	end := r.tail + n
	start := 0

	if r.discarding {
		i := bytes.IndexByte(r.buf[r.tail:end], '\n')
		if i < 0 {
			r.tail = 0
			r.discarding = more
			return nil
		}
		start = r.tail + i + 1
		r.discarding = false
	}

	var out []Record
	region := r.buf[start:end]

	// Everything up to the last newline is complete; scan backwards once
	// instead of cutting line by line from the front.
	if last := bytes.LastIndexByte(region, '\n'); last >= 0 {
		for _, line := range strings.Split(string(region[:last]), "\n") {
			out = append(out, Record{Header: hdr, Text: line})
		}
		region = region[last+1:]
	}

	switch {
	case !more && len(region) > 0:
		out = append(out, Record{Header: hdr, Text: string(region)})
		region = region[:0]
	case more && len(region) == len(r.buf):
		out = append(out, Record{Header: hdr, Text: string(region), Truncated: true})
		region = region[:0]
		r.discarding = true
	}

	r.tail = copy(r.buf, region)
	return out
}
