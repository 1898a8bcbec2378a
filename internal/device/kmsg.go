package device

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/setevik/kmsgd/internal/reassembler"
)

// parseKmsgRecord decodes one /dev/kmsg record in place. The record looks like
//
//	6,339,5140900,-;NET: Registered protocol family 10
//	 SUBSYSTEM=net
//	 DEVICE=+net:lo
//
// The message line, newline included, is moved to the start of rec and its
// length returned. Dictionary lines are dropped. boot is the wall-clock time
// the monotonic timestamps count from.
func parseKmsgRecord(rec []byte, boot time.Time) (reassembler.Header, int, bool) {
	hdr := reassembler.Header{
		Facility: FacilityKern,
		Severity: SeverityDefault,
	}

	semi := bytes.IndexByte(rec, ';')
	if semi < 0 {
		return hdr, len(rec), false
	}

	fields := strings.Split(string(rec[:semi]), ",")
	if len(fields) < 4 {
		return hdr, len(rec), false
	}

	prio, err := strconv.Atoi(fields[0])
	if err != nil || prio < 0 {
		return hdr, len(rec), false
	}
	seq, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return hdr, len(rec), false
	}
	usec, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return hdr, len(rec), false
	}

	hdr.Facility = prio >> 3
	hdr.Severity = prio & 7
	hdr.Seq = seq
	hdr.Timestamp = boot.Add(time.Duration(usec) * time.Microsecond)
	hdr.Flags = fields[3]

	body := rec[semi+1:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[:nl+1]
	}
	n := copy(rec, body)
	return hdr, n, true
}
