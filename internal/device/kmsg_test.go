package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKmsgRecord(t *testing.T) {
	boot := time.Date(2026, 2, 19, 14, 0, 0, 0, time.UTC)
	rec := []byte("6,339,5140900,-;NET: Registered protocol family 10\n SUBSYSTEM=net\n DEVICE=+net:lo\n")

	hdr, n, ok := parseKmsgRecord(rec, boot)
	require.True(t, ok)

	assert.Equal(t, "NET: Registered protocol family 10\n", string(rec[:n]))
	assert.Equal(t, 0, hdr.Facility)
	assert.Equal(t, 6, hdr.Severity)
	assert.Equal(t, uint64(339), hdr.Seq)
	assert.Equal(t, "-", hdr.Flags)
	assert.Equal(t, boot.Add(5140900*time.Microsecond), hdr.Timestamp)
}

func TestParseKmsgRecordFacility(t *testing.T) {
	// <30> is daemon.info written into the ring by userspace.
	rec := []byte("30,12,100,c,caller=T1;systemd[1]: Started foo\n")

	hdr, n, ok := parseKmsgRecord(rec, time.Unix(0, 0))
	require.True(t, ok)
	assert.Equal(t, 3, hdr.Facility)
	assert.Equal(t, 6, hdr.Severity)
	assert.Equal(t, "c", hdr.Flags)
	assert.Equal(t, "systemd[1]: Started foo\n", string(rec[:n]))
}

func TestParseKmsgRecordMalformed(t *testing.T) {
	tests := []string{
		"no header at all\n",
		"6,1;short header\n",
		"x,1,2,-;bad prio\n",
		"6,y,2,-;bad seq\n",
		"6,1,z,-;bad time\n",
	}
	for _, in := range tests {
		rec := []byte(in)
		hdr, n, ok := parseKmsgRecord(rec, time.Unix(0, 0))
		assert.False(t, ok, in)
		assert.Equal(t, len(in), n, in)
		assert.Equal(t, in, string(rec[:n]), in)
		assert.Equal(t, SeverityDefault, hdr.Severity, in)
	}
}

func TestReadinessString(t *testing.T) {
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "readable", Readable.String())
	assert.Equal(t, "error", ErrorCondition.String())
	assert.Equal(t, "unknown", Readiness(42).String())
}

func TestFramingValid(t *testing.T) {
	assert.True(t, FramingKmsg.Valid())
	assert.True(t, FramingStream.Valid())
	assert.False(t, Framing("streams").Valid())
}
