package reassembler

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Text)
	}
	return out
}

func TestFeedSplitAcrossChunks(t *testing.T) {
	r := New(64)

	var got []Record
	got = append(got, r.Feed(Chunk{Data: []byte("alpha\nbe"), More: true})...)
	got = append(got, r.Feed(Chunk{Data: []byte("ta\ngamma\n"), More: true})...)

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, texts(got))
	assert.Zero(t, r.Pending())
}

func TestFeedNoNewlineGrowsTail(t *testing.T) {
	r := New(64)

	for i, part := range []string{"abc", "def", "g"} {
		before := r.Pending()
		recs := r.Feed(Chunk{Data: []byte(part), More: true})
		assert.Empty(t, recs, "chunk %d", i)
		assert.Equal(t, before+len(part), r.Pending(), "chunk %d", i)
	}
	assert.Less(t, r.Pending(), r.Cap())
}

func TestFeedEndingOnNewline(t *testing.T) {
	r := New(64)

	recs := r.Feed(Chunk{Data: []byte("one\ntwo\nthree\n"), More: true})
	assert.Equal(t, []string{"one", "two", "three"}, texts(recs))
	assert.Zero(t, r.Pending())
}

func TestFeedEmptyLines(t *testing.T) {
	r := New(64)

	recs := r.Feed(Chunk{Data: []byte("\na\n\n"), More: true})
	assert.Equal(t, []string{"", "a", ""}, texts(recs))
}

func TestFeedEndOfMessageTerminates(t *testing.T) {
	r := New(64)

	assert.Empty(t, r.Feed(Chunk{Data: []byte("usb 1-1: new "), More: true}))
	recs := r.Feed(Chunk{Data: []byte("device"), More: false})

	require.Len(t, recs, 1)
	assert.Equal(t, "usb 1-1: new device", recs[0].Text)
	assert.False(t, recs[0].Truncated)
	assert.Zero(t, r.Pending())
}

func TestFeedEndOfMessageWithLines(t *testing.T) {
	r := New(64)

	recs := r.Feed(Chunk{Data: []byte("first\nsecond"), More: false})
	assert.Equal(t, []string{"first", "second"}, texts(recs))
	assert.Zero(t, r.Pending())
}

func TestFeedEmptyFinalChunkFlushesTail(t *testing.T) {
	r := New(64)

	r.Feed(Chunk{Data: []byte("partial"), More: true})
	recs := r.Feed(Chunk{More: false})
	assert.Equal(t, []string{"partial"}, texts(recs))
}

func TestFeedHeaderSharedByChunk(t *testing.T) {
	r := New(64)
	h1 := Header{Facility: 0, Severity: 3, Seq: 7, Timestamp: time.Unix(100, 0)}
	h2 := Header{Facility: 0, Severity: 6, Seq: 8, Timestamp: time.Unix(200, 0)}

	recs := r.Feed(Chunk{Header: h1, Data: []byte("a\nb\nc"), More: true})
	require.Len(t, recs, 2)
	assert.Equal(t, h1, recs[0].Header)
	assert.Equal(t, h1, recs[1].Header)

	// The tail is completed by the chunk that supplies its newline.
	recs = r.Feed(Chunk{Header: h2, Data: []byte("\n"), More: true})
	require.Len(t, recs, 1)
	assert.Equal(t, "c", recs[0].Text)
	assert.Equal(t, h2, recs[0].Header)
}

func TestFeedOversizedRecordTruncates(t *testing.T) {
	r := New(8)

	recs := r.Feed(Chunk{Data: []byte("0123456789ab\nnext\n"), More: true})

	require.Len(t, recs, 2)
	assert.Equal(t, "01234567", recs[0].Text)
	assert.True(t, recs[0].Truncated)
	assert.Equal(t, "next", recs[1].Text)
	assert.False(t, recs[1].Truncated)
	assert.Zero(t, r.Pending())
}

func TestFeedTruncationResyncAcrossChunks(t *testing.T) {
	r := New(8)

	recs := r.Feed(Chunk{Data: []byte("aaaaaaaa"), More: true})
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Truncated)

	// Still inside the oversized line: dropped.
	assert.Empty(t, r.Feed(Chunk{Data: []byte("bbbb"), More: true}))
	assert.Zero(t, r.Pending())

	recs = r.Feed(Chunk{Data: []byte("bb\nok\n"), More: true})
	assert.Equal(t, []string{"ok"}, texts(recs))
}

func TestFeedTruncationEndsWithMessage(t *testing.T) {
	r := New(4)

	recs := r.Feed(Chunk{Data: []byte("abcdefg"), More: false})
	require.Len(t, recs, 1)
	assert.Equal(t, "abcd", recs[0].Text)
	assert.True(t, recs[0].Truncated)

	// The next message starts clean.
	recs = r.Feed(Chunk{Data: []byte("xy\n"), More: true})
	assert.Equal(t, []string{"xy"}, texts(recs))
}

func TestFreeCommitReadsAfterTail(t *testing.T) {
	r := New(16)

	n := copy(r.Free(), "hello wo")
	assert.Empty(t, r.Commit(Header{}, n, true))
	assert.Equal(t, 8, r.Pending())
	assert.Len(t, r.Free(), 8)

	n = copy(r.Free(), "rld\n")
	recs := r.Commit(Header{}, n, true)
	assert.Equal(t, []string{"hello world"}, texts(recs))
	assert.Len(t, r.Free(), 16)
}

func TestReset(t *testing.T) {
	r := New(16)
	r.Feed(Chunk{Data: []byte("dangling"), More: true})
	require.NotZero(t, r.Pending())

	r.Reset()
	assert.Zero(t, r.Pending())
	recs := r.Feed(Chunk{Data: []byte("fresh\n"), More: true})
	assert.Equal(t, []string{"fresh"}, texts(recs))
}

func TestNewDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
}

func TestHeaderPriority(t *testing.T) {
	assert.Equal(t, 6, Header{Facility: 0, Severity: 6}.Priority())
	assert.Equal(t, 3<<3|4, Header{Facility: 3, Severity: 4}.Priority())
}

// Concatenating emitted records plus their newlines, followed by the pending
// tail, reproduces the input stream regardless of how reads split it.
func TestFeedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const capacity = 64

	for iter := 0; iter < 200; iter++ {
		var stream strings.Builder
		for i := rng.Intn(30); i >= 0; i-- {
			line := strings.Repeat(string(rune('a'+rng.Intn(26))), rng.Intn(capacity-1))
			stream.WriteString(line)
			stream.WriteByte('\n')
		}
		// optional unterminated trailer
		stream.WriteString(strings.Repeat("z", rng.Intn(capacity/2)))
		input := stream.String()

		r := New(capacity)
		var joined strings.Builder
		for rest := input; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			for _, rec := range r.Feed(Chunk{Data: []byte(rest[:n]), More: true}) {
				require.False(t, rec.Truncated)
				joined.WriteString(rec.Text)
				joined.WriteByte('\n')
			}
			rest = rest[n:]
			require.Less(t, r.Pending(), r.Cap())
		}

		out := joined.String()
		require.True(t, strings.HasPrefix(input, out), "iteration %d: records reordered or altered", iter)
		require.Equal(t, len(input)-len(out), r.Pending(), "iteration %d", iter)
	}
}
