//go:build linux

package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/setevik/kmsgd/internal/reassembler"
)

// Options configures a Channel.
type Options struct {
	Framing Framing
	Logger  *slog.Logger
}

// Channel is the single handle on a kernel log device. It is not safe for
// concurrent use; one reader goroutine owns it.
type Channel struct {
	path    string
	framing Framing
	log     *slog.Logger

	fd   int // -1 while closed
	boot time.Time
	read func(fd int, p []byte) (int, error)

	// wakeMu orders wake, which runs on the AfterFunc goroutine, against
	// Shutdown closing wakeFd.
	wakeMu sync.Mutex
	wakeFd int
}

// New prepares a Channel for path. The device itself is not opened until Open.
func New(path string, opts Options) (*Channel, error) {
	if opts.Framing == "" {
		opts.Framing = FramingKmsg
	}
	if !opts.Framing.Valid() {
		return nil, fmt.Errorf("unknown framing %q", opts.Framing)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	return &Channel{
		path:    path,
		framing: opts.Framing,
		log:     opts.Logger,
		fd:      -1,
		wakeFd:  wakeFd,
		boot:    bootTime(),
		read:    unix.Read,
	}, nil
}

// Path returns the device path.
func (c *Channel) Path() string { return c.path }

// Open opens the device read-only and arms it with one control call. Any
// handle already held is closed first, so Open doubles as reopen. On failure
// no descriptor is left behind. The open never blocks, even on a FIFO that
// has no writer yet.
func (c *Channel) Open() error {
	c.Close()

	fd, err := unix.Open(c.path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrOpenFailed, c.path, err)
	}

	if err := c.register(fd); err != nil {
		unix.Close(fd)
		return fmt.Errorf("%w: arm %s: %w", ErrOpenFailed, c.path, err)
	}

	c.fd = fd
	c.log.Debug("kernel log device opened", "path", c.path, "framing", c.framing, "fd", fd)
	return nil
}

// register issues the one-time control call that starts capture.
func (c *Channel) register(fd int) error {
	switch c.framing {
	case FramingKmsg:
		// Start at the oldest record still held in the ring buffer.
		_, err := unix.Seek(fd, 0, unix.SEEK_DATA)
		return err
	default:
		// Streams have no cursor to place; check that fd can be polled.
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return err
		}
		switch st.Mode & unix.S_IFMT {
		case unix.S_IFIFO, unix.S_IFCHR, unix.S_IFSOCK:
			return nil
		}
		return fmt.Errorf("mode %#o is not a stream", st.Mode&unix.S_IFMT)
	}
}

// Alive reports whether a handle is currently open.
func (c *Channel) Alive() bool { return c.fd >= 0 }

// WaitReady waits up to timeout for the device to become readable or fail.
// A zero timeout polls without blocking; Infinite blocks. Cancelling ctx
// wakes a blocked wait and returns ctx.Err().
func (c *Channel) WaitReady(ctx context.Context, timeout time.Duration) (Readiness, error) {
	if !c.Alive() {
		return Timeout, fmt.Errorf("%w: device not open", ErrPollFailed)
	}
	if err := ctx.Err(); err != nil {
		return Timeout, err
	}

	stop := context.AfterFunc(ctx, c.wake)
	defer stop()

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	fds := []unix.PollFd{
		{Fd: int32(c.fd), Events: unix.POLLIN},
		{Fd: int32(c.wakeFd), Events: unix.POLLIN},
	}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Timeout, fmt.Errorf("%w: %w", ErrPollFailed, err)
		}
		if fds[1].Revents != 0 {
			if err := ctx.Err(); err != nil {
				return Timeout, err
			}
		}
		if n == 0 {
			return Timeout, nil
		}

		rev := fds[0].Revents
		switch {
		case rev&unix.POLLIN != 0:
			return Readable, nil
		case rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0:
			return ErrorCondition, nil
		}
		return Timeout, nil
	}
}

// Read pulls one chunk into p. more reports whether the chunk may continue
// in a later read: /dev/kmsg delivers whole records, so it is always false
// there, and always true for a stream, which has no record boundaries.
func (c *Channel) Read(p []byte) (hdr reassembler.Header, n int, more bool, err error) {
	if !c.Alive() {
		return hdr, 0, false, fmt.Errorf("%w: device not open", ErrReadFailed)
	}

	n, err = c.read(c.fd, p)
	switch {
	case err == unix.EINTR:
		return hdr, 0, false, ErrInterrupted
	case err == unix.EAGAIN:
		return hdr, 0, false, ErrNoData
	case err == unix.EPIPE && c.framing == FramingKmsg:
		return hdr, 0, false, ErrOverrun
	case err == unix.EINVAL && c.framing == FramingKmsg:
		return hdr, 0, false, fmt.Errorf("%w: record larger than %d byte buffer", ErrReadFailed, len(p))
	case err != nil:
		return hdr, 0, false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	case n == 0:
		return hdr, 0, false, fmt.Errorf("%w: end of file", ErrReadFailed)
	}

	if c.framing == FramingKmsg {
		var ok bool
		hdr, n, ok = parseKmsgRecord(p[:n], c.boot)
		if !ok {
			c.log.Debug("unparseable kmsg record header", "len", n)
			hdr.Timestamp = time.Now()
		}
		return hdr, n, false, nil
	}

	hdr = reassembler.Header{
		Facility:  FacilityKern,
		Severity:  SeverityDefault,
		Timestamp: time.Now(),
	}
	return hdr, n, true, nil
}

// Close releases the device handle. It is safe to call repeatedly.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	return nil
}

// Shutdown closes the handle and the wake descriptor. The Channel cannot be
// reopened afterwards.
func (c *Channel) Shutdown() error {
	err := c.Close()

	c.wakeMu.Lock()
	defer c.wakeMu.Unlock()
	if c.wakeFd >= 0 {
		unix.Close(c.wakeFd)
		c.wakeFd = -1
	}
	return err
}

func (c *Channel) wake() {
	c.wakeMu.Lock()
	defer c.wakeMu.Unlock()
	if c.wakeFd < 0 {
		return
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, _ = unix.Write(c.wakeFd, b[:])
}

// bootTime returns the wall-clock instant CLOCK_BOOTTIME counts from.
func bootTime() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Now()
	}
	return time.Now().Add(-time.Duration(ts.Nano()))
}
