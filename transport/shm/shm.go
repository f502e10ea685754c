// Package shm implements the cross-process zero-copy Transport of spec
// §6.2: an AF_UNIX SOCK_SEQPACKET socketpair carries envelope metadata,
// and each posted region is a memfd-backed MAP_SHARED mapping (from
// NewRegion) whose file descriptor is handed to the peer via SCM_RIGHTS
// ancillary data —
// ownership of the region transfers with the descriptor, so the bytes
// are never copied across the process boundary.
//
// Grounded on the teacher's mmapQueues (raw SYS_MMAP/SYS_MUNMAP via
// golang.org/x/sys/unix) for the region allocation side, and on
// netstack's sharedmem queue (other_examples) for the idea of posting a
// small fixed-layout descriptor ahead of the payload.
package shm

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bexproto/bex/internal/interfaces"
)

// regionFds tracks the memfd backing each region NewRegion hands out,
// keyed by the address of the region's first byte. Post looks a
// region's fd up here; the registry is process-wide because a region
// allocated by NewRegion can be posted through any Transport.
var (
	regionFdsMu sync.Mutex
	regionFds   = map[uintptr]int{}
)

// NewRegion allocates a memfd-backed, MAP_SHARED anonymous mapping of
// size bytes suitable for use as a Buffer's region with this transport.
// The returned slice is safe to pass as an Envelope's Buffer to Post.
func NewRegion(size int) ([]byte, error) {
	fd, err := unix.MemfdCreate("bex-region", 0)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate: %w", err)
	}
	region, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	regionFdsMu.Lock()
	regionFds[regionAddr(region)] = fd
	regionFdsMu.Unlock()

	return region, nil
}

// FreeRegion unmaps a region previously returned by NewRegion and
// closes its backing fd.
func FreeRegion(region []byte) error {
	addr := regionAddr(region)
	regionFdsMu.Lock()
	fd, ok := regionFds[addr]
	delete(regionFds, addr)
	regionFdsMu.Unlock()
	if ok {
		unix.Close(fd)
	}
	return unix.Munmap(region)
}

func regionAddr(region []byte) uintptr {
	if len(region) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&region[0]))
}

func fdForRegion(region []byte) (int, error) {
	regionFdsMu.Lock()
	fd, ok := regionFds[regionAddr(region)]
	regionFdsMu.Unlock()
	if !ok {
		return 0, fmt.Errorf("region was not allocated by shm.NewRegion")
	}
	return fd, nil
}

// header is the fixed-layout control message sent over the socketpair
// alongside the SCM_RIGHTS fd: bexIdentifier, bexInstance, a present
// flag for bexSourceId, and bexSourceId itself. 20 bytes, little-endian.
const headerSize = 20

func encodeHeader(env interfaces.Envelope) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], env.Identifier)
	binary.LittleEndian.PutUint32(buf[4:], env.Instance)
	if env.SourceID != nil {
		binary.LittleEndian.PutUint32(buf[8:], 1)
		binary.LittleEndian.PutUint32(buf[12:], *env.SourceID)
	}
	binary.LittleEndian.PutUint32(buf[16:], 0) // region length is recovered from fstat, not carried
	return buf
}

func decodeHeader(buf []byte) (env interfaces.Envelope, ok bool) {
	if len(buf) < headerSize {
		return interfaces.Envelope{}, false
	}
	env.Identifier = binary.LittleEndian.Uint32(buf[0:])
	env.Instance = binary.LittleEndian.Uint32(buf[4:])
	if binary.LittleEndian.Uint32(buf[8:]) == 1 {
		src := binary.LittleEndian.Uint32(buf[12:])
		env.SourceID = &src
	}
	return env, true
}

// Transport is one end of an shm socketpair. Post looks up the memfd
// behind the envelope's region (which must come from NewRegion or an
// earlier receive) and sends that descriptor; Listen's delivery
// goroutine receives the descriptor and mmaps it into this process's
// address space.
type Transport struct {
	fd int

	mu       sync.Mutex
	handler  func(interfaces.Envelope)
	done     chan struct{}
	closeOne sync.Once
}

// NewPair opens an AF_UNIX SOCK_SEQPACKET socketpair and returns the two
// ends as Transports. Both ends live in the *calling* process; a real
// cross-process deployment passes one end's fd to a child process (e.g.
// via os/exec's ExtraFiles) before calling Wrap on the other side.
func NewPair() (a, b *Transport, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("shm: socketpair: %w", err)
	}
	return Wrap(fds[0]), Wrap(fds[1]), nil
}

// Wrap adapts an already-connected AF_UNIX SOCK_SEQPACKET descriptor
// (e.g. inherited across a fork/exec boundary) into a Transport.
func Wrap(fd int) *Transport {
	return &Transport{fd: fd, done: make(chan struct{})}
}

// Listen registers the handler and starts the receive loop on a
// dedicated goroutine. The returned func stops the loop and closes the
// socket.
func (t *Transport) Listen(handler func(interfaces.Envelope)) func() {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()

	go t.recvLoop()

	return func() { t.Close() }
}

func (t *Transport) recvLoop() {
	ctrlBuf := make([]byte, unix.CmsgSpace(4))
	msgBuf := make([]byte, headerSize)

	for {
		n, oobn, _, _, err := unix.Recvmsg(t.fd, msgBuf, ctrlBuf, 0)
		select {
		case <-t.done:
			return
		default:
		}
		if err != nil {
			return
		}

		env, ok := decodeHeader(msgBuf[:n])
		if !ok {
			continue
		}

		region, err := regionFromControlMessage(ctrlBuf[:oobn])
		if err != nil {
			continue
		}
		env.Buffer = region

		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			h(env)
		}
	}
}

func regionFromControlMessage(oob []byte) ([]byte, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("shm: parse control message: %w", err)
	}
	for _, msg := range msgs {
		fds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			region, err := mapAndClose(fd)
			if err == nil {
				return region, nil
			}
		}
	}
	return nil, fmt.Errorf("shm: no fd in control message")
}

// mapAndClose maps a received fd into this process's address space and
// registers it in regionFds under its own fd, so that if the consumer
// later releases the resulting Buffer back OUTGOING, Post can find an
// fd to re-attach (spec §6.2's ownership transfer is symmetric: a
// region can bounce between processes indefinitely).
func mapAndClose(fd int) ([]byte, error) {
	stat, err := unixFstat(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if stat <= 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: zero-length region")
	}
	region, err := unix.Mmap(fd, 0, int(stat), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap received fd: %w", err)
	}

	regionFdsMu.Lock()
	regionFds[regionAddr(region)] = fd
	regionFdsMu.Unlock()

	return region, nil
}

func unixFstat(fd int) (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return 0, err
	}
	return stat.Size, nil
}

// Post sends env's header over the socketpair with env.Buffer's backing
// memfd attached as SCM_RIGHTS. The caller must have obtained
// env.Buffer from NewRegion so it is backed by a real fd-bearing
// mapping.
func (t *Transport) Post(env interfaces.Envelope) error {
	fd, err := fdForRegion(env.Buffer)
	if err != nil {
		return fmt.Errorf("shm: %w", err)
	}
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(t.fd, encodeHeader(env), rights, nil, 0)
}

// Close closes the underlying socket and stops the receive loop.
func (t *Transport) Close() {
	t.closeOne.Do(func() {
		close(t.done)
		unix.Close(t.fd)
	})
}

var _ interfaces.Transport = (*Transport)(nil)
